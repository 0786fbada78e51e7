// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

// Package main is the entry point for the chatd server.
//
// Chatd carries realtime messaging between vendors and clients on the
// Venuelink marketplace: message delivery over persistent WebSocket
// connections, durable history in BadgerDB, conversation summaries with
// unread counts, and a directory of party display data.
//
// # Startup Order
//
//  1. Configuration: Koanf v2 layered sources (defaults, config file,
//     environment variables)
//  2. Message store: BadgerDB at STORE_PATH (or in-memory)
//  3. Hub: room-per-identity fan-out loop
//  4. Chat engine: validate, persist, fan out
//  5. HTTP server: chi router with REST endpoints and the /ws upgrade
//  6. Supervisor tree: suture keeps the GC loop, the hub, and the HTTP
//     server running
//
// # Configuration
//
// The required production setting is JWT_SECRET (32+ characters). See the
// config package for the full variable list.
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger graceful shutdown: the server stops accepting
// connections, in-flight requests drain within the shutdown timeout, socket
// clients receive close frames, and the store is flushed and closed.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/venuelink/chatd/internal/api"
	"github.com/venuelink/chatd/internal/auth"
	"github.com/venuelink/chatd/internal/chat"
	"github.com/venuelink/chatd/internal/config"
	"github.com/venuelink/chatd/internal/hub"
	"github.com/venuelink/chatd/internal/logging"
	"github.com/venuelink/chatd/internal/store"
	"github.com/venuelink/chatd/internal/supervisor"
	"github.com/venuelink/chatd/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("store_path", cfg.Store.Path).
		Bool("in_memory", cfg.Store.InMemory).
		Msg("Starting chatd")

	s, err := store.Open(cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open message store")
	}
	defer func() {
		if err := s.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing message store")
		}
	}()

	// Development convenience only; production config validation requires
	// an explicit secret.
	if cfg.Security.JWTSecret == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			logging.Fatal().Err(err).Msg("Failed to generate development JWT secret")
		}
		cfg.Security.JWTSecret = hex.EncodeToString(secret)
		logging.Warn().Msg("JWT_SECRET not set, generated an ephemeral development secret")
	}

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token verification")
	}

	h := hub.NewHub()
	engine := chat.NewEngine(s, h, chat.Config{HistoryLimit: cfg.Chat.HistoryLimit})
	gate := hub.NewGate(h, jwtManager, chat.NewSocketHandler(engine), hub.GateConfig{
		AuthDeadline: cfg.Chat.AuthDeadline,
		SendRate:     cfg.Chat.SendRate,
		SendBurst:    cfg.Chat.SendBurst,
		SendBuffer:   cfg.Chat.SendBuffer,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handlers := api.NewHandlers(ctx, engine, s, h, gate, cfg.Security.CORSOrigins)
	router := api.NewRouter(cfg, handlers, jwtManager)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// zerolog backs the slog logger suture logs through.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddStorageService(services.NewStoreGCService(s, 0))
	tree.AddMessagingService(services.NewHubService(h))
	tree.AddAPIService(services.NewHTTPService(server, 10*time.Second))

	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Chatd stopped gracefully")
}
