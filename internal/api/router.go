// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/venuelink/chatd/internal/auth"
	"github.com/venuelink/chatd/internal/config"
	"github.com/venuelink/chatd/internal/middleware"
)

// Router assembles the chi route tree.
type Router struct {
	cfg      *config.Config
	handlers *Handlers
	jwt      *auth.JWTManager
}

// NewRouter creates the router.
func NewRouter(cfg *config.Config, handlers *Handlers, jwt *auth.JWTManager) *Router {
	return &Router{
		cfg:      cfg,
		handlers: handlers,
		jwt:      jwt,
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to every route in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.Security.CORSOrigins,
		AllowedMethods: []string{"GET", "PUT", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Request-ID"},
		MaxAge:         86400,
	}))

	// Health stays unauthenticated with a permissive limit so monitors can
	// poll frequently.
	r.With(httprate.LimitByIP(1000, time.Minute)).Get("/api/health", router.handlers.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// The socket upgrade authenticates in-band via the first auth frame,
	// so no bearer middleware here.
	r.With(httprate.LimitByIP(60, time.Minute)).Get("/ws", router.handlers.WebSocket)

	// Authenticated chat endpoints.
	r.Route("/api", func(r chi.Router) {
		if !router.cfg.Security.RateLimitDisabled {
			r.Use(httprate.LimitByIP(
				router.cfg.Security.RateLimitReqs,
				router.cfg.Security.RateLimitWindow,
			))
		}
		r.Use(middleware.PrometheusMetrics)
		r.Use(router.jwt.Middleware)

		r.Get("/conversations", router.handlers.Conversations)
		r.Route("/chat/{userID}", func(r chi.Router) {
			r.Get("/", router.handlers.History)
			r.Put("/read", router.handlers.MarkRead)
		})
		r.Put("/directory/self", router.handlers.UpdateDirectorySelf)
	})

	return r
}
