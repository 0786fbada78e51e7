// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

// Package config provides layered configuration for chatd using Koanf v2.
//
// Loading order (later layers override earlier ones):
//  1. Defaults: built-in sensible defaults for every setting
//  2. Config File: optional YAML file (config.yaml)
//  3. Environment Variables: override any setting
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import (
	"fmt"
	"time"
)

// Config holds all chatd configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Store    StoreConfig    `koanf:"store"`
	Chat     ChatConfig     `koanf:"chat"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_PORT: Listen port (default: 3900)
//   - HTTP_HOST: Bind address (default: 0.0.0.0)
//   - HTTP_TIMEOUT: Read/write timeout (default: 30s)
//   - ENVIRONMENT: development or production (default: development)
type ServerConfig struct {
	Port        int           `koanf:"port"`
	Host        string        `koanf:"host"`
	Timeout     time.Duration `koanf:"timeout"`
	Environment string        `koanf:"environment"`
}

// SecurityConfig holds authentication and rate limiting settings.
//
// Environment Variables:
//   - JWT_SECRET: HMAC signing secret (required in production)
//   - SESSION_TIMEOUT: Token lifetime (default: 24h)
//   - RATE_LIMIT_REQUESTS / RATE_LIMIT_WINDOW: HTTP rate limit
//   - DISABLE_RATE_LIMIT: Disable rate limiting entirely
//   - CORS_ORIGINS: Comma-separated allowed origins (default: *)
type SecurityConfig struct {
	JWTSecret         string        `koanf:"jwt_secret"`
	SessionTimeout    time.Duration `koanf:"session_timeout"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// StoreConfig holds BadgerDB settings for the message and directory stores.
//
// Environment Variables:
//   - STORE_PATH: Badger data directory (default: /data/chatd)
//   - STORE_IN_MEMORY: Run Badger in memory, no persistence (default: false)
type StoreConfig struct {
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`
}

// ChatConfig holds chat protocol and delivery settings.
//
// Environment Variables:
//   - CHAT_AUTH_DEADLINE: Time a socket may stay unauthenticated (default: 10s)
//   - CHAT_HISTORY_LIMIT: Max messages returned per history fetch (default: 500)
//   - CHAT_SEND_RATE / CHAT_SEND_BURST: Per-connection inbound event limit
//   - CHAT_SEND_BUFFER: Per-connection outbound queue size (default: 64)
type ChatConfig struct {
	AuthDeadline time.Duration `koanf:"auth_deadline"`
	HistoryLimit int           `koanf:"history_limit"`
	SendRate     float64       `koanf:"send_rate"`
	SendBurst    int           `koanf:"send_burst"`
	SendBuffer   int           `koanf:"send_buffer"`
}

// LoggingConfig holds logging settings.
//
// Environment Variables:
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for invalid or inconsistent values.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateChat(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server timeout must be positive, got %s", c.Server.Timeout)
	}
	switch c.Server.Environment {
	case "development", "production":
	default:
		return fmt.Errorf("environment must be development or production, got %q", c.Server.Environment)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	// An empty secret in development gets a generated one at startup.
	// Production must configure it explicitly.
	if c.Server.Environment == "production" && c.Security.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.Security.JWTSecret != "" && len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters, got %d", len(c.Security.JWTSecret))
	}
	if c.Security.SessionTimeout <= 0 {
		return fmt.Errorf("session timeout must be positive, got %s", c.Security.SessionTimeout)
	}
	if !c.Security.RateLimitDisabled {
		if c.Security.RateLimitReqs <= 0 {
			return fmt.Errorf("rate limit requests must be positive, got %d", c.Security.RateLimitReqs)
		}
		if c.Security.RateLimitWindow <= 0 {
			return fmt.Errorf("rate limit window must be positive, got %s", c.Security.RateLimitWindow)
		}
	}
	return nil
}

func (c *Config) validateChat() error {
	if c.Chat.AuthDeadline <= 0 {
		return fmt.Errorf("chat auth deadline must be positive, got %s", c.Chat.AuthDeadline)
	}
	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("chat history limit must be positive, got %d", c.Chat.HistoryLimit)
	}
	if c.Chat.SendRate <= 0 {
		return fmt.Errorf("chat send rate must be positive, got %f", c.Chat.SendRate)
	}
	if c.Chat.SendBurst <= 0 {
		return fmt.Errorf("chat send burst must be positive, got %d", c.Chat.SendBurst)
	}
	if c.Chat.SendBuffer <= 0 {
		return fmt.Errorf("chat send buffer must be positive, got %d", c.Chat.SendBuffer)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	return nil
}

// Addr returns the host:port listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
