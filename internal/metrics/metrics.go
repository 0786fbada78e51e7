// Venuelink Chatd - Realtime Chat for the Venuelink Marketplace
// Copyright 2026 Venuelink
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/venuelink/chatd

// Package metrics provides Prometheus instrumentation for chatd:
// message delivery, socket connections, store operations, and the HTTP API.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Message Delivery Metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of chat messages accepted and persisted",
		},
	)

	MessageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_message_errors_total",
			Help: "Total number of rejected or failed message sends",
		},
		[]string{"reason"}, // "validation", "persistence", "rate_limited"
	)

	MessageFanoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_message_fanout_duration_seconds",
			Help:    "Duration of post-persist fan-out in seconds",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)

	MessagesMarkedRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_messages_marked_read_total",
			Help: "Total number of messages flipped to read",
		},
	)

	// Socket Metrics
	SocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_socket_connections",
			Help: "Current number of active socket connections",
		},
	)

	SocketRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_socket_rooms",
			Help: "Current number of rooms with at least one connection",
		},
	)

	SocketEventsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_socket_events_sent_total",
			Help: "Total number of socket events delivered to connections",
		},
		[]string{"event"},
	)

	SocketEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_socket_events_dropped_total",
			Help: "Total number of socket events dropped on full send queues",
		},
		[]string{"event"},
	)

	SocketAuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_socket_auth_failures_total",
			Help: "Total number of socket handshakes rejected",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordMessageError records a rejected or failed message send.
func RecordMessageError(reason string) {
	MessageErrors.WithLabelValues(reason).Inc()
}

// RecordFanout records the duration of one message fan-out.
func RecordFanout(duration time.Duration) {
	MessageFanoutDuration.Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}
