package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/internal/timersync"
)

type HealthStatus struct {
	Healthy           bool            `json:"healthy"`
	DatabaseConnected *bool           `json:"database_connected,omitempty"`
	NATSConnected     *bool           `json:"nats_connected,omitempty"`
	Timers            timersync.Stats `json:"timers"`
	Errors            []string        `json:"errors"`
}

type natsStatus interface {
	Connected() bool
}

type timerStats interface {
	Stats() timersync.Stats
}

// HealthChecker reports on the dependencies the server was started with.
// db and nats are nil when the memory store or local broadcast is used.
type HealthChecker struct {
	db     *sql.DB
	nats   natsStatus
	timers timerStats
}

func NewHealthChecker(db *sql.DB, nats natsStatus, timers timerStats) *HealthChecker {
	return &HealthChecker{db: db, nats: nats, timers: timers}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Timers:  h.timers.Stats(),
		Errors:  []string{},
	}

	if h.db != nil {
		connected := true
		if err := h.db.PingContext(ctx); err != nil {
			connected = false
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
		}
		status.DatabaseConnected = &connected
	}

	if h.nats != nil {
		connected := h.nats.Connected()
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
		status.NATSConnected = &connected
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health response")
	}
}
