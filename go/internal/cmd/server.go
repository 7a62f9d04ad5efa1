package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"

	"connectrpc.com/grpcreflect"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/focusroom/go/internal/rooms"
)

func setupServer(config *Config, services *Services, database *sql.DB) (*http.Server, error) {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	if err := registerServices(mux, services); err != nil {
		return nil, err
	}

	// Setup reflection for grpcui/grpcurl
	setupReflection(mux)

	setupHealthCheck(mux, services, database)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", config.Server.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}, nil
}

func registerServices(mux *http.ServeMux, services *Services) error {
	roomServicePath, roomServiceHandler, err := rooms.NewRoomServiceHandler(services.Rooms)
	if err != nil {
		return fmt.Errorf("failed to build room service handler: %w", err)
	}
	mux.Handle(roomServicePath, roomServiceHandler)

	// WebSocket and timer state routes
	services.Gateway.RegisterRoutes(mux)
	return nil
}

func setupReflection(mux *http.ServeMux) {
	reflector := grpcreflect.NewStaticReflector(
		rooms.RoomServiceName,
	)
	mux.Handle(grpcreflect.NewHandlerV1(reflector))
	mux.Handle(grpcreflect.NewHandlerV1Alpha(reflector))
}

func setupHealthCheck(mux *http.ServeMux, services *Services, database *sql.DB) {
	var nats natsStatus
	if services.Relay != nil {
		nats = services.Relay
	}
	mux.Handle("/health", NewHealthChecker(database, nats, services.Timers))

	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		info := map[string]interface{}{
			"service":     "focusroom",
			"connections": services.Gateway.Stats().TotalConnections,
			"timers":      services.Timers.Stats(),
			"bus_dropped": services.Bus.Dropped(),
		}
		if services.Relay != nil {
			info["relay_dropped"] = services.Relay.Dropped()
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(info); err != nil {
			log.Error().Err(err).Msg("failed to encode info response")
		}
	})
}
