// Package gateway is the server side of the realtime channel: WebSocket
// connections per room, command routing into timersync and, when rooms are
// spread over several instances, the JetStream consumer feeding them.
package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Service bundles the gateway handlers and background workers.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	stateHandler      *StateHandler
}

// Config holds configuration for the gateway service. A nil Consumer means
// events reach the connection manager in-process.
type Config struct {
	Consumer *JetStreamConsumerConfig
}

// NewService wires the handlers around an existing connection manager, which
// the timer service also broadcasts into.
func NewService(config Config, cm *ConnectionManager, roomLookup RoomLookup, timers TimerService, clock clockwork.Clock) (*Service, error) {
	s := &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, roomLookup, timers),
		stateHandler:      NewStateHandler(timers, clock),
	}

	if config.Consumer != nil {
		consumer, err := NewEventConsumer(cm, *config.Consumer)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = consumer
	}
	return s, nil
}

// Start runs the connection manager and, if configured, the event consumer
// until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Bool("jetstream", s.eventConsumer != nil).Msg("starting room gateway")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info().Msg("room gateway shutting down")
	return s.Stop()
}

func (s *Service) Stop() error {
	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}
	return nil
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("room gateway routes registered")
}

// Stats returns connection statistics.
func (s *Service) Stats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}
