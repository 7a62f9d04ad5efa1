package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mcdev12/focusroom/go/internal/events"
	"github.com/mcdev12/focusroom/go/internal/gateway"
	"github.com/mcdev12/focusroom/go/internal/relay"
	"github.com/mcdev12/focusroom/go/internal/rooms"
	"github.com/mcdev12/focusroom/go/internal/timersync"
)

type Services struct {
	Rooms   *rooms.Service
	Sweeper *rooms.Sweeper
	Timers  *timersync.Service
	Gateway *gateway.Service
	Relay   *relay.JetStreamPublisher
	Bus     *events.Bus
}

func setupServices(config *Config, repo rooms.RoomsRepository) (*Services, error) {
	// Wire up dependency injection chain
	// Repository → App → Service, with timersync fanning out through the
	// gateway (local) or the JetStream relay (nats) plus the in-process bus.
	clock := clockwork.NewRealClock()

	roomsApp := rooms.NewApp(repo, clock, config.Rooms.DormancyThreshold)
	roomsService := rooms.NewService(roomsApp)
	sweeper := rooms.NewSweeper(roomsApp, clock, config.Rooms.SweepInterval)

	connConfig := gateway.DefaultConnectionConfig()
	connConfig.CommandRate = rate.Limit(config.Gateway.CommandRate)
	connConfig.CommandBurst = config.Gateway.CommandBurst
	cm := gateway.NewConnectionManager(connConfig)

	bus := events.NewBus(events.DefaultSubscriberBuffer)
	broadcasters := timersync.MultiBroadcaster{bus}

	var (
		publisher     *relay.JetStreamPublisher
		gatewayConfig gateway.Config
	)
	switch config.NATS.BroadcastMode {
	case broadcastNATS:
		streamConfig := relay.DefaultJetStreamConfig()
		streamConfig.URL = config.NATS.URL
		streamConfig.StreamName = config.NATS.StreamName

		var err error
		publisher, err = relay.NewJetStreamPublisher(streamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event relay: %w", err)
		}
		broadcasters = append(broadcasters, publisher)

		consumerConfig := gateway.DefaultJetStreamConsumerConfig()
		consumerConfig.Stream = streamConfig
		gatewayConfig.Consumer = &consumerConfig
	default:
		broadcasters = append(broadcasters, cm)
	}

	timers := timersync.NewService(repo, broadcasters, clock, config.Timer.TickInterval)
	roomsApp.AddNotifier(timers)

	gatewayService, err := gateway.NewService(gatewayConfig, cm, roomsApp, timers, clock)
	if err != nil {
		if publisher != nil {
			publisher.Close()
		}
		return nil, err
	}

	return &Services{
		Rooms:   roomsService,
		Sweeper: sweeper,
		Timers:  timers,
		Gateway: gatewayService,
		Relay:   publisher,
		Bus:     bus,
	}, nil
}

// logSessionCompletions keeps an audit trail of finished sessions.
func logSessionCompletions(ctx context.Context, bus *events.Bus) {
	completed, unsubscribe := bus.Subscribe(events.EventTypeTimerComplete)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-completed:
			if !ok {
				return
			}
			payload, err := events.ParsePayload(env)
			if err != nil {
				log.Error().Err(err).Str("room_id", env.RoomID).Msg("malformed completion event")
				continue
			}
			p := payload.(*events.TimerCompletePayload)
			log.Info().
				Str("room_id", env.RoomID).
				Str("previous_session", string(p.PreviousSession)).
				Str("next_session", string(p.NextSession)).
				Bool("requires_manual_start", p.RequiresManualStart).
				Time("at", env.Timestamp).
				Msg("session audit")
		}
	}
}
