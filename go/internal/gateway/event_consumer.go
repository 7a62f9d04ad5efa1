package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/internal/events"
	"github.com/mcdev12/focusroom/go/internal/relay"
)

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	Stream            relay.JetStreamConfig
	ConsumerName      string        // unique per gateway instance
	MaxDeliver        int           // Max delivery attempts
	AckWait           time.Duration // How long to wait for ack
	MaxAckPending     int           // Max messages pending ack
	InactiveThreshold time.Duration // consumer is removed after this long without a client
}

func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		Stream:            relay.DefaultJetStreamConfig(),
		ConsumerName:      "room-gateway-" + uuid.New().String()[:8],
		MaxDeliver:        3,
		AckWait:           5 * time.Second,
		MaxAckPending:     1000,
		InactiveThreshold: 5 * time.Minute,
	}
}

// EventConsumer relays room events published by any instance to the
// WebSocket clients connected to this one.
type EventConsumer struct {
	connectionManager *ConnectionManager
	nc                *nats.Conn
	js                jetstream.JetStream
	consumer          jetstream.Consumer
	config            JetStreamConsumerConfig
}

func NewEventConsumer(cm *ConnectionManager, config JetStreamConsumerConfig) (*EventConsumer, error) {
	nc, err := relay.Connect(config.Stream.URL, config.Stream.MaxReconnects, config.Stream.ReconnectWait)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ec := &EventConsumer{
		connectionManager: cm,
		nc:                nc,
		js:                js,
		config:            config,
	}

	if err := ec.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	return ec, nil
}

func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.Stream.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	// Every instance needs every event, so each one gets its own consumer
	// starting at new messages; missed history is covered by the next tick.
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:              ec.config.ConsumerName,
		Description:       "Room gateway WebSocket consumer",
		FilterSubject:     fmt.Sprintf("%s.>", ec.config.Stream.SubjectPrefix),
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		MaxDeliver:        ec.config.MaxDeliver,
		AckWait:           ec.config.AckWait,
		MaxAckPending:     ec.config.MaxAckPending,
		InactiveThreshold: ec.config.InactiveThreshold,
		ReplayPolicy:      jetstream.ReplayInstantPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}

	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.Stream.StreamName).
		Msg("JetStream consumer ready")

	ec.consumer = consumer
	return nil
}

// Start consumes events until ctx is cancelled.
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.Stream.StreamName).
		Msg("starting JetStream event consumer")

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		if err := ec.processMessage(msg.Data()); err != nil {
			log.Error().
				Err(err).
				Str("subject", msg.Subject()).
				Msg("failed to process message")
			// a malformed event will not get better on redelivery
			if termErr := msg.Term(); termErr != nil {
				log.Error().Err(termErr).Msg("failed to terminate message")
			}
			return
		}
		if ackErr := msg.Ack(); ackErr != nil {
			log.Error().Err(ackErr).Msg("failed to ACK message")
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	<-ctx.Done()
	log.Info().Msg("event consumer shutting down")
	return nil
}

func (ec *EventConsumer) processMessage(data []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if _, err := events.ParsePayload(env); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}

	log.Debug().
		Str("event_id", env.ID).
		Str("room_id", env.RoomID).
		Str("event_type", string(env.Type)).
		Msg("relaying JetStream event")

	ec.connectionManager.Broadcast(env)
	return nil
}

// Stop closes the NATS connection.
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping event consumer")
	if ec.nc != nil {
		ec.nc.Close()
	}
	return nil
}
