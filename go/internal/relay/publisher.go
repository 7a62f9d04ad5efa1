package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/internal/events"
)

// msgPublisher is the part of jetstream.JetStream the publisher uses.
type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamPublisher relays room events to JetStream so every gateway
// instance can deliver them to its own clients. Broadcast only enqueues;
// Run does the publishing.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      msgPublisher
	config  JetStreamConfig
	queue   chan events.Envelope
	dropped atomic.Uint64
}

func NewJetStreamPublisher(cfg JetStreamConfig) (*JetStreamPublisher, error) {
	nc, err := Connect(cfg.URL, cfg.MaxReconnects, cfg.ReconnectWait)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := ensureStream(context.Background(), js, cfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	p := newPublisher(js, cfg)
	p.nc = nc
	return p, nil
}

func newPublisher(js msgPublisher, cfg JetStreamConfig) *JetStreamPublisher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultJetStreamConfig().QueueSize
	}
	return &JetStreamPublisher{
		js:     js,
		config: cfg,
		queue:  make(chan events.Envelope, cfg.QueueSize),
	}
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg JetStreamConfig) error {
	sc := jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Room timer and membership events",
		Subjects:    []string{fmt.Sprintf("%s.>", cfg.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		MaxMsgs:     cfg.MaxMsgs,
		Storage:     jetstream.MemoryStorage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		if _, err = js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", cfg.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", cfg.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

// Broadcast queues env for publishing. A full queue drops the event; the
// next tick re-sends the room's snapshot anyway.
func (p *JetStreamPublisher) Broadcast(env events.Envelope) {
	select {
	case p.queue <- env:
	default:
		p.dropped.Add(1)
		log.Warn().
			Str("room_id", env.RoomID).
			Str("event_type", string(env.Type)).
			Msg("relay queue full, dropping event")
	}
}

// Run publishes queued envelopes until ctx is cancelled.
func (p *JetStreamPublisher) Run(ctx context.Context) {
	log.Info().Str("stream", p.config.StreamName).Msg("event relay started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event relay shutting down")
			return
		case env := <-p.queue:
			if err := p.Publish(ctx, env); err != nil {
				log.Error().
					Err(err).
					Str("room_id", env.RoomID).
					Str("event_type", string(env.Type)).
					Msg("failed to relay event")
			}
		}
	}
}

// Publish sends one envelope to the stream, deduplicated by event id.
func (p *JetStreamPublisher) Publish(ctx context.Context, env events.Envelope) error {
	subject := p.config.Subject(string(env.Type))

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(env.Type)},
			"Room-ID":    []string{env.RoomID},
			"Event-ID":   []string{env.ID},
		},
	},
		jetstream.WithMsgID(env.ID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", env.ID).
		Uint64("sequence", ack.Sequence).
		Msg("published to JetStream")
	return nil
}

// Dropped returns how many events were discarded because the queue was full.
func (p *JetStreamPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Connected reports whether the NATS connection is up.
func (p *JetStreamPublisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
