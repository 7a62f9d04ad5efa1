// Package timersync is the only writer of room timer snapshots. It applies
// admin commands through the timer state machine, persists the result and
// keeps one re-broadcast loop per room whose timer is running.
package timersync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/internal/events"
	"github.com/mcdev12/focusroom/go/internal/models"
	"github.com/mcdev12/focusroom/go/internal/rooms"
	"github.com/mcdev12/focusroom/go/internal/timer"
)

// DefaultTickInterval is the re-broadcast cadence of a running room.
const DefaultTickInterval = time.Second

// RoomStore defines what the sync service needs from room persistence
type RoomStore interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	UpdateRoom(ctx context.Context, id uuid.UUID, fn func(room *models.Room) error) (*models.Room, error)
	ListRunningRooms(ctx context.Context) ([]uuid.UUID, error)
}

// Stats is a point-in-time view of the service.
type Stats struct {
	ActiveLoops     int    `json:"active_loops"`
	Ticks           uint64 `json:"ticks"`
	DroppedCommands uint64 `json:"dropped_commands"`
}

// Service bridges the timer state machine to persistence and transport.
type Service struct {
	store        RoomStore
	broadcaster  Broadcaster
	clock        clockwork.Clock
	tickInterval time.Duration
	instanceID   string

	locksMu sync.Mutex
	locks   map[uuid.UUID]*roomLock

	loopsMu sync.Mutex
	loops   map[uuid.UUID]*roomLoop
	nextGen uint64
	closed  bool
	baseCtx context.Context
	stopAll context.CancelFunc
	loopsWG sync.WaitGroup
	ticks   atomic.Uint64
	dropped atomic.Uint64
}

// NewService creates a sync service. A nil clock means the real clock.
func NewService(store RoomStore, broadcaster Broadcaster, clock clockwork.Clock, tickInterval time.Duration) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	baseCtx, stopAll := context.WithCancel(context.Background())
	return &Service{
		store:        store,
		broadcaster:  broadcaster,
		clock:        clock,
		tickInterval: tickInterval,
		instanceID:   uuid.New().String()[:8],
		locks:        make(map[uuid.UUID]*roomLock),
		loops:        make(map[uuid.UUID]*roomLoop),
		baseCtx:      baseCtx,
		stopAll:      stopAll,
	}
}

var _ rooms.Notifier = (*Service)(nil)

// HandleStart starts (or restarts) a session. Both overrides are optional.
func (s *Service) HandleStart(ctx context.Context, roomID, callerID uuid.UUID, opts timer.StartOptions) (models.TimerSnapshot, error) {
	unlock := s.lockRoom(roomID)
	defer unlock()

	now := s.clock.Now()
	room, err := s.mutate(ctx, roomID, callerID, func(room *models.Room) error {
		room.Timer = timer.Start(room.Settings, room.Timer, opts, now)
		return nil
	})
	if err != nil {
		return models.TimerSnapshot{}, s.dropOrFail("timer.start", roomID, callerID, err)
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("session_type", string(room.Timer.SessionType)).
		Int("duration", *room.Timer.Duration).
		Msg("timer started")

	s.emit(roomID, events.EventTypeTimerUpdate, now, events.NewTimerUpdatePayload(room.Timer))
	s.ensureLoop(room)
	return room.Timer, nil
}

// HandleStop stops the timer, halts the room's loop and announces the stop.
func (s *Service) HandleStop(ctx context.Context, roomID, callerID uuid.UUID) (models.TimerSnapshot, error) {
	unlock := s.lockRoom(roomID)
	defer unlock()

	now := s.clock.Now()
	room, err := s.mutate(ctx, roomID, callerID, func(room *models.Room) error {
		room.Timer = timer.Stop(room.Timer, now)
		return nil
	})
	if err != nil {
		return models.TimerSnapshot{}, s.dropOrFail("timer.stop", roomID, callerID, err)
	}
	s.haltLoop(roomID)

	log.Info().Str("room_id", roomID.String()).Msg("timer stopped")

	s.emit(roomID, events.EventTypeTimerUpdate, now, events.NewTimerUpdatePayload(room.Timer))
	s.emit(roomID, events.EventTypeTimerStopped, now, events.TimerStoppedPayload{})
	return room.Timer, nil
}

// HandleSkip ends a break early. requested is the session type the client
// asked to skip; anything other than a break, on either side, is rejected.
func (s *Service) HandleSkip(ctx context.Context, roomID, callerID uuid.UUID, requested models.SessionType) (models.TimerSnapshot, error) {
	unlock := s.lockRoom(roomID)
	defer unlock()

	now := s.clock.Now()
	room, err := s.mutate(ctx, roomID, callerID, func(room *models.Room) error {
		if requested != models.SessionTypeBreak {
			return ErrInvalidTransition
		}
		next, err := timer.Skip(room.Settings, room.Timer, now)
		if err != nil {
			return err
		}
		room.Timer = next
		return nil
	})
	if err != nil {
		return models.TimerSnapshot{}, s.dropOrFail("timer.skip", roomID, callerID, err)
	}
	s.haltLoop(roomID)

	log.Info().Str("room_id", roomID.String()).Msg("break skipped")

	s.emit(roomID, events.EventTypeTimerUpdate, now, events.NewTimerUpdatePayload(room.Timer))
	s.emit(roomID, events.EventTypeTimerSkipped, now, events.TimerSkippedPayload{
		SkippedSession: models.SessionTypeBreak,
		NextSession:    room.Timer.SessionType,
	})
	return room.Timer, nil
}

// HandleSetAutoMode persists the room's auto mode flag.
func (s *Service) HandleSetAutoMode(ctx context.Context, roomID, callerID uuid.UUID, enabled bool) (bool, error) {
	unlock := s.lockRoom(roomID)
	defer unlock()

	now := s.clock.Now()
	room, err := s.mutate(ctx, roomID, callerID, func(room *models.Room) error {
		room.Settings.AutoMode = enabled
		room.UpdatedAt = now
		return nil
	})
	if err != nil {
		return false, s.dropOrFail("room.setAutoMode", roomID, callerID, err)
	}
	s.refreshLoop(room)

	log.Info().
		Str("room_id", roomID.String()).
		Bool("auto_mode", enabled).
		Msg("auto mode changed")

	s.emit(roomID, events.EventTypeAutoModeChanged, now, events.AutoModeChangedPayload{AutoMode: enabled})
	return room.Settings.AutoMode, nil
}

// Snapshot returns the persisted timer snapshot of an active room.
func (s *Service) Snapshot(ctx context.Context, roomID uuid.UUID) (models.TimerSnapshot, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return models.TimerSnapshot{}, err
	}
	if !room.IsActive {
		return models.TimerSnapshot{}, ErrRoomNotFound
	}
	return room.Timer, nil
}

// SyncEnvelope builds a timer.update event for a single client, e.g. on
// connect or in answer to timer.sync.
func (s *Service) SyncEnvelope(ctx context.Context, roomID uuid.UUID) (events.Envelope, error) {
	snap, err := s.Snapshot(ctx, roomID)
	if err != nil {
		return events.Envelope{}, err
	}
	return events.NewEnvelope(roomID, events.EventTypeTimerUpdate, s.clock.Now(), events.NewTimerUpdatePayload(snap))
}

// NotifyRoomEvent reacts to membership changes made by the rooms app.
func (s *Service) NotifyRoomEvent(ctx context.Context, event rooms.RoomEvent) {
	now := s.clock.Now()
	switch event.Kind {
	case rooms.EventDeactivated:
		s.HaltRoom(event.RoomID)
		s.emit(event.RoomID, events.EventTypeRoomDeactivated, now, events.RoomDeactivatedPayload{DeactivatedAt: now})
	case rooms.EventAdminChanged:
		s.emit(event.RoomID, events.EventTypeAdminChanged, now, events.AdminChangedPayload{AdminID: event.AdminID.String()})
	case rooms.EventLeft:
		s.emit(event.RoomID, events.EventTypeParticipantLeft, now, events.ParticipantLeftPayload{UserID: event.UserID.String()})
	case rooms.EventReactivated:
		if err := s.resumeRoom(ctx, event.RoomID); err != nil {
			log.Error().Err(err).Str("room_id", event.RoomID.String()).Msg("failed to resume reactivated room")
		}
	}
}

// HaltRoom cancels the room's loop, if any.
func (s *Service) HaltRoom(roomID uuid.UUID) {
	s.haltLoop(roomID)
}

// Resume restarts loops for rooms persisted with a running timer, e.g.
// after a process restart. A timer that ran out while no loop was alive
// completes on the first tick.
func (s *Service) Resume(ctx context.Context) error {
	ids, err := s.store.ListRunningRooms(ctx)
	if err != nil {
		return fmt.Errorf("failed to list running rooms: %w", err)
	}
	for _, id := range ids {
		if err := s.resumeRoom(ctx, id); err != nil {
			log.Error().Err(err).Str("room_id", id.String()).Msg("failed to resume room loop")
		}
	}
	log.Info().Int("rooms", len(ids)).Str("instance", s.instanceID).Msg("resumed running room timers")
	return nil
}

func (s *Service) resumeRoom(ctx context.Context, roomID uuid.UUID) error {
	unlock := s.lockRoom(roomID)
	defer unlock()

	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room.IsActive && room.Timer.IsRunning {
		s.ensureLoop(room)
	}
	return nil
}

// Stats returns loop and command counters.
func (s *Service) Stats() Stats {
	s.loopsMu.Lock()
	active := len(s.loops)
	s.loopsMu.Unlock()
	return Stats{
		ActiveLoops:     active,
		Ticks:           s.ticks.Load(),
		DroppedCommands: s.dropped.Load(),
	}
}

// mutate runs fn against the latest persisted room after the common
// active-room and admin checks.
func (s *Service) mutate(ctx context.Context, roomID, callerID uuid.UUID, fn func(room *models.Room) error) (*models.Room, error) {
	room, err := s.store.UpdateRoom(ctx, roomID, func(room *models.Room) error {
		if !room.IsActive {
			return ErrRoomNotFound
		}
		if !room.IsAdmin(callerID) {
			return ErrPermissionDenied
		}
		return fn(room)
	})
	if err != nil {
		if IsDropped(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return room, nil
}

func (s *Service) dropOrFail(command string, roomID, callerID uuid.UUID, err error) error {
	if IsDropped(err) {
		s.dropped.Add(1)
		log.Debug().
			Err(err).
			Str("command", command).
			Str("room_id", roomID.String()).
			Str("caller_id", callerID.String()).
			Msg("command dropped")
		return err
	}
	// the room stays on its last persisted state until the next start
	s.haltLoop(roomID)
	log.Error().
		Err(err).
		Str("command", command).
		Str("room_id", roomID.String()).
		Msg("command failed, room loop halted")
	return err
}

func (s *Service) emit(roomID uuid.UUID, eventType events.EventType, at time.Time, payload interface{}) {
	if s.broadcaster == nil {
		return
	}
	env, err := events.NewEnvelope(roomID, eventType, at, payload)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to build event")
		return
	}
	s.broadcaster.Broadcast(env)
}

// Shutdown cancels every loop and waits for them to exit.
func (s *Service) Shutdown() {
	s.loopsMu.Lock()
	s.closed = true
	n := len(s.loops)
	for id, l := range s.loops {
		l.cancel()
		delete(s.loops, id)
	}
	s.loopsMu.Unlock()

	s.stopAll()
	s.loopsWG.Wait()
	log.Info().Int("loops", n).Str("instance", s.instanceID).Msg("timer sync service shut down")
}
