package timersync

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/internal/events"
	"github.com/mcdev12/focusroom/go/internal/models"
	"github.com/mcdev12/focusroom/go/internal/rooms"
	"github.com/mcdev12/focusroom/go/internal/timer"
)

type roomLock struct {
	mu   sync.Mutex
	refs int
}

// roomLoop is the registry entry of one running room. room holds the copy
// read on the latest tick and is only touched while holding the room lock.
type roomLoop struct {
	gen    uint64
	cancel context.CancelFunc
	room   *models.Room
}

// lockRoom serializes commands and ticks of one room. Entries are dropped
// once nobody holds or waits on them.
func (s *Service) lockRoom(roomID uuid.UUID) func() {
	s.locksMu.Lock()
	l, ok := s.locks[roomID]
	if !ok {
		l = &roomLock{}
		s.locks[roomID] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, roomID)
		}
		s.locksMu.Unlock()
	}
}

// ensureLoop starts the room's loop unless one is already running, in which
// case it only refreshes the cached room. Callers hold the room lock.
func (s *Service) ensureLoop(room *models.Room) {
	s.loopsMu.Lock()
	defer s.loopsMu.Unlock()

	if s.closed {
		return
	}
	if l, ok := s.loops[room.ID]; ok {
		l.room = room.Clone()
		return
	}

	s.nextGen++
	ctx, cancel := context.WithCancel(s.baseCtx)
	l := &roomLoop{gen: s.nextGen, cancel: cancel, room: room.Clone()}
	s.loops[room.ID] = l

	s.loopsWG.Add(1)
	go s.runLoop(ctx, room.ID, l)

	log.Debug().
		Str("room_id", room.ID.String()).
		Uint64("generation", l.gen).
		Msg("room loop started")
}

func (s *Service) refreshLoop(room *models.Room) {
	s.loopsMu.Lock()
	defer s.loopsMu.Unlock()
	if l, ok := s.loops[room.ID]; ok {
		l.room = room.Clone()
	}
}

// haltLoop cancels and unregisters the room's loop. It does not wait for the
// goroutine: a tick blocked on the room lock sees it is no longer current
// and exits without broadcasting.
func (s *Service) haltLoop(roomID uuid.UUID) {
	s.loopsMu.Lock()
	defer s.loopsMu.Unlock()

	if l, ok := s.loops[roomID]; ok {
		l.cancel()
		delete(s.loops, roomID)
		log.Debug().
			Str("room_id", roomID.String()).
			Uint64("generation", l.gen).
			Msg("room loop halted")
	}
}

// removeLoop unregisters l if it is still the room's current loop.
func (s *Service) removeLoop(roomID uuid.UUID, l *roomLoop) {
	s.loopsMu.Lock()
	defer s.loopsMu.Unlock()

	if cur, ok := s.loops[roomID]; ok && cur == l {
		l.cancel()
		delete(s.loops, roomID)
	}
}

func (s *Service) isCurrent(roomID uuid.UUID, l *roomLoop) bool {
	s.loopsMu.Lock()
	defer s.loopsMu.Unlock()
	return s.loops[roomID] == l
}

func (s *Service) runLoop(ctx context.Context, roomID uuid.UUID, l *roomLoop) {
	defer s.loopsWG.Done()

	ticker := s.clock.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !s.tick(ctx, roomID, l) {
				return
			}
		}
	}
}

// tick re-broadcasts the running snapshot, or completes the session once it
// has run out. It returns false when the loop should end.
func (s *Service) tick(ctx context.Context, roomID uuid.UUID, l *roomLoop) bool {
	unlock := s.lockRoom(roomID)
	defer unlock()

	if !s.isCurrent(roomID, l) {
		return false
	}
	s.ticks.Add(1)

	if ok, live := s.reload(ctx, roomID, l); !live {
		return false
	} else if !ok {
		return true
	}

	now := s.clock.Now()
	if _, expired := timer.CheckExpiry(l.room.Timer, now); !expired {
		s.emit(roomID, events.EventTypeTimerUpdate, now, events.NewTimerUpdatePayload(l.room.Timer))
		return true
	}

	var transition timer.Transition
	updated, err := s.store.UpdateRoom(ctx, roomID, func(room *models.Room) error {
		if !room.IsActive {
			return ErrRoomNotFound
		}
		if _, expired := timer.CheckExpiry(room.Timer, now); !expired {
			return rooms.ErrNoChange
		}
		room.Timer, transition = timer.Advance(room.Settings, room.Timer, now)
		return nil
	})

	switch {
	case errors.Is(err, rooms.ErrNoChange):
		return s.adoptPersisted(ctx, roomID, l)
	case errors.Is(err, ErrRoomNotFound):
		log.Debug().Str("room_id", roomID.String()).Msg("room gone, halting loop")
		s.removeLoop(roomID, l)
		return false
	case err != nil:
		if ctx.Err() != nil {
			return false
		}
		log.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Msg("failed to persist session completion, halting room loop")
		s.removeLoop(roomID, l)
		return false
	}

	l.room = updated

	log.Info().
		Str("room_id", roomID.String()).
		Str("previous_session", string(transition.Previous)).
		Str("next_session", string(transition.Next)).
		Bool("requires_manual_start", transition.RequiresManualStart).
		Msg("session complete")

	s.emit(roomID, events.EventTypeTimerComplete, now, events.TimerCompletePayload{
		PreviousSession:     transition.Previous,
		NextSession:         transition.Next,
		RequiresManualStart: transition.RequiresManualStart,
	})
	s.emit(roomID, events.EventTypeTimerUpdate, now, events.NewTimerUpdatePayload(updated.Timer))

	if !updated.Timer.IsRunning {
		s.removeLoop(roomID, l)
		return false
	}
	return true
}

// reload replaces the loop's copy of the room with the persisted one, so a
// stop, skip, restart or deactivation written by another instance is picked
// up before anything is broadcast. live is false when the loop should end;
// ok is false when this tick should be skipped.
func (s *Service) reload(ctx context.Context, roomID uuid.UUID, l *roomLoop) (ok, live bool) {
	fresh, err := s.store.GetRoom(ctx, roomID)
	switch {
	case err != nil && ctx.Err() != nil:
		return false, false
	case errors.Is(err, ErrRoomNotFound):
		log.Debug().Str("room_id", roomID.String()).Msg("room gone, halting loop")
		s.removeLoop(roomID, l)
		return false, false
	case err != nil:
		log.Warn().Err(err).Str("room_id", roomID.String()).Msg("failed to read room, skipping tick")
		return false, true
	case !fresh.IsActive || !fresh.Timer.IsRunning:
		log.Debug().
			Str("room_id", roomID.String()).
			Bool("active", fresh.IsActive).
			Msg("timer no longer running, halting loop")
		s.removeLoop(roomID, l)
		return false, false
	}
	l.room = fresh
	return true, true
}

// adoptPersisted reloads the room when the stored snapshot no longer matches
// the cached one.
func (s *Service) adoptPersisted(ctx context.Context, roomID uuid.UUID, l *roomLoop) bool {
	fresh, err := s.store.GetRoom(ctx, roomID)
	if err != nil || !fresh.IsActive || !fresh.Timer.IsRunning {
		s.removeLoop(roomID, l)
		return false
	}
	l.room = fresh
	return true
}
