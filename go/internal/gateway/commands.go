package gateway

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/internal/events"
	"github.com/mcdev12/focusroom/go/internal/models"
	"github.com/mcdev12/focusroom/go/internal/timer"
	"github.com/mcdev12/focusroom/go/internal/timersync"
)

// TimerService is the part of timersync the gateway drives.
type TimerService interface {
	HandleStart(ctx context.Context, roomID, callerID uuid.UUID, opts timer.StartOptions) (models.TimerSnapshot, error)
	HandleStop(ctx context.Context, roomID, callerID uuid.UUID) (models.TimerSnapshot, error)
	HandleSkip(ctx context.Context, roomID, callerID uuid.UUID, requested models.SessionType) (models.TimerSnapshot, error)
	HandleSetAutoMode(ctx context.Context, roomID, callerID uuid.UUID, enabled bool) (bool, error)
	Snapshot(ctx context.Context, roomID uuid.UUID) (models.TimerSnapshot, error)
	SyncEnvelope(ctx context.Context, roomID uuid.UUID) (events.Envelope, error)
	Stats() timersync.Stats
}

// CommandRouter decodes client frames and hands them to the timer service.
// Rejected commands get no reply; clients notice the missing state change.
type CommandRouter struct {
	timers TimerService
	cm     *ConnectionManager
}

func NewCommandRouter(timers TimerService, cm *ConnectionManager) *CommandRouter {
	return &CommandRouter{timers: timers, cm: cm}
}

func (r *CommandRouter) HandleCommand(ctx context.Context, conn *Connection, frame []byte) {
	cmd, roomID, err := events.DecodeCommand(frame)
	if err != nil {
		log.Debug().
			Err(err).
			Str("connection_id", conn.ID).
			Msg("ignoring malformed command")
		return
	}
	if roomID != conn.RoomID {
		log.Debug().
			Str("connection_id", conn.ID).
			Str("room_id", roomID.String()).
			Msg("ignoring command for another room")
		return
	}

	var command string
	switch c := cmd.(type) {
	case *events.StartCommand:
		command = string(events.CommandTypeStart)
		_, err = r.timers.HandleStart(ctx, roomID, conn.UserID, timer.StartOptions{
			SessionType:     c.SessionType,
			DurationSeconds: c.Duration,
		})
	case *events.StopCommand:
		command = string(events.CommandTypeStop)
		_, err = r.timers.HandleStop(ctx, roomID, conn.UserID)
	case *events.SkipCommand:
		command = string(events.CommandTypeSkip)
		_, err = r.timers.HandleSkip(ctx, roomID, conn.UserID, c.SessionType)
	case *events.SetAutoModeCommand:
		command = string(events.CommandTypeSetAutoMode)
		_, err = r.timers.HandleSetAutoMode(ctx, roomID, conn.UserID, c.AutoMode)
	case *events.SyncCommand:
		command = string(events.CommandTypeSync)
		var env events.Envelope
		if env, err = r.timers.SyncEnvelope(ctx, roomID); err == nil {
			r.cm.SendTo(conn, env)
		}
	}

	if err != nil && !timersync.IsDropped(err) {
		log.Warn().
			Err(err).
			Str("command", command).
			Str("connection_id", conn.ID).
			Msg("command failed")
	}
}
