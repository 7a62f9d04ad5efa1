package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/internal/models"
	"github.com/mcdev12/focusroom/go/internal/rooms"
	"github.com/mcdev12/focusroom/go/internal/timer"
)

// RoomLookup returns active rooms.
type RoomLookup interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
}

// TimerStateResponse is the REST view of a room timer.
type TimerStateResponse struct {
	RoomID        string             `json:"room_id"`
	SessionType   models.SessionType `json:"session_type"`
	StartTime     *time.Time         `json:"start_time,omitempty"`
	EndTime       *time.Time         `json:"end_time,omitempty"`
	Duration      *int               `json:"duration,omitempty"`
	IsRunning     bool               `json:"is_running"`
	LastUpdated   time.Time          `json:"last_updated"`
	TimeRemaining int                `json:"time_remaining_sec"`
	ServerTime    time.Time          `json:"server_time"`
}

// StateHandler serves timer snapshots over plain HTTP for clients that
// poll instead of holding a socket.
type StateHandler struct {
	timers TimerService
	clock  clockwork.Clock
}

func NewStateHandler(timers TimerService, clock clockwork.Clock) *StateHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StateHandler{timers: timers, clock: clock}
}

// HandleGetTimerState handles GET /api/rooms/{id}/timer
func (h *StateHandler) HandleGetTimerState(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid room ID format", http.StatusBadRequest)
		return
	}

	snap, err := h.timers.Snapshot(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			http.Error(w, "Room not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to get timer state")
		http.Error(w, "Failed to get timer state", http.StatusInternalServerError)
		return
	}

	now := h.clock.Now()
	resp := TimerStateResponse{
		RoomID:        roomID.String(),
		SessionType:   snap.SessionType,
		StartTime:     snap.StartTime,
		EndTime:       snap.EndTime(),
		Duration:      snap.Duration,
		IsRunning:     snap.IsRunning,
		LastUpdated:   snap.LastUpdated,
		TimeRemaining: timer.Remaining(snap, now),
		ServerTime:    now,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode timer state response")
	}
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms/{id}/timer", h.HandleGetTimerState)
}
