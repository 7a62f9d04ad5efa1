package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/internal/models"
	"github.com/mcdev12/focusroom/go/internal/rooms"
	"github.com/mcdev12/focusroom/go/internal/timersync"
)

// WebSocketHandler handles WebSocket upgrade requests for room connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	rooms             RoomLookup
	timers            TimerService
	router            *CommandRouter
}

func NewWebSocketHandler(cm *ConnectionManager, roomLookup RoomLookup, timers TimerService) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		rooms:             roomLookup,
		timers:            timers,
		router:            NewCommandRouter(timers, cm),
	}
}

// HandleRoomConnection handles GET /ws/room?room_id=&user_id=. Only room
// members may connect; they get the current snapshot right away.
func (h *WebSocketHandler) HandleRoomConnection(w http.ResponseWriter, r *http.Request) {
	roomIDStr := r.URL.Query().Get("room_id")
	if roomIDStr == "" {
		http.Error(w, "room_id is required", http.StatusBadRequest)
		return
	}
	roomID, err := uuid.Parse(roomIDStr)
	if err != nil {
		http.Error(w, "invalid room_id format", http.StatusBadRequest)
		return
	}

	userID, err := models.ParseParticipantID(r.URL.Query().Get("user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	room, err := h.rooms.GetRoom(r.Context(), roomID)
	if err != nil {
		if errors.Is(err, rooms.ErrRoomNotFound) {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to load room for connection")
		http.Error(w, "failed to load room", http.StatusInternalServerError)
		return
	}
	if !room.IsMember(userID) {
		http.Error(w, "not a room member", http.StatusForbidden)
		return
	}

	initial, err := h.timers.SyncEnvelope(r.Context(), roomID)
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID.String()).Msg("failed to build initial snapshot")
		http.Error(w, "failed to load timer", http.StatusInternalServerError)
		return
	}

	// Upgrade writes its own error response on failure.
	if _, err := h.connectionManager.UpgradeConnection(w, r, userID, roomID, h.router, &initial); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Str("user_id", userID.String()).
			Msg("failed to upgrade WebSocket connection")
	}
}

type statsResponse struct {
	ConnectionStats
	Timers timersync.Stats `json:"timers"`
}

// HandleConnectionStats returns statistics about active connections
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		ConnectionStats: h.connectionManager.GetConnectionStats(),
		Timers:          h.timers.Stats(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("failed to encode stats response")
	}
}

// RegisterRoutes registers WebSocket routes with an HTTP mux
func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/room", h.HandleRoomConnection)
	mux.HandleFunc("GET /ws/stats", h.HandleConnectionStats)
}
