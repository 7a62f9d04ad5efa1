package rooms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focusroom/go/internal/models"
	"github.com/mcdev12/focusroom/go/internal/timer"
)

// DefaultDormancyThreshold is how long a room may go without a timer
// mutation before the sweep marks it dormant.
const DefaultDormancyThreshold = 24 * time.Hour

// RoomsRepository defines what the app layer needs from the repository
type RoomsRepository interface {
	CreateRoom(ctx context.Context, room *models.Room) error
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	// UpdateRoom runs fn against the latest persisted copy of the room while
	// holding the row, then saves the result. fn errors abort the write.
	UpdateRoom(ctx context.Context, id uuid.UUID, fn func(room *models.Room) error) (*models.Room, error)
	ListPublicRooms(ctx context.Context, limit int) ([]models.Room, error)
	ListIdleRooms(ctx context.Context, lastUpdatedBefore time.Time) ([]uuid.UUID, error)
	ListRunningRooms(ctx context.Context) ([]uuid.UUID, error)
}

// EventKind identifies a membership-level room change.
type EventKind string

const (
	EventAdminChanged EventKind = "admin_changed"
	EventDeactivated  EventKind = "deactivated"
	EventReactivated  EventKind = "reactivated"
	EventLeft         EventKind = "left"
)

// RoomEvent is emitted to notifiers after a membership change is persisted.
type RoomEvent struct {
	Kind    EventKind
	RoomID  uuid.UUID
	AdminID uuid.UUID
	UserID  uuid.UUID // set for EventLeft
}

// Notifier receives room events. Implementations must not block.
type Notifier interface {
	NotifyRoomEvent(ctx context.Context, event RoomEvent)
}

// CreateRoomRequest carries the inputs of a room creation.
type CreateRoomRequest struct {
	Name      string
	CreatorID uuid.UUID
	Settings  *models.RoomSettings
}

// UpdateSettingsRequest carries a partial settings update. AutoMode is not
// part of it; auto mode is switched through the timer sync service.
type UpdateSettingsRequest struct {
	WorkMinutes     *int
	BreakMinutes    *int
	MaxParticipants *int
	ChatEnabled     *bool
	IsPublic        *bool
}

// App handles room business logic
type App struct {
	repo              RoomsRepository
	clock             clockwork.Clock
	dormancyThreshold time.Duration

	notifiersMu sync.RWMutex
	notifiers   []Notifier
}

// NewApp creates a new rooms App
func NewApp(repo RoomsRepository, clock clockwork.Clock, dormancyThreshold time.Duration) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if dormancyThreshold <= 0 {
		dormancyThreshold = DefaultDormancyThreshold
	}
	return &App{
		repo:              repo,
		clock:             clock,
		dormancyThreshold: dormancyThreshold,
	}
}

// AddNotifier registers a notifier for room events.
func (a *App) AddNotifier(n Notifier) {
	a.notifiersMu.Lock()
	defer a.notifiersMu.Unlock()
	a.notifiers = append(a.notifiers, n)
}

func (a *App) notify(ctx context.Context, event RoomEvent) {
	a.notifiersMu.RLock()
	notifiers := append([]Notifier(nil), a.notifiers...)
	a.notifiersMu.RUnlock()

	for _, n := range notifiers {
		n.NotifyRoomEvent(ctx, event)
	}
}

// CreateRoom creates a room with the creator as its only member and admin.
func (a *App) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidSettings)
	}
	if req.CreatorID == uuid.Nil {
		return nil, fmt.Errorf("creator id is required")
	}

	settings := models.DefaultRoomSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	now := a.clock.Now()
	room := &models.Room{
		ID:           uuid.New(),
		Name:         name,
		Settings:     settings,
		Participants: []uuid.UUID{req.CreatorID},
		AdminID:      req.CreatorID,
		Timer:        timer.NewSnapshot(now),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := a.repo.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	log.Info().
		Str("room_id", room.ID.String()).
		Str("admin_id", room.AdminID.String()).
		Msg("room created")
	return room, nil
}

// GetRoom retrieves an active room by ID
func (a *App) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room, err := a.repo.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if !room.IsActive {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// ListPublicRooms lists active public rooms.
func (a *App) ListPublicRooms(ctx context.Context, limit int) ([]models.Room, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rooms, err := a.repo.ListPublicRooms(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list public rooms: %w", err)
	}
	return rooms, nil
}

// JoinRoom adds userID to the room. Joining twice is a no-op.
func (a *App) JoinRoom(ctx context.Context, roomID, userID uuid.UUID) (*models.Room, error) {
	room, err := a.repo.UpdateRoom(ctx, roomID, func(room *models.Room) error {
		if !room.IsActive {
			return ErrRoomNotFound
		}
		if room.IsMember(userID) {
			return ErrNoChange
		}
		if len(room.Participants) >= room.Settings.MaxParticipants {
			return ErrRoomFull
		}
		room.Participants = append(room.Participants, userID)
		room.UpdatedAt = a.clock.Now()
		return nil
	})
	if errors.Is(err, ErrNoChange) {
		return a.GetRoom(ctx, roomID)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("user_id", userID.String()).
		Int("participants", len(room.Participants)).
		Msg("participant joined room")
	return room, nil
}

// LeaveRoom removes userID from the room. An admin who leaves hands the room
// to the earliest remaining participant; when the last member leaves the
// room is deactivated.
func (a *App) LeaveRoom(ctx context.Context, roomID, userID uuid.UUID) (*models.Room, error) {
	var (
		adminChanged bool
		deactivated  bool
	)
	room, err := a.repo.UpdateRoom(ctx, roomID, func(room *models.Room) error {
		adminChanged, deactivated = false, false
		if !room.IsActive {
			return ErrRoomNotFound
		}
		if !room.IsMember(userID) {
			return ErrNotMember
		}

		remaining := make([]uuid.UUID, 0, len(room.Participants))
		for _, id := range room.Participants {
			if id != userID {
				remaining = append(remaining, id)
			}
		}
		room.Participants = remaining
		now := a.clock.Now()
		room.UpdatedAt = now

		if len(remaining) == 0 {
			room.IsActive = false
			room.DormantAt = &now
			deactivated = true
			return nil
		}
		if room.AdminID == userID {
			room.AdminID = remaining[0]
			adminChanged = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("user_id", userID.String()).
		Bool("admin_changed", adminChanged).
		Bool("deactivated", deactivated).
		Msg("participant left room")

	a.notify(ctx, RoomEvent{Kind: EventLeft, RoomID: roomID, UserID: userID})
	switch {
	case deactivated:
		a.notify(ctx, RoomEvent{Kind: EventDeactivated, RoomID: roomID})
	case adminChanged:
		a.notify(ctx, RoomEvent{Kind: EventAdminChanged, RoomID: roomID, AdminID: room.AdminID})
	}
	return room, nil
}

// TransferAdmin hands admin rights from the current admin to another member.
func (a *App) TransferAdmin(ctx context.Context, roomID, callerID, newAdminID uuid.UUID) (*models.Room, error) {
	room, err := a.repo.UpdateRoom(ctx, roomID, func(room *models.Room) error {
		if !room.IsActive {
			return ErrRoomNotFound
		}
		if !room.IsAdmin(callerID) {
			return ErrNotAdmin
		}
		if !room.IsMember(newAdminID) {
			return ErrNotMember
		}
		if newAdminID == callerID {
			return ErrNoChange
		}
		room.AdminID = newAdminID
		room.UpdatedAt = a.clock.Now()
		return nil
	})
	if errors.Is(err, ErrNoChange) {
		return a.GetRoom(ctx, roomID)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("room_id", roomID.String()).
		Str("admin_id", newAdminID.String()).
		Msg("room admin transferred")
	a.notify(ctx, RoomEvent{Kind: EventAdminChanged, RoomID: roomID, AdminID: newAdminID})
	return room, nil
}

// UpdateSettings applies an admin-only partial settings update.
func (a *App) UpdateSettings(ctx context.Context, roomID, callerID uuid.UUID, req UpdateSettingsRequest) (*models.Room, error) {
	return a.repo.UpdateRoom(ctx, roomID, func(room *models.Room) error {
		if !room.IsActive {
			return ErrRoomNotFound
		}
		if !room.IsAdmin(callerID) {
			return ErrNotAdmin
		}

		next := room.Settings
		if req.WorkMinutes != nil {
			next.WorkMinutes = *req.WorkMinutes
		}
		if req.BreakMinutes != nil {
			next.BreakMinutes = *req.BreakMinutes
		}
		if req.MaxParticipants != nil {
			next.MaxParticipants = *req.MaxParticipants
		}
		if req.ChatEnabled != nil {
			next.ChatEnabled = *req.ChatEnabled
		}
		if req.IsPublic != nil {
			next.IsPublic = *req.IsPublic
		}
		if err := ValidateSettings(next); err != nil {
			return err
		}
		if next.MaxParticipants < len(room.Participants) {
			return fmt.Errorf("%w: max participants below current membership", ErrInvalidSettings)
		}

		room.Settings = next
		room.UpdatedAt = a.clock.Now()
		return nil
	})
}

// ReactivateRoom restores a dormant room.
func (a *App) ReactivateRoom(ctx context.Context, roomID, callerID uuid.UUID) (*models.Room, error) {
	room, err := a.repo.UpdateRoom(ctx, roomID, func(room *models.Room) error {
		if room.IsActive {
			return ErrRoomActive
		}
		if !room.IsMember(callerID) {
			// a room emptied by its last member comes back owned by the caller
			if len(room.Participants) > 0 {
				return ErrNotMember
			}
			room.Participants = []uuid.UUID{callerID}
			room.AdminID = callerID
		}
		now := a.clock.Now()
		room.IsActive = true
		room.DormantAt = nil
		room.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("room_id", roomID.String()).Msg("room reactivated")
	a.notify(ctx, RoomEvent{Kind: EventReactivated, RoomID: roomID, AdminID: room.AdminID})
	return room, nil
}

// SweepDormant marks rooms dormant that have no non-admin participants and
// no timer mutation within the dormancy threshold. It returns the ids of
// the rooms it deactivated.
func (a *App) SweepDormant(ctx context.Context) ([]uuid.UUID, error) {
	now := a.clock.Now()
	cutoff := now.Add(-a.dormancyThreshold)

	candidates, err := a.repo.ListIdleRooms(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list idle rooms: %w", err)
	}

	var swept []uuid.UUID
	for _, id := range candidates {
		_, err := a.repo.UpdateRoom(ctx, id, func(room *models.Room) error {
			if !room.IsActive || room.NonAdminCount() > 0 || !room.Timer.LastUpdated.Before(cutoff) {
				return ErrNoChange
			}
			room.IsActive = false
			room.DormantAt = &now
			room.UpdatedAt = now
			return nil
		})
		if errors.Is(err, ErrNoChange) {
			continue
		}
		if err != nil {
			log.Error().Err(err).Str("room_id", id.String()).Msg("failed to mark room dormant")
			continue
		}
		swept = append(swept, id)
		a.notify(ctx, RoomEvent{Kind: EventDeactivated, RoomID: id})
	}

	if len(swept) > 0 {
		log.Info().Int("count", len(swept)).Msg("marked rooms dormant")
	}
	return swept, nil
}

// ValidateSettings checks room settings against the allowed bounds.
func ValidateSettings(s models.RoomSettings) error {
	if s.WorkMinutes < models.MinWorkMinutes || s.WorkMinutes > models.MaxWorkMinutes {
		return fmt.Errorf("%w: work minutes must be between %d and %d", ErrInvalidSettings, models.MinWorkMinutes, models.MaxWorkMinutes)
	}
	if s.BreakMinutes < models.MinBreakMinutes || s.BreakMinutes > models.MaxBreakMinutes {
		return fmt.Errorf("%w: break minutes must be between %d and %d", ErrInvalidSettings, models.MinBreakMinutes, models.MaxBreakMinutes)
	}
	if s.MaxParticipants < models.MinParticipants || s.MaxParticipants > models.MaxParticipantsCap {
		return fmt.Errorf("%w: max participants must be between %d and %d", ErrInvalidSettings, models.MinParticipants, models.MaxParticipantsCap)
	}
	return nil
}
