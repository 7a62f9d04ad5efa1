package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionType is the kind of session a room timer is counting.
type SessionType string

const (
	SessionTypeWork  SessionType = "work"
	SessionTypeBreak SessionType = "break"
)

// Valid reports whether s is one of the two known session types.
func (s SessionType) Valid() bool {
	return s == SessionTypeWork || s == SessionTypeBreak
}

// Other returns the session type that follows s.
func (s SessionType) Other() SessionType {
	if s == SessionTypeWork {
		return SessionTypeBreak
	}
	return SessionTypeWork
}

// Room settings bounds.
const (
	MinWorkMinutes     = 5
	MaxWorkMinutes     = 60
	MinBreakMinutes    = 1
	MaxBreakMinutes    = 30
	MinParticipants    = 2
	MaxParticipantsCap = 15

	DefaultWorkMinutes     = 25
	DefaultBreakMinutes    = 5
	DefaultMaxParticipants = 10
)

// RoomSettings holds the admin-writable configuration of a room.
type RoomSettings struct {
	WorkMinutes     int  `json:"work_minutes"`
	BreakMinutes    int  `json:"break_minutes"`
	MaxParticipants int  `json:"max_participants"`
	ChatEnabled     bool `json:"chat_enabled"`
	IsPublic        bool `json:"is_public"`
	AutoMode        bool `json:"auto_mode"`
}

// DefaultRoomSettings returns the settings used when a room is created without overrides.
func DefaultRoomSettings() RoomSettings {
	return RoomSettings{
		WorkMinutes:     DefaultWorkMinutes,
		BreakMinutes:    DefaultBreakMinutes,
		MaxParticipants: DefaultMaxParticipants,
		ChatEnabled:     true,
		IsPublic:        true,
		AutoMode:        false,
	}
}

// DurationSeconds returns the configured length of a session type in whole seconds.
func (s RoomSettings) DurationSeconds(t SessionType) int {
	if t == SessionTypeBreak {
		return s.BreakMinutes * 60
	}
	return s.WorkMinutes * 60
}

// TimerSnapshot is the authoritative timer state embedded in a room.
// A stopped snapshot has no StartTime; a running one always has both
// StartTime and Duration.
type TimerSnapshot struct {
	SessionType SessionType `json:"session_type"`
	StartTime   *time.Time  `json:"start_time,omitempty"`
	Duration    *int        `json:"duration,omitempty"` // seconds
	IsRunning   bool        `json:"is_running"`
	LastUpdated time.Time   `json:"last_updated"`
}

// EndTime returns the instant the running session ends, or nil when stopped.
func (t TimerSnapshot) EndTime() *time.Time {
	if !t.IsRunning || t.StartTime == nil || t.Duration == nil {
		return nil
	}
	end := t.StartTime.Add(time.Duration(*t.Duration) * time.Second)
	return &end
}

// Room represents a shared focus room.
type Room struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	Settings     RoomSettings  `json:"settings"`
	Participants []uuid.UUID   `json:"participants"`
	AdminID      uuid.UUID     `json:"admin_id"`
	Timer        TimerSnapshot `json:"timer"`
	DormantAt    *time.Time    `json:"dormant_at,omitempty"`
	IsActive     bool          `json:"is_active"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// IsMember reports whether userID is a participant of the room.
func (r *Room) IsMember(userID uuid.UUID) bool {
	for _, id := range r.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// IsAdmin reports whether userID is the room's current admin.
func (r *Room) IsAdmin(userID uuid.UUID) bool {
	return r.AdminID == userID
}

// NonAdminCount returns the number of participants other than the admin.
func (r *Room) NonAdminCount() int {
	n := 0
	for _, id := range r.Participants {
		if id != r.AdminID {
			n++
		}
	}
	return n
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (r *Room) Clone() *Room {
	c := *r
	c.Participants = append([]uuid.UUID(nil), r.Participants...)
	if r.Timer.StartTime != nil {
		st := *r.Timer.StartTime
		c.Timer.StartTime = &st
	}
	if r.Timer.Duration != nil {
		d := *r.Timer.Duration
		c.Timer.Duration = &d
	}
	if r.DormantAt != nil {
		da := *r.DormantAt
		c.DormantAt = &da
	}
	return &c
}
