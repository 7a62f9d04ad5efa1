package events

import (
	"time"

	"github.com/mcdev12/focusroom/go/internal/models"
)

// TimerUpdatePayload is the full timer snapshot. It is sent on every tick and
// after every command; clients must treat repeats as idempotent.
type TimerUpdatePayload struct {
	SessionType models.SessionType `json:"sessionType"`
	StartTime   *time.Time         `json:"startTime"`
	EndTime     *time.Time         `json:"endTime"`
	Duration    *int               `json:"duration"` // seconds
	IsRunning   bool               `json:"isRunning"`
	LastUpdated time.Time          `json:"lastUpdated"`
}

// NewTimerUpdatePayload converts a persisted snapshot into its wire form.
func NewTimerUpdatePayload(snap models.TimerSnapshot) TimerUpdatePayload {
	return TimerUpdatePayload{
		SessionType: snap.SessionType,
		StartTime:   snap.StartTime,
		EndTime:     snap.EndTime(),
		Duration:    snap.Duration,
		IsRunning:   snap.IsRunning,
		LastUpdated: snap.LastUpdated,
	}
}

// Snapshot converts the payload back into a timer snapshot.
func (p TimerUpdatePayload) Snapshot() models.TimerSnapshot {
	return models.TimerSnapshot{
		SessionType: p.SessionType,
		StartTime:   p.StartTime,
		Duration:    p.Duration,
		IsRunning:   p.IsRunning,
		LastUpdated: p.LastUpdated,
	}
}

// TimerCompletePayload is sent when a session runs out naturally
type TimerCompletePayload struct {
	PreviousSession     models.SessionType `json:"previousSession"`
	NextSession         models.SessionType `json:"nextSession"`
	RequiresManualStart bool               `json:"requiresManualStart"`
}

// TimerStoppedPayload is sent after an admin stop
type TimerStoppedPayload struct{}

// TimerSkippedPayload is sent after an admin skips a break
type TimerSkippedPayload struct {
	SkippedSession models.SessionType `json:"skippedSession"`
	NextSession    models.SessionType `json:"nextSession"`
}

// AutoModeChangedPayload is sent when the room's auto mode flag changes
type AutoModeChangedPayload struct {
	AutoMode bool `json:"autoMode"`
}

// AdminChangedPayload is sent when admin rights move to another participant
type AdminChangedPayload struct {
	AdminID string `json:"adminId"`
}

// ParticipantLeftPayload is sent when a participant leaves the room. Their
// open connections to the room are closed after it is delivered.
type ParticipantLeftPayload struct {
	UserID string `json:"userId"`
}

// RoomDeactivatedPayload is sent when a room goes dormant or loses its last member
type RoomDeactivatedPayload struct {
	DeactivatedAt time.Time `json:"deactivatedAt"`
}
