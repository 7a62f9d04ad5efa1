package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a server-to-client event.
type EventType string

const (
	EventTypeTimerUpdate     EventType = "timer.update"
	EventTypeTimerComplete   EventType = "timer.complete"
	EventTypeTimerStopped    EventType = "timer.stopped"
	EventTypeTimerSkipped    EventType = "timer.skipped"
	EventTypeAutoModeChanged EventType = "room.autoModeChanged"
	EventTypeAdminChanged    EventType = "room.adminChanged"
	EventTypeRoomDeactivated EventType = "room.deactivated"
	EventTypeParticipantLeft EventType = "room.participantLeft"
)

// Envelope is the base structure of every event sent to room clients
type Envelope struct {
	ID        string          `json:"id"`        // Event UUID
	RoomID    string          `json:"roomId"`    // Room UUID
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Server time the event was built
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// NewEnvelope wraps payload for roomID.
func NewEnvelope(roomID uuid.UUID, eventType EventType, at time.Time, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:        uuid.New().String(),
		RoomID:    roomID.String(),
		Type:      eventType,
		Timestamp: at,
		Data:      data,
	}, nil
}

// ParsePayload decodes the envelope data into the payload struct for its type.
func ParsePayload(env Envelope) (interface{}, error) {
	var target interface{}
	switch env.Type {
	case EventTypeTimerUpdate:
		target = &TimerUpdatePayload{}
	case EventTypeTimerComplete:
		target = &TimerCompletePayload{}
	case EventTypeTimerStopped:
		target = &TimerStoppedPayload{}
	case EventTypeTimerSkipped:
		target = &TimerSkippedPayload{}
	case EventTypeAutoModeChanged:
		target = &AutoModeChangedPayload{}
	case EventTypeAdminChanged:
		target = &AdminChangedPayload{}
	case EventTypeRoomDeactivated:
		target = &RoomDeactivatedPayload{}
	case EventTypeParticipantLeft:
		target = &ParticipantLeftPayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s payload: %w", env.Type, err)
	}
	return target, nil
}
