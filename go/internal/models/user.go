package models

import (
	"fmt"

	"github.com/google/uuid"
)

// ParseParticipantID normalizes an external identity into the participant id
// representation used throughout the room core.
func ParseParticipantID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid participant id %q: %w", raw, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("participant id must not be nil")
	}
	return id, nil
}
