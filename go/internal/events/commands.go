package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcdev12/focusroom/go/internal/models"
)

// ErrInvalidCommand is returned for malformed client commands.
var ErrInvalidCommand = errors.New("invalid command")

// CommandType names a client-to-server command.
type CommandType string

const (
	CommandTypeStart       CommandType = "timer.start"
	CommandTypeStop        CommandType = "timer.stop"
	CommandTypeSkip        CommandType = "timer.skip"
	CommandTypeSetAutoMode CommandType = "room.setAutoMode"
	CommandTypeSync        CommandType = "timer.sync"
)

// Command is the frame a client sends over the realtime channel.
type Command struct {
	Type CommandType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// StartCommand asks the server to start a session. Both fields are optional.
type StartCommand struct {
	RoomID      string              `json:"roomId"`
	SessionType *models.SessionType `json:"sessionType,omitempty"`
	Duration    *int                `json:"duration,omitempty"` // seconds
}

type StopCommand struct {
	RoomID string `json:"roomId"`
}

// SkipCommand must name the break session being skipped.
type SkipCommand struct {
	RoomID      string             `json:"roomId"`
	SessionType models.SessionType `json:"sessionType"`
}

type SetAutoModeCommand struct {
	RoomID   string `json:"roomId"`
	AutoMode bool   `json:"autoMode"`
}

type SyncCommand struct {
	RoomID string `json:"roomId"`
}

// EncodeCommand builds a command frame ready to be written to the socket.
func EncodeCommand(cmdType CommandType, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s command: %w", cmdType, err)
	}
	return json.Marshal(Command{Type: cmdType, Data: raw})
}

// DecodeCommand parses a frame into one of the typed command structs and
// returns the room it targets.
func DecodeCommand(frame []byte) (interface{}, uuid.UUID, error) {
	var cmd Command
	if err := json.Unmarshal(frame, &cmd); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	var (
		target interface{}
		roomID *string
	)
	switch cmd.Type {
	case CommandTypeStart:
		c := &StartCommand{}
		target, roomID = c, &c.RoomID
	case CommandTypeStop:
		c := &StopCommand{}
		target, roomID = c, &c.RoomID
	case CommandTypeSkip:
		c := &SkipCommand{}
		target, roomID = c, &c.RoomID
	case CommandTypeSetAutoMode:
		c := &SetAutoModeCommand{}
		target, roomID = c, &c.RoomID
	case CommandTypeSync:
		c := &SyncCommand{}
		target, roomID = c, &c.RoomID
	default:
		return nil, uuid.Nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCommand, cmd.Type)
	}

	if len(cmd.Data) > 0 {
		if err := json.Unmarshal(cmd.Data, target); err != nil {
			return nil, uuid.Nil, fmt.Errorf("%w: %s data: %v", ErrInvalidCommand, cmd.Type, err)
		}
	}

	id, err := uuid.Parse(*roomID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%w: roomId: %v", ErrInvalidCommand, err)
	}

	if start, ok := target.(*StartCommand); ok {
		if start.SessionType != nil && !start.SessionType.Valid() {
			return nil, uuid.Nil, fmt.Errorf("%w: unknown session type %q", ErrInvalidCommand, *start.SessionType)
		}
		if start.Duration != nil && *start.Duration <= 0 {
			return nil, uuid.Nil, fmt.Errorf("%w: duration must be positive", ErrInvalidCommand)
		}
	}

	return target, id, nil
}
