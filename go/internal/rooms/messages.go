package rooms

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mcdev12/focusroom/go/internal/models"
)

// Room service messages travel as google.protobuf.Struct values. The types
// below give each one a fixed shape; their json tags are the Struct keys.

// CreateRoomMessage is the CreateRoom request.
type CreateRoomMessage struct {
	Name     string          `json:"name"`
	Settings json.RawMessage `json:"settings,omitempty"` // partial, merged over the defaults
}

// RoomSettings returns the requested settings over the defaults, or nil
// when none were given.
func (m CreateRoomMessage) RoomSettings() (*models.RoomSettings, error) {
	if len(m.Settings) == 0 || string(m.Settings) == "null" {
		return nil, nil
	}
	settings := models.DefaultRoomSettings()
	if err := json.Unmarshal(m.Settings, &settings); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &settings, nil
}

// RoomRefMessage names a room. GetRoom, JoinRoom, LeaveRoom and
// ReactivateRoom take it.
type RoomRefMessage struct {
	RoomID string `json:"room_id"`
}

func (m RoomRefMessage) ID() (uuid.UUID, error) {
	return parseMessageID("room_id", m.RoomID)
}

// ListPublicRoomsMessage is the ListPublicRooms request.
type ListPublicRoomsMessage struct {
	Limit int `json:"limit,omitempty"`
}

// ListPublicRoomsResponse is the ListPublicRooms response.
type ListPublicRoomsResponse struct {
	Rooms []models.Room `json:"rooms"`
}

// TransferAdminMessage is the TransferAdmin request.
type TransferAdminMessage struct {
	RoomID     string `json:"room_id"`
	NewAdminID string `json:"new_admin_id"`
}

// UpdateSettingsMessage is the UpdateSettings request. AutoMode is only
// decoded so it can be rejected.
type UpdateSettingsMessage struct {
	RoomID          string `json:"room_id"`
	WorkMinutes     *int   `json:"work_minutes,omitempty"`
	BreakMinutes    *int   `json:"break_minutes,omitempty"`
	MaxParticipants *int   `json:"max_participants,omitempty"`
	ChatEnabled     *bool  `json:"chat_enabled,omitempty"`
	IsPublic        *bool  `json:"is_public,omitempty"`
	AutoMode        *bool  `json:"auto_mode,omitempty"`
}

func (m UpdateSettingsMessage) toRequest() UpdateSettingsRequest {
	return UpdateSettingsRequest{
		WorkMinutes:     m.WorkMinutes,
		BreakMinutes:    m.BreakMinutes,
		MaxParticipants: m.MaxParticipants,
		ChatEnabled:     m.ChatEnabled,
		IsPublic:        m.IsPublic,
	}
}

// NewRoomRequest wraps a typed message into a room service request.
func NewRoomRequest(msg interface{}) (*connect.Request[structpb.Struct], error) {
	s, err := toStruct(msg)
	if err != nil {
		return nil, err
	}
	return connect.NewRequest(s), nil
}

// DecodeRoomMessage fills dst, a pointer to one of the message types or to
// models.Room, from a Struct.
func DecodeRoomMessage(msg *structpb.Struct, dst interface{}) error {
	raw, err := json.Marshal(msg.AsMap())
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}

// decodeRequest is DecodeRoomMessage with the error mapped to InvalidArgument.
func decodeRequest(req *roomRequest, dst interface{}) error {
	if err := DecodeRoomMessage(req.Msg, dst); err != nil {
		return connect.NewError(connect.CodeInvalidArgument, err)
	}
	return nil
}

// toStruct converts a JSON-tagged value into a protobuf Struct.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return structpb.NewStruct(fields)
}

func parseMessageID(field, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("invalid %s: %w", field, err))
	}
	return id, nil
}
