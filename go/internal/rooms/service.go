package rooms

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mcdev12/focusroom/go/internal/models"
)

// UserIDHeader carries the caller's participant id on every room request.
const UserIDHeader = "X-User-ID"

// RoomsApp defines what the service layer needs from the rooms application
type RoomsApp interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListPublicRooms(ctx context.Context, limit int) ([]models.Room, error)
	JoinRoom(ctx context.Context, roomID, userID uuid.UUID) (*models.Room, error)
	LeaveRoom(ctx context.Context, roomID, userID uuid.UUID) (*models.Room, error)
	TransferAdmin(ctx context.Context, roomID, callerID, newAdminID uuid.UUID) (*models.Room, error)
	UpdateSettings(ctx context.Context, roomID, callerID uuid.UUID, req UpdateSettingsRequest) (*models.Room, error)
	ReactivateRoom(ctx context.Context, roomID, callerID uuid.UUID) (*models.Room, error)
}

type roomRequest = connect.Request[structpb.Struct]
type roomResponse = connect.Response[structpb.Struct]

// Service implements the RoomService connect API. Requests and responses are
// google.protobuf.Struct values decoded into the types in messages.go.
type Service struct {
	app RoomsApp
}

// NewService creates a new rooms connect service
func NewService(app RoomsApp) *Service {
	return &Service{app: app}
}

// NewRoomServiceHandler builds the HTTP handler for the room service and
// returns the path prefix to mount it on.
func NewRoomServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler, error) {
	desc, err := RoomServiceDescriptor()
	if err != nil {
		return "", nil, err
	}
	methods := desc.Methods()

	unary := func(procedure, method string, fn func(context.Context, *roomRequest) (*roomResponse, error)) *connect.Handler {
		return connect.NewUnaryHandler(
			procedure,
			fn,
			connect.WithSchema(methods.ByName(protoreflect.Name(method))),
			connect.WithHandlerOptions(opts...),
		)
	}

	routes := map[string]*connect.Handler{
		RoomServiceCreateRoomProcedure:      unary(RoomServiceCreateRoomProcedure, "CreateRoom", svc.CreateRoom),
		RoomServiceGetRoomProcedure:         unary(RoomServiceGetRoomProcedure, "GetRoom", svc.GetRoom),
		RoomServiceListPublicRoomsProcedure: unary(RoomServiceListPublicRoomsProcedure, "ListPublicRooms", svc.ListPublicRooms),
		RoomServiceJoinRoomProcedure:        unary(RoomServiceJoinRoomProcedure, "JoinRoom", svc.JoinRoom),
		RoomServiceLeaveRoomProcedure:       unary(RoomServiceLeaveRoomProcedure, "LeaveRoom", svc.LeaveRoom),
		RoomServiceTransferAdminProcedure:   unary(RoomServiceTransferAdminProcedure, "TransferAdmin", svc.TransferAdmin),
		RoomServiceUpdateSettingsProcedure:  unary(RoomServiceUpdateSettingsProcedure, "UpdateSettings", svc.UpdateSettings),
		RoomServiceReactivateRoomProcedure:  unary(RoomServiceReactivateRoomProcedure, "ReactivateRoom", svc.ReactivateRoom),
	}

	return "/" + RoomServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.ServeHTTP(w, r)
	}), nil
}

// CreateRoom creates a room owned by the caller
func (s *Service) CreateRoom(ctx context.Context, req *roomRequest) (*roomResponse, error) {
	callerID, err := callerFromRequest(req)
	if err != nil {
		return nil, err
	}
	var msg CreateRoomMessage
	if err := decodeRequest(req, &msg); err != nil {
		return nil, err
	}
	settings, err := msg.RoomSettings()
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	room, err := s.app.CreateRoom(ctx, CreateRoomRequest{
		Name:      msg.Name,
		CreatorID: callerID,
		Settings:  settings,
	})
	if err != nil {
		return nil, toConnectError(err)
	}
	return newRoomResponse(room)
}

// GetRoom retrieves an active room
func (s *Service) GetRoom(ctx context.Context, req *roomRequest) (*roomResponse, error) {
	var msg RoomRefMessage
	if err := decodeRequest(req, &msg); err != nil {
		return nil, err
	}
	roomID, err := msg.ID()
	if err != nil {
		return nil, err
	}

	room, err := s.app.GetRoom(ctx, roomID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return newRoomResponse(room)
}

// ListPublicRooms lists joinable public rooms
func (s *Service) ListPublicRooms(ctx context.Context, req *roomRequest) (*roomResponse, error) {
	var msg ListPublicRoomsMessage
	if err := decodeRequest(req, &msg); err != nil {
		return nil, err
	}

	rooms, err := s.app.ListPublicRooms(ctx, msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}
	if rooms == nil {
		rooms = []models.Room{}
	}
	return newRoomResponse(ListPublicRoomsResponse{Rooms: rooms})
}

// JoinRoom adds the caller to a room
func (s *Service) JoinRoom(ctx context.Context, req *roomRequest) (*roomResponse, error) {
	return s.withCallerAndRoom(ctx, req, s.app.JoinRoom)
}

// LeaveRoom removes the caller from a room
func (s *Service) LeaveRoom(ctx context.Context, req *roomRequest) (*roomResponse, error) {
	return s.withCallerAndRoom(ctx, req, s.app.LeaveRoom)
}

// ReactivateRoom restores a dormant room
func (s *Service) ReactivateRoom(ctx context.Context, req *roomRequest) (*roomResponse, error) {
	return s.withCallerAndRoom(ctx, req, s.app.ReactivateRoom)
}

// TransferAdmin hands admin rights to another participant
func (s *Service) TransferAdmin(ctx context.Context, req *roomRequest) (*roomResponse, error) {
	callerID, err := callerFromRequest(req)
	if err != nil {
		return nil, err
	}
	var msg TransferAdminMessage
	if err := decodeRequest(req, &msg); err != nil {
		return nil, err
	}
	roomID, err := parseMessageID("room_id", msg.RoomID)
	if err != nil {
		return nil, err
	}
	newAdminID, err := parseMessageID("new_admin_id", msg.NewAdminID)
	if err != nil {
		return nil, err
	}

	room, err := s.app.TransferAdmin(ctx, roomID, callerID, newAdminID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return newRoomResponse(room)
}

// UpdateSettings applies a partial settings update
func (s *Service) UpdateSettings(ctx context.Context, req *roomRequest) (*roomResponse, error) {
	callerID, err := callerFromRequest(req)
	if err != nil {
		return nil, err
	}
	var msg UpdateSettingsMessage
	if err := decodeRequest(req, &msg); err != nil {
		return nil, err
	}
	roomID, err := parseMessageID("room_id", msg.RoomID)
	if err != nil {
		return nil, err
	}
	if msg.AutoMode != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("auto_mode is changed through the realtime channel"))
	}

	room, err := s.app.UpdateSettings(ctx, roomID, callerID, msg.toRequest())
	if err != nil {
		return nil, toConnectError(err)
	}
	return newRoomResponse(room)
}

func (s *Service) withCallerAndRoom(
	ctx context.Context,
	req *roomRequest,
	fn func(ctx context.Context, roomID, userID uuid.UUID) (*models.Room, error),
) (*roomResponse, error) {
	callerID, err := callerFromRequest(req)
	if err != nil {
		return nil, err
	}
	var msg RoomRefMessage
	if err := decodeRequest(req, &msg); err != nil {
		return nil, err
	}
	roomID, err := msg.ID()
	if err != nil {
		return nil, err
	}

	room, err := fn(ctx, roomID, callerID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return newRoomResponse(room)
}

func callerFromRequest(req *roomRequest) (uuid.UUID, error) {
	id, err := models.ParseParticipantID(req.Header().Get(UserIDHeader))
	if err != nil {
		return uuid.Nil, connect.NewError(connect.CodeUnauthenticated, fmt.Errorf("missing or invalid %s header: %w", UserIDHeader, err))
	}
	return id, nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrNotAdmin), errors.Is(err, ErrNotMember):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, ErrInvalidSettings):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrRoomFull), errors.Is(err, ErrRoomActive):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func newRoomResponse(v interface{}) (*roomResponse, error) {
	msg, err := toStruct(v)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}
