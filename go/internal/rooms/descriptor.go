package rooms

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	_ "google.golang.org/protobuf/types/known/structpb" // registers google/protobuf/struct.proto
)

const (
	// RoomServiceName is the fully-qualified name of the room service.
	RoomServiceName = "focusroom.room.v1.RoomService"

	RoomServiceCreateRoomProcedure      = "/focusroom.room.v1.RoomService/CreateRoom"
	RoomServiceGetRoomProcedure         = "/focusroom.room.v1.RoomService/GetRoom"
	RoomServiceListPublicRoomsProcedure = "/focusroom.room.v1.RoomService/ListPublicRooms"
	RoomServiceJoinRoomProcedure        = "/focusroom.room.v1.RoomService/JoinRoom"
	RoomServiceLeaveRoomProcedure       = "/focusroom.room.v1.RoomService/LeaveRoom"
	RoomServiceTransferAdminProcedure   = "/focusroom.room.v1.RoomService/TransferAdmin"
	RoomServiceUpdateSettingsProcedure  = "/focusroom.room.v1.RoomService/UpdateSettings"
	RoomServiceReactivateRoomProcedure  = "/focusroom.room.v1.RoomService/ReactivateRoom"
)

var roomServiceMethods = []string{
	"CreateRoom",
	"GetRoom",
	"ListPublicRooms",
	"JoinRoom",
	"LeaveRoom",
	"TransferAdmin",
	"UpdateSettings",
	"ReactivateRoom",
}

var (
	descriptorOnce sync.Once
	serviceDesc    protoreflect.ServiceDescriptor
	descriptorErr  error
)

// RoomServiceDescriptor returns the descriptor of the room service. Every
// method takes and returns google.protobuf.Struct. The file is registered
// in the global registry on first use so reflection can resolve it.
func RoomServiceDescriptor() (protoreflect.ServiceDescriptor, error) {
	descriptorOnce.Do(func() {
		methods := make([]*descriptorpb.MethodDescriptorProto, 0, len(roomServiceMethods))
		for _, name := range roomServiceMethods {
			methods = append(methods, &descriptorpb.MethodDescriptorProto{
				Name:       proto.String(name),
				InputType:  proto.String(".google.protobuf.Struct"),
				OutputType: proto.String(".google.protobuf.Struct"),
			})
		}

		fdp := &descriptorpb.FileDescriptorProto{
			Name:       proto.String("focusroom/room/v1/room.proto"),
			Package:    proto.String("focusroom.room.v1"),
			Dependency: []string{"google/protobuf/struct.proto"},
			Syntax:     proto.String("proto3"),
			Service: []*descriptorpb.ServiceDescriptorProto{{
				Name:   proto.String("RoomService"),
				Method: methods,
			}},
		}

		fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
		if err != nil {
			descriptorErr = fmt.Errorf("build room service descriptor: %w", err)
			return
		}
		if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
			descriptorErr = fmt.Errorf("register room service descriptor: %w", err)
			return
		}
		serviceDesc = fd.Services().ByName("RoomService")
	})
	return serviceDesc, descriptorErr
}
