package rooms

import "errors"

var (
	// ErrRoomNotFound is returned for unknown or deactivated rooms.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull is returned when a join would exceed max participants.
	ErrRoomFull = errors.New("room is full")
	// ErrNotMember is returned when the caller is not a participant.
	ErrNotMember = errors.New("not a room member")
	// ErrNotAdmin is returned when a non-admin attempts an admin operation.
	ErrNotAdmin = errors.New("caller is not the room admin")
	// ErrInvalidSettings is returned for settings outside the allowed bounds.
	ErrInvalidSettings = errors.New("invalid room settings")
	// ErrRoomActive is returned when reactivating a room that is already active.
	ErrRoomActive = errors.New("room is already active")
	// ErrNoChange lets an UpdateRoom callback abort without writing.
	ErrNoChange = errors.New("no change")
)
