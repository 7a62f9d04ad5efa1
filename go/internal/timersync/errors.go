package timersync

import (
	"errors"

	"github.com/mcdev12/focusroom/go/internal/rooms"
	"github.com/mcdev12/focusroom/go/internal/timer"
)

// Command outcomes. The realtime path drops all of them silently; they are
// returned so tests and API callers can tell what happened.
var (
	ErrPermissionDenied  = errors.New("caller is not the room admin")
	ErrInvalidTransition = timer.ErrInvalidTransition
	ErrRoomNotFound      = rooms.ErrRoomNotFound
	ErrPersistence       = errors.New("failed to persist timer snapshot")
)

// IsDropped reports whether err is one of the routine outcomes that leave a
// room untouched without being a fault.
func IsDropped(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrRoomNotFound)
}
