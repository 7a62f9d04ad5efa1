// Package timer holds the pure transition logic of a room timer. Nothing in
// here performs I/O; callers persist and broadcast the snapshots it returns.
package timer

import (
	"errors"
	"time"

	"github.com/mcdev12/focusroom/go/internal/models"
)

// ErrInvalidTransition is returned when an operation is not legal for the
// current snapshot, e.g. skipping a work session.
var ErrInvalidTransition = errors.New("invalid timer transition")

// StartOptions carries the optional overrides of a start command.
type StartOptions struct {
	SessionType     *models.SessionType
	DurationSeconds *int
}

// Transition describes a natural session completion.
type Transition struct {
	Previous            models.SessionType
	Next                models.SessionType
	RequiresManualStart bool
}

// NewSnapshot returns the initial work/stopped snapshot of a new room.
func NewSnapshot(now time.Time) models.TimerSnapshot {
	return models.TimerSnapshot{
		SessionType: models.SessionTypeWork,
		LastUpdated: now,
	}
}

// Start begins a fresh countdown. It is callable mid-session and always
// restarts the chosen session type from its full duration.
func Start(settings models.RoomSettings, snap models.TimerSnapshot, opts StartOptions, now time.Time) models.TimerSnapshot {
	sessionType := snap.SessionType
	if opts.SessionType != nil && opts.SessionType.Valid() {
		sessionType = *opts.SessionType
	}
	if !sessionType.Valid() {
		sessionType = models.SessionTypeWork
	}

	duration := settings.DurationSeconds(sessionType)
	if opts.DurationSeconds != nil && *opts.DurationSeconds > 0 {
		duration = *opts.DurationSeconds
	}

	startTime := now
	return models.TimerSnapshot{
		SessionType: sessionType,
		StartTime:   &startTime,
		Duration:    &duration,
		IsRunning:   true,
		LastUpdated: touch(snap.LastUpdated, now),
	}
}

// Stop halts the countdown, keeping the session type so the next start
// resumes that type from its full configured duration.
func Stop(snap models.TimerSnapshot, now time.Time) models.TimerSnapshot {
	return models.TimerSnapshot{
		SessionType: sessionOrWork(snap.SessionType),
		IsRunning:   false,
		LastUpdated: touch(snap.LastUpdated, now),
	}
}

// Skip ends a break early and leaves the timer paused on a work session.
// Skip never auto-starts work, regardless of the room's auto mode.
func Skip(settings models.RoomSettings, snap models.TimerSnapshot, now time.Time) (models.TimerSnapshot, error) {
	if snap.SessionType != models.SessionTypeBreak {
		return snap, ErrInvalidTransition
	}

	duration := settings.DurationSeconds(models.SessionTypeWork)
	return models.TimerSnapshot{
		SessionType: models.SessionTypeWork,
		Duration:    &duration,
		IsRunning:   false,
		LastUpdated: touch(snap.LastUpdated, now),
	}, nil
}

// Remaining returns the whole seconds left on the snapshot at now. Elapsed
// time is floored to whole seconds, so the result is a non-negative integer
// that only reaches 0 once the full duration has passed. A stopped snapshot
// reports its literal duration.
func Remaining(snap models.TimerSnapshot, now time.Time) int {
	if !snap.IsRunning || snap.StartTime == nil || snap.Duration == nil {
		if snap.Duration == nil {
			return 0
		}
		return max(0, *snap.Duration)
	}

	elapsed := int(now.Sub(*snap.StartTime) / time.Second)
	if elapsed < 0 {
		elapsed = 0
	}
	return max(0, *snap.Duration-elapsed)
}

// CheckExpiry reports the remaining seconds and whether a running snapshot
// has completed. Zero remaining on a running timer is always expiry.
func CheckExpiry(snap models.TimerSnapshot, now time.Time) (int, bool) {
	remaining := Remaining(snap, now)
	return remaining, snap.IsRunning && remaining <= 0
}

// Advance performs the natural completion transition to the other session
// type. In auto mode the next session starts at now; otherwise it is shown
// with its full duration but left stopped.
func Advance(settings models.RoomSettings, snap models.TimerSnapshot, now time.Time) (models.TimerSnapshot, Transition) {
	previous := sessionOrWork(snap.SessionType)
	next := previous.Other()
	duration := settings.DurationSeconds(next)

	transition := Transition{
		Previous:            previous,
		Next:                next,
		RequiresManualStart: !settings.AutoMode,
	}

	if settings.AutoMode {
		startTime := now
		return models.TimerSnapshot{
			SessionType: next,
			StartTime:   &startTime,
			Duration:    &duration,
			IsRunning:   true,
			LastUpdated: touch(snap.LastUpdated, now),
		}, transition
	}

	return models.TimerSnapshot{
		SessionType: next,
		Duration:    &duration,
		IsRunning:   false,
		LastUpdated: touch(snap.LastUpdated, now),
	}, transition
}

// touch keeps lastUpdated monotonically non-decreasing.
func touch(prev, now time.Time) time.Time {
	if now.Before(prev) {
		return prev
	}
	return now
}

func sessionOrWork(t models.SessionType) models.SessionType {
	if t.Valid() {
		return t
	}
	return models.SessionTypeWork
}
