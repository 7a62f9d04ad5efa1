package timer_client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/focusroom/go/internal/models"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func running(sessionType models.SessionType, start time.Time, seconds int) models.TimerSnapshot {
	return models.TimerSnapshot{
		SessionType: sessionType,
		StartTime:   &start,
		Duration:    &seconds,
		IsRunning:   true,
		LastUpdated: start,
	}
}

func stopped(sessionType models.SessionType, seconds int, at time.Time) models.TimerSnapshot {
	return models.TimerSnapshot{
		SessionType: sessionType,
		Duration:    &seconds,
		LastUpdated: at,
	}
}

func TestRemainingInterpolatesFromEndTime(t *testing.T) {
	r := NewReconciler()
	r.Apply(running(models.SessionTypeWork, t0, 1500))

	assert.Equal(t, 1500*time.Second, r.Remaining(t0))
	assert.Equal(t, 1500*time.Second-250*time.Millisecond, r.Remaining(t0.Add(250*time.Millisecond)))

	view := r.Frame(t0.Add(90*time.Second + 500*time.Millisecond))
	assert.Equal(t, 1410, view.RemainingSeconds)
	assert.True(t, view.IsRunning)
	require.NotNil(t, view.EndTime)
	assert.Equal(t, t0.Add(1500*time.Second), *view.EndTime)

	assert.Equal(t, time.Duration(0), r.Remaining(t0.Add(2*time.Hour)))
}

func TestCompletionFiresOncePerSession(t *testing.T) {
	r := NewReconciler()
	var completed []models.SessionType
	r.OnCompleted(func(s models.SessionType) { completed = append(completed, s) })

	r.Apply(running(models.SessionTypeWork, t0, 60))
	r.Frame(t0.Add(59 * time.Second))
	assert.Empty(t, completed)

	r.Frame(t0.Add(60 * time.Second))
	r.Frame(t0.Add(61 * time.Second))
	// a duplicate snapshot of the same session does not re-arm
	r.Apply(running(models.SessionTypeWork, t0, 60))
	r.Frame(t0.Add(62 * time.Second))
	assert.Equal(t, []models.SessionType{models.SessionTypeWork}, completed)

	brk := t0.Add(60 * time.Second)
	r.Apply(running(models.SessionTypeBreak, brk, 30))
	r.Frame(brk.Add(30 * time.Second))
	assert.Equal(t, []models.SessionType{models.SessionTypeWork, models.SessionTypeBreak}, completed)
}

func TestSessionChangeDiscardsInterpolation(t *testing.T) {
	r := NewReconciler()
	r.Apply(running(models.SessionTypeWork, t0, 1500))

	// server auto-advanced earlier than the local countdown expected
	brk := t0.Add(100 * time.Second)
	r.Apply(running(models.SessionTypeBreak, brk, 300))

	view := r.Frame(brk.Add(10 * time.Second))
	assert.Equal(t, models.SessionTypeBreak, view.SessionType)
	assert.Equal(t, 290*time.Second, view.Remaining)
}

func TestStoppedSnapshotFreezesDisplay(t *testing.T) {
	r := NewReconciler()
	fired := false
	r.OnCompleted(func(models.SessionType) { fired = true })

	r.Apply(running(models.SessionTypeWork, t0, 1500))
	r.Apply(stopped(models.SessionTypeWork, 1500, t0.Add(time.Minute)))

	for _, d := range []time.Duration{time.Minute, time.Hour, 24 * time.Hour} {
		view := r.Frame(t0.Add(d))
		assert.False(t, view.IsRunning)
		assert.Equal(t, 1500*time.Second, view.Remaining)
		assert.Equal(t, 1500, view.RemainingSeconds)
		assert.Nil(t, view.EndTime)
	}
	assert.False(t, fired)
}

func TestOlderSnapshotIsIgnored(t *testing.T) {
	r := NewReconciler()
	r.Apply(stopped(models.SessionTypeWork, 1500, t0.Add(time.Minute)))
	r.Apply(running(models.SessionTypeWork, t0, 1500))

	assert.False(t, r.Frame(t0.Add(2*time.Minute)).IsRunning)
}

func TestEmptyReconciler(t *testing.T) {
	r := NewReconciler()
	fired := false
	r.OnCompleted(func(models.SessionType) { fired = true })

	view := r.Frame(t0)
	assert.False(t, view.IsRunning)
	assert.Zero(t, view.Remaining)
	assert.False(t, fired)
}

func TestClockSkewIsCorrected(t *testing.T) {
	r := NewReconciler()
	completed := 0
	local := func(server time.Time) time.Time { return server.Add(30 * time.Second) }

	r.Apply(running(models.SessionTypeWork, t0, 60))
	r.ObserveServerTime(t0, local(t0))
	r.OnCompleted(func(models.SessionType) { completed++ })

	assert.Equal(t, -30*time.Second, r.Offset())
	assert.Equal(t, 60*time.Second, r.Remaining(local(t0)))

	view := r.Frame(local(t0.Add(30 * time.Second)))
	assert.Equal(t, 30, view.RemainingSeconds)
	assert.Zero(t, completed)

	r.Frame(local(t0.Add(60 * time.Second)))
	assert.Equal(t, 1, completed)
}

func TestServerTimeOffsetIsSmoothed(t *testing.T) {
	r := NewReconciler()
	r.ObserveServerTime(t0, t0.Add(-8*time.Second))
	assert.Equal(t, 8*time.Second, r.Offset())

	// one frame delayed by 4s moves the estimate by a quarter of that
	r.ObserveServerTime(t0.Add(time.Second), t0.Add(-3*time.Second))
	assert.Equal(t, 7*time.Second, r.Offset())

	r.ObserveServerTime(time.Time{}, t0)
	assert.Equal(t, 7*time.Second, r.Offset())
}
