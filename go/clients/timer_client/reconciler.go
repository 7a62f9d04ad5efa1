package timer_client

import (
	"sync"
	"time"

	"github.com/mcdev12/focusroom/go/internal/models"
	"github.com/mcdev12/focusroom/go/internal/timer"
)

// View is what a client renders for one frame.
type View struct {
	SessionType      models.SessionType
	IsRunning        bool
	Remaining        time.Duration
	RemainingSeconds int
	EndTime          *time.Time
}

// offsetSmoothing weights each new clock sample at 1/offsetSmoothing.
const offsetSmoothing = 4

// Reconciler keeps a smooth local countdown between server snapshots. It
// derives the remaining time from the snapshot's absolute end time on every
// frame, so it neither drifts nor needs a snapshot per frame. Local times are
// shifted by the estimated server clock offset first. It never writes
// anything back: the next server snapshot always replaces local state.
type Reconciler struct {
	mu          sync.Mutex
	snap        models.TimerSnapshot
	hasSnapshot bool
	fired       bool
	offset      time.Duration // server clock minus local clock
	hasOffset   bool
	onCompleted []func(models.SessionType)
}

func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// OnCompleted registers fn to run once when a running session reaches zero
// locally. It is for client side effects only; the server decides what
// happens next.
func (r *Reconciler) OnCompleted(fn func(models.SessionType)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onCompleted = append(r.onCompleted, fn)
}

// Apply adopts a server snapshot. Snapshots older than the current one are
// ignored; a different session discards the local countdown entirely.
func (r *Reconciler) Apply(snap models.TimerSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasSnapshot && snap.LastUpdated.Before(r.snap.LastUpdated) {
		return
	}
	if !r.hasSnapshot || !sameSession(r.snap, snap) {
		r.fired = false
	}
	r.snap = snap
	r.hasSnapshot = true
}

// ObserveServerTime records a server clock reading that arrived at local
// time local. The offset starts at the first sample and then follows a
// moving average, so one delayed frame barely moves it. Zero server times
// are ignored.
func (r *Reconciler) ObserveServerTime(server, local time.Time) {
	if server.IsZero() {
		return
	}
	sample := server.Sub(local)

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasOffset {
		r.offset = sample
		r.hasOffset = true
		return
	}
	r.offset += (sample - r.offset) / offsetSmoothing
}

// Offset returns the estimated server clock minus local clock.
func (r *Reconciler) Offset() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.offset
}

// Remaining returns the time left at local time now. A stopped snapshot reports its
// literal duration.
func (r *Reconciler) Remaining(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return remaining(r.snap, now.Add(r.offset))
}

// Frame computes the view for local time now and fires the completion callbacks the
// first time a running session reaches zero.
func (r *Reconciler) Frame(now time.Time) View {
	r.mu.Lock()
	serverNow := now.Add(r.offset)
	view := View{
		SessionType:      r.snap.SessionType,
		IsRunning:        r.snap.IsRunning,
		Remaining:        remaining(r.snap, serverNow),
		RemainingSeconds: timer.Remaining(r.snap, serverNow),
		EndTime:          r.snap.EndTime(),
	}

	var callbacks []func(models.SessionType)
	if r.hasSnapshot && view.IsRunning && view.Remaining <= 0 && !r.fired {
		r.fired = true
		callbacks = append(callbacks, r.onCompleted...)
	}
	r.mu.Unlock()

	for _, fn := range callbacks {
		fn(view.SessionType)
	}
	return view
}

func remaining(snap models.TimerSnapshot, now time.Time) time.Duration {
	if end := snap.EndTime(); end != nil {
		return max(0, end.Sub(now))
	}
	if snap.Duration == nil {
		return 0
	}
	return time.Duration(*snap.Duration) * time.Second
}

// sameSession reports whether two snapshots describe the same countdown.
func sameSession(a, b models.TimerSnapshot) bool {
	if a.SessionType != b.SessionType {
		return false
	}
	if a.StartTime == nil || b.StartTime == nil {
		return a.StartTime == b.StartTime
	}
	return a.StartTime.Equal(*b.StartTime)
}
