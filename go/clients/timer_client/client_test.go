package timer_client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/focusroom/go/internal/events"
	"github.com/mcdev12/focusroom/go/internal/models"
)

// fakeServer accepts one room socket, pushes a snapshot and records the
// commands it receives.
type fakeServer struct {
	t        *testing.T
	roomID   uuid.UUID
	userID   uuid.UUID
	initial  models.TimerSnapshot
	mu       sync.Mutex
	commands []events.Command
	query    chan string
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ws/room":
		s.query <- r.URL.RawQuery
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		env, err := events.NewEnvelope(s.roomID, events.EventTypeTimerUpdate, t0, events.NewTimerUpdatePayload(s.initial))
		if err != nil {
			return
		}
		if err := conn.WriteJSON(env); err != nil {
			return
		}
		for {
			var cmd events.Command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			s.mu.Lock()
			s.commands = append(s.commands, cmd)
			s.mu.Unlock()
		}
	case "/api/rooms/" + s.roomID.String() + "/timer":
		if r.Header.Get("X-User-ID") != s.userID.String() {
			http.Error(w, "missing user", http.StatusUnauthorized)
			return
		}
		duration := 300
		json.NewEncoder(w).Encode(TimerState{
			RoomID:      s.roomID.String(),
			SessionType: models.SessionTypeBreak,
			Duration:    &duration,
			LastUpdated: t0.Add(time.Hour),
			ServerTime:  t0.Add(time.Hour),
		})
	default:
		http.NotFound(w, r)
	}
}

func (s *fakeServer) received() []events.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Command(nil), s.commands...)
}

func newTestClient(t *testing.T) (*Client, *fakeServer, *clockwork.FakeClock) {
	t.Helper()
	fs := &fakeServer{
		t:       t,
		roomID:  uuid.New(),
		userID:  uuid.New(),
		initial: running(models.SessionTypeWork, t0, 1500),
		query:   make(chan string, 1),
	}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)

	clock := clockwork.NewFakeClockAt(t0.Add(10 * time.Second))
	c := NewClient(Config{
		BaseURL:       srv.URL,
		RoomID:        fs.roomID,
		UserID:        fs.userID,
		FrameInterval: 100 * time.Millisecond,
		Clock:         clock,
	})
	return c, fs, clock
}

func TestClientAppliesUpdatesAndRenders(t *testing.T) {
	c, fs, clock := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan events.Envelope, 4)
	c.OnEvent(func(env events.Envelope) { updates <- env })

	require.NoError(t, c.Connect(ctx))
	select {
	case q := <-fs.query:
		assert.Contains(t, q, "room_id="+fs.roomID.String())
		assert.Contains(t, q, "user_id="+fs.userID.String())
	case <-time.After(2 * time.Second):
		t.Fatal("server saw no connection")
	}

	views := make(chan View, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(v View) { views <- v })
	}()

	select {
	case env := <-updates:
		assert.Equal(t, events.EventTypeTimerUpdate, env.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no update received")
	}

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(100 * time.Millisecond)

	select {
	case v := <-views:
		assert.Equal(t, models.SessionTypeWork, v.SessionType)
		assert.True(t, v.IsRunning)
		// the client clock runs 10s ahead of the event timestamp
		assert.Equal(t, -10*time.Second, c.Reconciler().Offset())
		assert.Equal(t, 1500*time.Second-100*time.Millisecond, v.Remaining)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame rendered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop")
	}
}

func TestClientSendsCommands(t *testing.T) {
	c, fs, _ := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	brk := models.SessionTypeBreak
	duration := 120
	require.NoError(t, c.Start(&brk, &duration))
	require.NoError(t, c.Stop())
	require.NoError(t, c.Skip())
	require.NoError(t, c.SetAutoMode(true))
	require.NoError(t, c.Sync())

	assert.Eventually(t, func() bool { return len(fs.received()) == 5 }, 2*time.Second, 10*time.Millisecond)

	cmds := fs.received()
	var types []events.CommandType
	for _, cmd := range cmds {
		types = append(types, cmd.Type)
	}
	assert.Equal(t, []events.CommandType{
		events.CommandTypeStart,
		events.CommandTypeStop,
		events.CommandTypeSkip,
		events.CommandTypeSetAutoMode,
		events.CommandTypeSync,
	}, types)

	frame, err := json.Marshal(cmds[0])
	require.NoError(t, err)
	decoded, roomID, err := events.DecodeCommand(frame)
	require.NoError(t, err)
	assert.Equal(t, fs.roomID, roomID)
	start := decoded.(*events.StartCommand)
	assert.Equal(t, models.SessionTypeBreak, *start.SessionType)
	assert.Equal(t, 120, *start.Duration)

	frame, err = json.Marshal(cmds[2])
	require.NoError(t, err)
	decoded, _, err = events.DecodeCommand(frame)
	require.NoError(t, err)
	assert.Equal(t, models.SessionTypeBreak, decoded.(*events.SkipCommand).SessionType)
}

func TestClientFetchState(t *testing.T) {
	c, _, clock := newTestClient(t)

	state, err := c.FetchState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SessionTypeBreak, state.SessionType)

	assert.Equal(t, time.Hour-10*time.Second, c.Reconciler().Offset())

	view := c.Reconciler().Frame(clock.Now())
	assert.False(t, view.IsRunning)
	assert.Equal(t, 300*time.Second, view.Remaining)
}

func TestClientNotConnected(t *testing.T) {
	c, _, _ := newTestClient(t)
	assert.Error(t, c.Stop())
	assert.Error(t, c.Run(context.Background(), nil))
}
