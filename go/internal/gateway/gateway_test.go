package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/mcdev12/focusroom/go/internal/events"
	"github.com/mcdev12/focusroom/go/internal/rooms"
	"github.com/mcdev12/focusroom/go/internal/timer"
	"github.com/mcdev12/focusroom/go/internal/timersync"
)

type fixture struct {
	clock  *clockwork.FakeClock
	app    *rooms.App
	timers *timersync.Service
	cm     *ConnectionManager
	mux    *http.ServeMux
	srv    *httptest.Server
	roomID uuid.UUID
	admin  uuid.UUID
	member uuid.UUID
}

func newFixture(t *testing.T, config ConnectionConfig) *fixture {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	repo := rooms.NewMemoryRepository()
	app := rooms.NewApp(repo, clock, time.Hour)
	cm := NewConnectionManager(config)
	timers := timersync.NewService(repo, cm, clock, time.Second)
	app.AddNotifier(timers)

	svc, err := NewService(Config{}, cm, app, timers, clock)
	require.NoError(t, err)

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)

	ctx, cancel := context.WithCancel(context.Background())
	go cm.Start(ctx)

	t.Cleanup(func() {
		cancel()
		srv.Close()
		timers.Shutdown()
	})

	f := &fixture{
		clock:  clock,
		app:    app,
		timers: timers,
		cm:     cm,
		mux:    mux,
		srv:    srv,
		admin:  uuid.New(),
		member: uuid.New(),
	}

	room, err := app.CreateRoom(context.Background(), rooms.CreateRoomRequest{Name: "deep work", CreatorID: f.admin})
	require.NoError(t, err)
	_, err = app.JoinRoom(context.Background(), room.ID, f.member)
	require.NoError(t, err)
	f.roomID = room.ID
	return f
}

func (f *fixture) wsURL(roomID, userID string) string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/room?room_id=" + roomID + "&user_id=" + userID
}

func (f *fixture) dial(t *testing.T, userID uuid.UUID) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(f.roomID.String(), userID.String()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, cmdType events.CommandType, data interface{}) {
	t.Helper()
	frame, err := events.EncodeCommand(cmdType, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) events.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env events.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func readUpdate(t *testing.T, conn *websocket.Conn) *events.TimerUpdatePayload {
	t.Helper()
	env := readEnvelope(t, conn)
	require.Equal(t, events.EventTypeTimerUpdate, env.Type)
	payload, err := events.ParsePayload(env)
	require.NoError(t, err)
	return payload.(*events.TimerUpdatePayload)
}

func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "expected no frame")
}

func TestConnectRejectsBadRequests(t *testing.T) {
	f := newFixture(t, DefaultConnectionConfig())

	tests := []struct {
		name   string
		roomID string
		userID string
		status int
	}{
		{"missing room", "", f.admin.String(), http.StatusBadRequest},
		{"bad room id", "nope", f.admin.String(), http.StatusBadRequest},
		{"bad user id", f.roomID.String(), "nope", http.StatusBadRequest},
		{"unknown room", uuid.New().String(), f.admin.String(), http.StatusNotFound},
		{"not a member", f.roomID.String(), uuid.New().String(), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(f.wsURL(tt.roomID, tt.userID), nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestConnectSendsCurrentSnapshot(t *testing.T) {
	f := newFixture(t, DefaultConnectionConfig())

	conn := f.dial(t, f.member)
	update := readUpdate(t, conn)
	assert.False(t, update.IsRunning)
	assert.Nil(t, update.StartTime)
}

func TestStartIsBroadcastToRoom(t *testing.T) {
	f := newFixture(t, DefaultConnectionConfig())

	admin := f.dial(t, f.admin)
	member := f.dial(t, f.member)
	readUpdate(t, admin)
	readUpdate(t, member)

	send(t, admin, events.CommandTypeStart, events.StartCommand{RoomID: f.roomID.String()})

	for _, conn := range []*websocket.Conn{admin, member} {
		update := readUpdate(t, conn)
		assert.True(t, update.IsRunning)
		require.NotNil(t, update.Duration)
		assert.Equal(t, 25*60, *update.Duration)
		require.NotNil(t, update.EndTime)
		assert.Equal(t, f.clock.Now().Add(25*time.Minute), update.EndTime.UTC())
	}
}

func TestLeavingParticipantIsDisconnected(t *testing.T) {
	f := newFixture(t, DefaultConnectionConfig())

	admin := f.dial(t, f.admin)
	member := f.dial(t, f.member)
	readUpdate(t, admin)
	readUpdate(t, member)
	require.Equal(t, 2, f.cm.GetConnectionStats().TotalConnections)

	_, err := f.app.LeaveRoom(context.Background(), f.roomID, f.member)
	require.NoError(t, err)

	for _, conn := range []*websocket.Conn{admin, member} {
		env := readEnvelope(t, conn)
		assert.Equal(t, events.EventTypeParticipantLeft, env.Type)
		payload, err := events.ParsePayload(env)
		require.NoError(t, err)
		assert.Equal(t, f.member.String(), payload.(*events.ParticipantLeftPayload).UserID)
	}

	require.NoError(t, member.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = member.ReadMessage()
	var closeErr *websocket.CloseError
	assert.ErrorAs(t, err, &closeErr)
	assert.Eventually(t, func() bool {
		return f.cm.GetConnectionStats().TotalConnections == 1
	}, 2*time.Second, 10*time.Millisecond)

	send(t, admin, events.CommandTypeStart, events.StartCommand{RoomID: f.roomID.String()})
	assert.True(t, readUpdate(t, admin).IsRunning)
}

func TestNonAdminCommandIsDroppedSilently(t *testing.T) {
	f := newFixture(t, DefaultConnectionConfig())

	member := f.dial(t, f.member)
	readUpdate(t, member)

	send(t, member, events.CommandTypeStart, events.StartCommand{RoomID: f.roomID.String()})

	assert.Eventually(t, func() bool {
		return f.timers.Stats().DroppedCommands == 1
	}, 2*time.Second, 10*time.Millisecond)
	expectSilence(t, member)

	snap, err := f.timers.Snapshot(context.Background(), f.roomID)
	require.NoError(t, err)
	assert.False(t, snap.IsRunning)
}

func TestSyncAnswersOnlyRequester(t *testing.T) {
	f := newFixture(t, DefaultConnectionConfig())

	admin := f.dial(t, f.admin)
	member := f.dial(t, f.member)
	readUpdate(t, admin)
	readUpdate(t, member)

	send(t, member, events.CommandTypeSync, events.SyncCommand{RoomID: f.roomID.String()})

	update := readUpdate(t, member)
	assert.False(t, update.IsRunning)
	expectSilence(t, admin)
}

func TestCommandForOtherRoomIsIgnored(t *testing.T) {
	f := newFixture(t, DefaultConnectionConfig())

	admin := f.dial(t, f.admin)
	readUpdate(t, admin)

	send(t, admin, events.CommandTypeSync, events.SyncCommand{RoomID: uuid.New().String()})
	expectSilence(t, admin)
}

func TestCommandRateLimit(t *testing.T) {
	config := DefaultConnectionConfig()
	config.CommandRate = rate.Every(time.Hour)
	config.CommandBurst = 1
	f := newFixture(t, config)

	member := f.dial(t, f.member)
	readUpdate(t, member)

	send(t, member, events.CommandTypeSync, events.SyncCommand{RoomID: f.roomID.String()})
	send(t, member, events.CommandTypeSync, events.SyncCommand{RoomID: f.roomID.String()})

	readUpdate(t, member)
	expectSilence(t, member)
}

func TestStatsEndpoint(t *testing.T) {
	f := newFixture(t, DefaultConnectionConfig())

	readUpdate(t, f.dial(t, f.admin))
	readUpdate(t, f.dial(t, f.member))

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		TotalConnections int             `json:"total_connections"`
		ActiveRooms      int             `json:"active_rooms"`
		Timers           timersync.Stats `json:"timers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 1, stats.ActiveRooms)
	assert.Equal(t, 0, stats.Timers.ActiveLoops)
}

func TestTimerStateEndpoint(t *testing.T) {
	f := newFixture(t, DefaultConnectionConfig())

	_, err := f.timers.HandleStart(context.Background(), f.roomID, f.admin, timer.StartOptions{})
	require.NoError(t, err)
	f.clock.Advance(90 * time.Second)

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/"+f.roomID.String()+"/timer", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TimerStateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.IsRunning)
	assert.Equal(t, 25*60-90, resp.TimeRemaining)
	require.NotNil(t, resp.EndTime)

	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/"+uuid.NewString()+"/timer", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/nope/timer", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventConsumerRelaysToConnections(t *testing.T) {
	f := newFixture(t, DefaultConnectionConfig())
	ec := &EventConsumer{connectionManager: f.cm}

	member := f.dial(t, f.member)
	readUpdate(t, member)

	env, err := events.NewEnvelope(f.roomID, events.EventTypeAutoModeChanged, f.clock.Now(), events.AutoModeChangedPayload{AutoMode: true})
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)

	require.NoError(t, ec.processMessage(data))

	got := readEnvelope(t, member)
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, events.EventTypeAutoModeChanged, got.Type)

	assert.Error(t, ec.processMessage([]byte("{")))
	assert.Error(t, ec.processMessage([]byte(`{"type":"timer.exploded","data":{}}`)))
}
