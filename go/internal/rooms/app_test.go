package rooms

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/focusroom/go/internal/models"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []RoomEvent
}

func (n *recordingNotifier) NotifyRoomEvent(_ context.Context, event RoomEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []RoomEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]RoomEvent(nil), n.events...)
}

func newTestApp(t *testing.T) (*App, *clockwork.FakeClock, *recordingNotifier) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	app := NewApp(NewMemoryRepository(), clock, time.Hour)
	n := &recordingNotifier{}
	app.AddNotifier(n)
	return app, clock, n
}

func createRoom(t *testing.T, app *App, admin uuid.UUID) *models.Room {
	t.Helper()
	room, err := app.CreateRoom(context.Background(), CreateRoomRequest{Name: "Deep Work", CreatorID: admin})
	require.NoError(t, err)
	return room
}

func TestCreateRoom(t *testing.T) {
	app, clock, _ := newTestApp(t)
	admin := uuid.New()

	room := createRoom(t, app, admin)

	assert.Equal(t, "Deep Work", room.Name)
	assert.Equal(t, admin, room.AdminID)
	assert.Equal(t, []uuid.UUID{admin}, room.Participants)
	assert.True(t, room.IsActive)
	assert.Equal(t, models.DefaultRoomSettings(), room.Settings)
	assert.Equal(t, models.SessionTypeWork, room.Timer.SessionType)
	assert.False(t, room.Timer.IsRunning)
	assert.Equal(t, clock.Now(), room.Timer.LastUpdated)

	got, err := app.GetRoom(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.ID, got.ID)
}

func TestCreateRoom_Validation(t *testing.T) {
	app, _, _ := newTestApp(t)

	_, err := app.CreateRoom(context.Background(), CreateRoomRequest{Name: "  ", CreatorID: uuid.New()})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	bad := models.DefaultRoomSettings()
	bad.WorkMinutes = 90
	_, err = app.CreateRoom(context.Background(), CreateRoomRequest{Name: "x", CreatorID: uuid.New(), Settings: &bad})
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *models.RoomSettings)
		valid  bool
	}{
		{"defaults", func(s *models.RoomSettings) {}, true},
		{"work lower bound", func(s *models.RoomSettings) { s.WorkMinutes = 5 }, true},
		{"work too short", func(s *models.RoomSettings) { s.WorkMinutes = 4 }, false},
		{"work too long", func(s *models.RoomSettings) { s.WorkMinutes = 61 }, false},
		{"break upper bound", func(s *models.RoomSettings) { s.BreakMinutes = 30 }, true},
		{"break zero", func(s *models.RoomSettings) { s.BreakMinutes = 0 }, false},
		{"one participant", func(s *models.RoomSettings) { s.MaxParticipants = 1 }, false},
		{"sixteen participants", func(s *models.RoomSettings) { s.MaxParticipants = 16 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := models.DefaultRoomSettings()
			tt.mutate(&s)
			err := ValidateSettings(s)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSettings)
			}
		})
	}
}

func TestJoinRoom(t *testing.T) {
	app, _, _ := newTestApp(t)
	ctx := context.Background()
	admin, member := uuid.New(), uuid.New()
	room := createRoom(t, app, admin)

	joined, err := app.JoinRoom(ctx, room.ID, member)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{admin, member}, joined.Participants)

	again, err := app.JoinRoom(ctx, room.ID, member)
	require.NoError(t, err)
	assert.Len(t, again.Participants, 2)
}

func TestJoinRoom_Full(t *testing.T) {
	app, _, _ := newTestApp(t)
	ctx := context.Background()
	settings := models.DefaultRoomSettings()
	settings.MaxParticipants = 2
	room, err := app.CreateRoom(ctx, CreateRoomRequest{Name: "pair", CreatorID: uuid.New(), Settings: &settings})
	require.NoError(t, err)

	_, err = app.JoinRoom(ctx, room.ID, uuid.New())
	require.NoError(t, err)

	_, err = app.JoinRoom(ctx, room.ID, uuid.New())
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestJoinRoom_UnknownRoom(t *testing.T) {
	app, _, _ := newTestApp(t)
	_, err := app.JoinRoom(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestLeaveRoom_AdminHandsOver(t *testing.T) {
	app, _, n := newTestApp(t)
	ctx := context.Background()
	admin, first, second := uuid.New(), uuid.New(), uuid.New()
	room := createRoom(t, app, admin)
	_, err := app.JoinRoom(ctx, room.ID, first)
	require.NoError(t, err)
	_, err = app.JoinRoom(ctx, room.ID, second)
	require.NoError(t, err)

	left, err := app.LeaveRoom(ctx, room.ID, admin)
	require.NoError(t, err)

	assert.Equal(t, first, left.AdminID)
	assert.Equal(t, []uuid.UUID{first, second}, left.Participants)
	assert.True(t, left.IsActive)
	assert.Equal(t, []RoomEvent{
		{Kind: EventLeft, RoomID: room.ID, UserID: admin},
		{Kind: EventAdminChanged, RoomID: room.ID, AdminID: first},
	}, n.Events())
}

func TestLeaveRoom_LastMemberDeactivates(t *testing.T) {
	app, clock, n := newTestApp(t)
	ctx := context.Background()
	admin := uuid.New()
	room := createRoom(t, app, admin)

	left, err := app.LeaveRoom(ctx, room.ID, admin)
	require.NoError(t, err)

	assert.False(t, left.IsActive)
	require.NotNil(t, left.DormantAt)
	assert.Equal(t, clock.Now(), *left.DormantAt)
	assert.Equal(t, []RoomEvent{
		{Kind: EventLeft, RoomID: room.ID, UserID: admin},
		{Kind: EventDeactivated, RoomID: room.ID},
	}, n.Events())

	_, err = app.GetRoom(ctx, room.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestLeaveRoom_NotMember(t *testing.T) {
	app, _, _ := newTestApp(t)
	room := createRoom(t, app, uuid.New())

	_, err := app.LeaveRoom(context.Background(), room.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestTransferAdmin(t *testing.T) {
	app, _, n := newTestApp(t)
	ctx := context.Background()
	admin, member := uuid.New(), uuid.New()
	room := createRoom(t, app, admin)
	_, err := app.JoinRoom(ctx, room.ID, member)
	require.NoError(t, err)

	_, err = app.TransferAdmin(ctx, room.ID, member, member)
	assert.ErrorIs(t, err, ErrNotAdmin)

	_, err = app.TransferAdmin(ctx, room.ID, admin, uuid.New())
	assert.ErrorIs(t, err, ErrNotMember)

	updated, err := app.TransferAdmin(ctx, room.ID, admin, member)
	require.NoError(t, err)
	assert.Equal(t, member, updated.AdminID)
	assert.Equal(t, []RoomEvent{{Kind: EventAdminChanged, RoomID: room.ID, AdminID: member}}, n.Events())
}

func TestUpdateSettings(t *testing.T) {
	app, _, _ := newTestApp(t)
	ctx := context.Background()
	admin, member := uuid.New(), uuid.New()
	room := createRoom(t, app, admin)
	_, err := app.JoinRoom(ctx, room.ID, member)
	require.NoError(t, err)

	work := 50
	_, err = app.UpdateSettings(ctx, room.ID, member, UpdateSettingsRequest{WorkMinutes: &work})
	assert.ErrorIs(t, err, ErrNotAdmin)

	updated, err := app.UpdateSettings(ctx, room.ID, admin, UpdateSettingsRequest{WorkMinutes: &work})
	require.NoError(t, err)
	assert.Equal(t, 50, updated.Settings.WorkMinutes)
	assert.Equal(t, models.DefaultBreakMinutes, updated.Settings.BreakMinutes)

	tooLong := 61
	_, err = app.UpdateSettings(ctx, room.ID, admin, UpdateSettingsRequest{WorkMinutes: &tooLong})
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestUpdateSettings_CannotShrinkBelowMembership(t *testing.T) {
	app, _, _ := newTestApp(t)
	ctx := context.Background()
	admin := uuid.New()
	room := createRoom(t, app, admin)
	for i := 0; i < 2; i++ {
		_, err := app.JoinRoom(ctx, room.ID, uuid.New())
		require.NoError(t, err)
	}

	two := 2
	_, err := app.UpdateSettings(ctx, room.ID, admin, UpdateSettingsRequest{MaxParticipants: &two})
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestSweepDormant(t *testing.T) {
	app, clock, n := newTestApp(t)
	ctx := context.Background()

	lonely := createRoom(t, app, uuid.New())
	busyAdmin := uuid.New()
	busy := createRoom(t, app, busyAdmin)
	_, err := app.JoinRoom(ctx, busy.ID, uuid.New())
	require.NoError(t, err)

	swept, err := app.SweepDormant(ctx)
	require.NoError(t, err)
	assert.Empty(t, swept)

	clock.Advance(2 * time.Hour)

	swept, err = app.SweepDormant(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{lonely.ID}, swept)
	assert.Equal(t, []RoomEvent{{Kind: EventDeactivated, RoomID: lonely.ID}}, n.Events())

	_, err = app.GetRoom(ctx, lonely.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	_, err = app.GetRoom(ctx, busy.ID)
	assert.NoError(t, err)
}

func TestReactivateRoom(t *testing.T) {
	app, clock, n := newTestApp(t)
	ctx := context.Background()
	admin := uuid.New()
	room := createRoom(t, app, admin)

	_, err := app.ReactivateRoom(ctx, room.ID, admin)
	assert.ErrorIs(t, err, ErrRoomActive)

	clock.Advance(2 * time.Hour)
	_, err = app.SweepDormant(ctx)
	require.NoError(t, err)

	_, err = app.ReactivateRoom(ctx, room.ID, uuid.New())
	assert.ErrorIs(t, err, ErrNotMember)

	restored, err := app.ReactivateRoom(ctx, room.ID, admin)
	require.NoError(t, err)
	assert.True(t, restored.IsActive)
	assert.Nil(t, restored.DormantAt)

	events := n.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventReactivated, events[1].Kind)
}

func TestReactivateRoom_EmptiedRoomGoesToCaller(t *testing.T) {
	app, _, _ := newTestApp(t)
	ctx := context.Background()
	admin := uuid.New()
	room := createRoom(t, app, admin)
	_, err := app.LeaveRoom(ctx, room.ID, admin)
	require.NoError(t, err)

	newcomer := uuid.New()
	restored, err := app.ReactivateRoom(ctx, room.ID, newcomer)
	require.NoError(t, err)
	assert.Equal(t, newcomer, restored.AdminID)
	assert.Equal(t, []uuid.UUID{newcomer}, restored.Participants)
}

func TestListPublicRooms(t *testing.T) {
	app, clock, _ := newTestApp(t)
	ctx := context.Background()

	older := createRoom(t, app, uuid.New())
	clock.Advance(time.Minute)
	newer := createRoom(t, app, uuid.New())
	clock.Advance(time.Minute)
	private := models.DefaultRoomSettings()
	private.IsPublic = false
	_, err := app.CreateRoom(ctx, CreateRoomRequest{Name: "hidden", CreatorID: uuid.New(), Settings: &private})
	require.NoError(t, err)

	rooms, err := app.ListPublicRooms(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, newer.ID, rooms[0].ID)
	assert.Equal(t, older.ID, rooms[1].ID)
}

func TestMemoryRepository_ReadsAreIsolated(t *testing.T) {
	app, _, _ := newTestApp(t)
	ctx := context.Background()
	room := createRoom(t, app, uuid.New())

	got, err := app.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	got.Participants[0] = uuid.New()
	got.Name = "changed"

	again, err := app.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, room.Participants, again.Participants)
	assert.Equal(t, "Deep Work", again.Name)
}
