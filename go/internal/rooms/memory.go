package rooms

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/mcdev12/focusroom/go/internal/models"
)

// MemoryRepository keeps rooms in process memory. It backs STORE=memory
// deployments and tests.
type MemoryRepository struct {
	// writes hold mu so UpdateRoom is a true read-modify-write
	mu    sync.Mutex
	rooms *cache.Cache
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rooms: cache.New(cache.NoExpiration, 0),
	}
}

func (r *MemoryRepository) CreateRoom(ctx context.Context, room *models.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rooms.Add(room.ID.String(), room.Clone(), cache.NoExpiration)
}

func (r *MemoryRepository) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	v, ok := r.rooms.Get(id.String())
	if !ok {
		return nil, ErrRoomNotFound
	}
	return v.(*models.Room).Clone(), nil
}

func (r *MemoryRepository) UpdateRoom(ctx context.Context, id uuid.UUID, fn func(room *models.Room) error) (*models.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.rooms.Get(id.String())
	if !ok {
		return nil, ErrRoomNotFound
	}
	working := v.(*models.Room).Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	r.rooms.Set(id.String(), working.Clone(), cache.NoExpiration)
	return working, nil
}

func (r *MemoryRepository) ListPublicRooms(ctx context.Context, limit int) ([]models.Room, error) {
	var out []models.Room
	for _, item := range r.rooms.Items() {
		room := item.Object.(*models.Room)
		if room.IsActive && room.Settings.IsPublic {
			out = append(out, *room.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListIdleRooms(ctx context.Context, lastUpdatedBefore time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, item := range r.rooms.Items() {
		room := item.Object.(*models.Room)
		if room.IsActive && room.Timer.LastUpdated.Before(lastUpdatedBefore) {
			ids = append(ids, room.ID)
		}
	}
	return ids, nil
}

func (r *MemoryRepository) ListRunningRooms(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, item := range r.rooms.Items() {
		room := item.Object.(*models.Room)
		if room.IsActive && room.Timer.IsRunning {
			ids = append(ids, room.ID)
		}
	}
	return ids, nil
}
