package rooms

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/focusroom/go/internal/models"
	"github.com/mcdev12/focusroom/go/internal/sqlutil"
)

const roomColumns = `id, name, settings, participants, admin_id, timer, dormant_at, is_active, created_at, updated_at`

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Repository implements room persistence on Postgres. The timer snapshot is
// stored as a JSONB column of the room row so it is read and written
// atomically with the room.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new rooms repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// CreateRoom inserts a new room
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) error {
	if err := insertRoom(ctx, r.db, room); err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// GetRoom retrieves a room by ID, including inactive rooms
func (r *Repository) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return room, nil
}

// UpdateRoom locks the room row, applies fn and writes the result back in
// the same transaction.
func (r *Repository) UpdateRoom(ctx context.Context, id uuid.UUID, fn func(room *models.Room) error) (*models.Room, error) {
	var updated *models.Room
	err := sqlutil.Run(ctx, r.db, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1 FOR UPDATE`, id)
		room, err := scanRoom(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRoomNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock room: %w", err)
		}

		if err := fn(room); err != nil {
			return err
		}

		if err := saveRoom(ctx, tx, room); err != nil {
			return fmt.Errorf("failed to save room: %w", err)
		}
		updated = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListPublicRooms lists active public rooms, newest first
func (r *Repository) ListPublicRooms(ctx context.Context, limit int) ([]models.Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE is_active AND is_public ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list public rooms: %w", err)
	}
	defer rows.Close()

	var out []models.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		out = append(out, *room)
	}
	return out, rows.Err()
}

// ListIdleRooms returns active rooms whose timer has not changed since the cutoff
func (r *Repository) ListIdleRooms(ctx context.Context, lastUpdatedBefore time.Time) ([]uuid.UUID, error) {
	return r.listIDs(ctx, `SELECT id FROM rooms WHERE is_active AND timer_last_updated < $1`, lastUpdatedBefore)
}

// ListRunningRooms returns active rooms persisted with a running timer
func (r *Repository) ListRunningRooms(ctx context.Context) ([]uuid.UUID, error) {
	return r.listIDs(ctx, `SELECT id FROM rooms WHERE is_active AND is_running`)
}

func (r *Repository) listIDs(ctx context.Context, query string, args ...interface{}) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list room ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan room id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func insertRoom(ctx context.Context, q dbtx, room *models.Room) error {
	settings, timerJSON, err := encodeRoom(room)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO rooms (
		  id, name, settings, participants, admin_id, timer, timer_last_updated,
		  is_running, is_public, dormant_at, is_active, created_at, updated_at
		) VALUES (
		  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
		)`,
		room.ID, room.Name, settings, pq.Array(sqlutil.UUIDsToStrings(room.Participants)), room.AdminID,
		timerJSON, room.Timer.LastUpdated, room.Timer.IsRunning, room.Settings.IsPublic,
		sqlutil.ToSqlTime(room.DormantAt), room.IsActive, room.CreatedAt, room.UpdatedAt,
	)
	return err
}

func saveRoom(ctx context.Context, q dbtx, room *models.Room) error {
	settings, timerJSON, err := encodeRoom(room)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
		UPDATE rooms SET
		  name = $2, settings = $3, participants = $4, admin_id = $5, timer = $6,
		  timer_last_updated = $7, is_running = $8, is_public = $9, dormant_at = $10,
		  is_active = $11, updated_at = $12
		WHERE id = $1`,
		room.ID, room.Name, settings, pq.Array(sqlutil.UUIDsToStrings(room.Participants)), room.AdminID,
		timerJSON, room.Timer.LastUpdated, room.Timer.IsRunning, room.Settings.IsPublic,
		sqlutil.ToSqlTime(room.DormantAt), room.IsActive, room.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func encodeRoom(room *models.Room) ([]byte, pqtype.NullRawMessage, error) {
	settings, err := json.Marshal(room.Settings)
	if err != nil {
		return nil, pqtype.NullRawMessage{}, fmt.Errorf("failed to marshal room settings: %w", err)
	}
	timerBytes, err := json.Marshal(room.Timer)
	if err != nil {
		return nil, pqtype.NullRawMessage{}, fmt.Errorf("failed to marshal timer snapshot: %w", err)
	}
	return settings, pqtype.NullRawMessage{RawMessage: timerBytes, Valid: true}, nil
}

func scanRoom(row rowScanner) (*models.Room, error) {
	var (
		room         models.Room
		settings     []byte
		participants []string
		timerRaw     pqtype.NullRawMessage
		dormantAt    sql.NullTime
	)
	if err := row.Scan(
		&room.ID, &room.Name, &settings, pq.Array(&participants), &room.AdminID,
		&timerRaw, &dormantAt, &room.IsActive, &room.CreatedAt, &room.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(settings, &room.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room settings: %w", err)
	}
	if timerRaw.Valid {
		if err := json.Unmarshal(timerRaw.RawMessage, &room.Timer); err != nil {
			return nil, fmt.Errorf("failed to unmarshal timer snapshot: %w", err)
		}
	}
	ids, err := sqlutil.StringsToUUIDs(participants)
	if err != nil {
		return nil, fmt.Errorf("failed to parse participants: %w", err)
	}
	room.Participants = ids
	room.DormantAt = sqlutil.FromSqlTime(dormantAt)
	return &room, nil
}
