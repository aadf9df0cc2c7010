package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/npezzotti/go-reveal/internal/types"
)

const (
	performerColumns = "id, name, username, password_hash, slug, role, last_login, created_at, updated_at"
	roomColumns      = "id, status, video_id, start_at, version, created_at, updated_at"

	insertPerformerQuery = "INSERT INTO performers (id, name, username, password_hash, slug, role) " +
		"VALUES ($1, $2, $3, $4, $5, $6) RETURNING " + performerColumns

	upsertPerformerQuery = "INSERT INTO performers (id, name, username, password_hash, slug, role) " +
		"VALUES ($1, $2, $3, $4, $5, $6) " +
		"ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name, username = EXCLUDED.username, " +
		"password_hash = EXCLUDED.password_hash, role = EXCLUDED.role, updated_at = now() " +
		"RETURNING " + performerColumns

	// A room left behind under the same id is reset rather than rejected.
	insertIdleRoomQuery = "INSERT INTO rooms (id, status, video_id, start_at) VALUES ($1, 'idle', NULL, $2) " +
		"ON CONFLICT (id) DO UPDATE SET status = 'idle', video_id = NULL, version = rooms.version + 1, updated_at = now() " +
		"RETURNING " + roomColumns
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPerformer(row rowScanner) (Performer, error) {
	var p Performer
	err := row.Scan(
		&p.Id,
		&p.Name,
		&p.Username,
		&p.PasswordHash,
		&p.Slug,
		&p.Role,
		&p.LastLogin,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func scanRoom(row rowScanner) (Room, error) {
	var r Room
	err := row.Scan(
		&r.Id,
		&r.Status,
		&r.VideoId,
		&r.StartAt,
		&r.Version,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func (db *PgRevealRepository) CreatePerformer(ctx context.Context, params CreatePerformerParams) (Performer, Room, error) {
	return db.writePerformer(ctx, insertPerformerQuery, params)
}

// UpsertPerformer creates or replaces the performer owning params.Slug and
// resets its room. It backs the seed command.
func (db *PgRevealRepository) UpsertPerformer(ctx context.Context, params CreatePerformerParams) (Performer, Room, error) {
	return db.writePerformer(ctx, upsertPerformerQuery, params)
}

func (db *PgRevealRepository) writePerformer(ctx context.Context, query string, params CreatePerformerParams) (Performer, Room, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Performer{}, Room{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := scanPerformer(tx.QueryRowContext(ctx, query,
		params.Id,
		params.Name,
		params.Username,
		params.PasswordHash,
		params.Slug,
		params.Role,
	))
	if err != nil {
		return Performer{}, Room{}, fmt.Errorf("insert performer: %w", mapError(err))
	}

	r, err := scanRoom(tx.QueryRowContext(ctx, insertIdleRoomQuery, p.Slug, params.StartAt))
	if err != nil {
		return Performer{}, Room{}, fmt.Errorf("insert room: %w", mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return Performer{}, Room{}, fmt.Errorf("commit transaction: %w", mapError(err))
	}

	return p, r, nil
}

func (db *PgRevealRepository) ListPerformers(ctx context.Context) ([]Performer, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+performerColumns+" FROM performers ORDER BY created_at, id",
	)
	if err != nil {
		return nil, fmt.Errorf("list performers: %w", err)
	}
	defer rows.Close()

	performers := make([]Performer, 0)
	for rows.Next() {
		p, err := scanPerformer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		performers = append(performers, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return performers, nil
}

func (db *PgRevealRepository) GetPerformerById(ctx context.Context, id string) (Performer, error) {
	return scanPerformer(db.conn.QueryRowContext(ctx,
		"SELECT "+performerColumns+" FROM performers WHERE id = $1 LIMIT 1",
		id,
	))
}

func (db *PgRevealRepository) GetPerformerByUsername(ctx context.Context, username string) (Performer, error) {
	return scanPerformer(db.conn.QueryRowContext(ctx,
		"SELECT "+performerColumns+" FROM performers WHERE lower(username) = lower($1) LIMIT 1",
		username,
	))
}

func (db *PgRevealRepository) GetPerformerBySlug(ctx context.Context, slug string) (Performer, error) {
	return scanPerformer(db.conn.QueryRowContext(ctx,
		"SELECT "+performerColumns+" FROM performers WHERE slug = $1 LIMIT 1",
		slug,
	))
}

func (db *PgRevealRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE performers SET last_login = $2 WHERE id = $1",
		id,
		at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}

	return expectOneRow(res)
}

// DeletePerformer removes the performer and its room in one transaction
// and returns the deleted record.
func (db *PgRevealRepository) DeletePerformer(ctx context.Context, id string) (Performer, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Performer{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	p, err := scanPerformer(tx.QueryRowContext(ctx,
		"DELETE FROM performers WHERE id = $1 RETURNING "+performerColumns,
		id,
	))
	if err != nil {
		return Performer{}, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM rooms WHERE id = $1", p.Slug); err != nil {
		return Performer{}, fmt.Errorf("delete room: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Performer{}, fmt.Errorf("commit transaction: %w", err)
	}

	return p, nil
}

func (db *PgRevealRepository) GetRoom(ctx context.Context, id string) (Room, error) {
	return scanRoom(db.conn.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE id = $1 LIMIT 1",
		id,
	))
}

func (db *PgRevealRepository) CreateRoomIfNotExists(ctx context.Context, id string, startAt int) (Room, error) {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO rooms (id, status, video_id, start_at) VALUES ($1, 'idle', NULL, $2) "+
			"ON CONFLICT (id) DO NOTHING",
		id,
		startAt,
	)
	if err != nil {
		return Room{}, fmt.Errorf("create room: %w", err)
	}

	return db.GetRoom(ctx, id)
}

// UpdateRoom writes the room only if its version still matches. A missing
// room yields sql.ErrNoRows, a stale version ErrVersionConflict.
func (db *PgRevealRepository) UpdateRoom(ctx context.Context, params UpdateRoomParams) (Room, error) {
	videoId := params.VideoId
	if params.Status == types.RoomStatusIdle {
		videoId = nil
	}

	r, err := scanRoom(db.conn.QueryRowContext(ctx,
		"UPDATE rooms SET status = $3, video_id = $4, start_at = $5, version = version + 1, updated_at = now() "+
			"WHERE id = $1 AND version = $2 RETURNING "+roomColumns,
		params.Id,
		params.ExpectedVersion,
		params.Status,
		videoId,
		params.StartAt,
	))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Room{}, fmt.Errorf("update room: %w", err)
	}

	var exists bool
	if err := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM rooms WHERE id = $1)",
		params.Id,
	).Scan(&exists); err != nil {
		return Room{}, fmt.Errorf("check room: %w", err)
	}
	if !exists {
		return Room{}, sql.ErrNoRows
	}

	return Room{}, ErrVersionConflict
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
