package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/alfredjeanlab/agentsmith/internal/model"
	"github.com/alfredjeanlab/agentsmith/internal/store"
)

// eventColumns is the column list used for SELECT and RETURNING on the events table.
const eventColumns = `id, room_id, type, format, sender_user_id, sender_session_id,
	target_user_id, target_session_id, payload, ttl_seconds, created_at, expires_at`

// Postgres error codes mapped to store sentinels.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func queryInsertEvent(ctx context.Context, db executor, p store.InsertEventParams, now time.Time) (*model.Event, error) {
	e, err := store.NewEvent(p, now)
	if err != nil {
		return nil, err
	}

	var targetUser, targetSession sql.NullString
	if e.Target != nil {
		targetUser = nullString(e.Target.UserID)
		targetSession = nullString(e.Target.SessionID)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO events (id, room_id, type, format, sender_user_id, sender_session_id,
			target_user_id, target_session_id, payload, ttl_seconds, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.RoomID, e.Type, e.Format, e.Sender.UserID, nullString(e.Sender.SessionID),
		targetUser, targetSession, []byte(e.Payload), e.TTLSeconds, e.CreatedAt, e.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return e, nil
}

func queryBroadcast(ctx context.Context, db executor, roomID string, since int64, limit int, now int64) ([]*model.Event, int64, error) {
	events, err := queryBroadcastAfter(ctx, db, roomID, since, "", limit, now)
	if err != nil {
		return nil, since, err
	}
	latest := since
	if len(events) > 0 {
		latest = events[len(events)-1].CreatedAt
	}
	return events, latest, nil
}

// queryBroadcastAfter returns broadcast events after the (created_at, id)
// key. With an empty afterID only created_at is compared.
func queryBroadcastAfter(ctx context.Context, db executor, roomID string, afterTS int64, afterID string, limit int, now int64) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE room_id = $1
		  AND (created_at > $2 OR ($3 <> '' AND created_at = $2 AND id > $3))
		  AND expires_at > $4
		  AND target_user_id IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $5`,
		roomID, afterTS, afterID, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query broadcast events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("scan broadcast events: %w", err)
	}
	return events, nil
}

// queryConsumeTargeted selects and deletes matching targeted events in one
// statement. Row locks taken by the subquery make concurrent consumers skip
// rows another consumer is already deleting, so each event is returned once.
func queryConsumeTargeted(ctx context.Context, db executor, roomID, userID, sessionID string, now int64) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		DELETE FROM events
		WHERE id IN (
			SELECT id FROM events
			WHERE room_id = $1
			  AND target_user_id = $2
			  AND expires_at > $3
			  AND (target_session_id IS NULL OR target_session_id = $4)
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+eventColumns,
		roomID, userID, now, nullString(sessionID),
	)
	if err != nil {
		return nil, fmt.Errorf("consume targeted events: %w", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("scan targeted events: %w", err)
	}
	// RETURNING order is unspecified.
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].CreatedAt != events[j].CreatedAt {
			return events[i].CreatedAt < events[j].CreatedAt
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

func queryDeleteExpired(ctx context.Context, db executor, now int64) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM events WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func queryLatestSessionEvents(ctx context.Context, db executor, roomID string, cutoff, now int64) ([]*model.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM (
			SELECT DISTINCT ON (sender_session_id) seq, `+eventColumns+`
			FROM events
			WHERE room_id = $1
			  AND sender_session_id IS NOT NULL
			  AND type <> ALL($2)
			  AND expires_at > $3
			  AND created_at > $4
			ORDER BY sender_session_id, seq DESC
		) latest
		ORDER BY created_at DESC, seq DESC`,
		roomID, pq.Array(model.SessionEndTypes), now, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query presence: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryCreateRoom(ctx context.Context, db executor, room *model.Room, now int64) error {
	if room.CreatedAt == 0 {
		room.CreatedAt = now
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO rooms (id, created_by, created_at)
		VALUES ($1, $2, $3)`,
		room.ID, room.CreatedBy, room.CreatedAt,
	)
	if err != nil {
		if pqCode(err) == pgUniqueViolation {
			return store.ErrConflict
		}
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}

// queryEnsureRoom inserts room if its ID is free. ON CONFLICT keeps a
// concurrent insert from aborting the surrounding transaction.
func queryEnsureRoom(ctx context.Context, db executor, room *model.Room, now int64) error {
	if room.CreatedAt == 0 {
		room.CreatedAt = now
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO rooms (id, created_by, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`,
		room.ID, room.CreatedBy, room.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ensure room: %w", err)
	}
	return nil
}

func queryGetRoom(ctx context.Context, db executor, id string) (*model.Room, error) {
	var r model.Room
	err := db.QueryRowContext(ctx, `
		SELECT id, created_by, created_at FROM rooms WHERE id = $1`, id,
	).Scan(&r.ID, &r.CreatedBy, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	return &r, nil
}

func queryListRooms(ctx context.Context, db executor) ([]*model.RoomSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, r.created_by, r.created_at, COUNT(m.user_id)
		FROM rooms r
		LEFT JOIN room_members m ON m.room_id = r.id
		GROUP BY r.id, r.created_by, r.created_at
		ORDER BY r.created_at DESC, r.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var out []*model.RoomSummary
	for rows.Next() {
		var r model.RoomSummary
		if err := rows.Scan(&r.ID, &r.CreatedBy, &r.CreatedAt, &r.MemberCount); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func queryAddMember(ctx context.Context, db executor, roomID, userID string, now int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO room_members (room_id, user_id, joined_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, user_id) DO NOTHING`,
		roomID, userID, now,
	)
	if err != nil {
		if pqCode(err) == pgForeignKeyViolation {
			return store.ErrNotFound
		}
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func queryListMembers(ctx context.Context, db executor, roomID string) ([]*model.RoomMember, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT room_id, user_id, joined_at
		FROM room_members
		WHERE room_id = $1
		ORDER BY joined_at ASC, user_id ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []*model.RoomMember
	for rows.Next() {
		var m model.RoomMember
		if err := rows.Scan(&m.RoomID, &m.UserID, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
