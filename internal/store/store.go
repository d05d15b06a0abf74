package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/agentsmith/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when creating a record that already exists.
	ErrConflict = errors.New("already exists")
)

// InsertEventParams describes a new event. The store assigns the ID,
// timestamps and TTL.
type InsertEventParams struct {
	RoomID  string
	Type    string
	Format  string
	Sender  model.Participant
	Target  *model.Participant
	Payload []byte
}

// Store defines the persistence interface for rooms and events. All time
// predicates are evaluated against the store's own clock.
type Store interface {
	// Events
	InsertEvent(ctx context.Context, p InsertEventParams) (*model.Event, error)
	QueryBroadcast(ctx context.Context, roomID string, since int64, limit int) ([]*model.Event, int64, error) // returns events, latest_ts, error
	// QueryBroadcastAfter pages by (created_at, id): it returns events
	// ordered after (afterTS, afterID). An empty afterID means every event
	// created after afterTS.
	QueryBroadcastAfter(ctx context.Context, roomID string, afterTS int64, afterID string, limit int) ([]*model.Event, error)
	ConsumeTargeted(ctx context.Context, roomID, userID, sessionID string) ([]*model.Event, error)
	DeleteExpired(ctx context.Context) (int64, error)

	// Presence: the latest live event per sender session created after
	// cutoff (Unix ms), excluding session-end markers, newest first.
	LatestSessionEvents(ctx context.Context, roomID string, cutoff int64) ([]*model.Event, error)

	// Rooms
	CreateRoom(ctx context.Context, room *model.Room) error
	// EnsureRoom creates room unless a room with its ID exists. It never
	// fails with ErrConflict.
	EnsureRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, id string) (*model.Room, error)
	ListRooms(ctx context.Context) ([]*model.RoomSummary, error)
	AddMember(ctx context.Context, roomID, userID string) error
	ListMembers(ctx context.Context, roomID string) ([]*model.RoomMember, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
