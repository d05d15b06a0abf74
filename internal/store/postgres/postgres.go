// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/agentsmith/internal/model"
	"github.com/alfredjeanlab/agentsmith/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
// Expiry predicates use the application clock, not the database's NOW(),
// so every node agrees with the timestamps it wrote.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db, now: time.Now}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) InsertEvent(ctx context.Context, p store.InsertEventParams) (*model.Event, error) {
	return queryInsertEvent(ctx, s.db, p, s.now())
}

func (s *PostgresStore) QueryBroadcast(ctx context.Context, roomID string, since int64, limit int) ([]*model.Event, int64, error) {
	return queryBroadcast(ctx, s.db, roomID, since, limit, s.now().UnixMilli())
}

func (s *PostgresStore) QueryBroadcastAfter(ctx context.Context, roomID string, afterTS int64, afterID string, limit int) ([]*model.Event, error) {
	return queryBroadcastAfter(ctx, s.db, roomID, afterTS, afterID, limit, s.now().UnixMilli())
}

func (s *PostgresStore) ConsumeTargeted(ctx context.Context, roomID, userID, sessionID string) ([]*model.Event, error) {
	return queryConsumeTargeted(ctx, s.db, roomID, userID, sessionID, s.now().UnixMilli())
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int64, error) {
	return queryDeleteExpired(ctx, s.db, s.now().UnixMilli())
}

func (s *PostgresStore) LatestSessionEvents(ctx context.Context, roomID string, cutoff int64) ([]*model.Event, error) {
	return queryLatestSessionEvents(ctx, s.db, roomID, cutoff, s.now().UnixMilli())
}

func (s *PostgresStore) CreateRoom(ctx context.Context, room *model.Room) error {
	return queryCreateRoom(ctx, s.db, room, s.now().UnixMilli())
}

func (s *PostgresStore) EnsureRoom(ctx context.Context, room *model.Room) error {
	return queryEnsureRoom(ctx, s.db, room, s.now().UnixMilli())
}

func (s *PostgresStore) GetRoom(ctx context.Context, id string) (*model.Room, error) {
	return queryGetRoom(ctx, s.db, id)
}

func (s *PostgresStore) ListRooms(ctx context.Context) ([]*model.RoomSummary, error) {
	return queryListRooms(ctx, s.db)
}

func (s *PostgresStore) AddMember(ctx context.Context, roomID, userID string) error {
	return queryAddMember(ctx, s.db, roomID, userID, s.now().UnixMilli())
}

func (s *PostgresStore) ListMembers(ctx context.Context, roomID string) ([]*model.RoomMember, error) {
	return queryListMembers(ctx, s.db, roomID)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx, now: s.now}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx  *sql.Tx
	now func() time.Time
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) InsertEvent(ctx context.Context, p store.InsertEventParams) (*model.Event, error) {
	return queryInsertEvent(ctx, s.tx, p, s.now())
}

func (s *txStore) QueryBroadcast(ctx context.Context, roomID string, since int64, limit int) ([]*model.Event, int64, error) {
	return queryBroadcast(ctx, s.tx, roomID, since, limit, s.now().UnixMilli())
}

func (s *txStore) QueryBroadcastAfter(ctx context.Context, roomID string, afterTS int64, afterID string, limit int) ([]*model.Event, error) {
	return queryBroadcastAfter(ctx, s.tx, roomID, afterTS, afterID, limit, s.now().UnixMilli())
}

func (s *txStore) ConsumeTargeted(ctx context.Context, roomID, userID, sessionID string) ([]*model.Event, error) {
	return queryConsumeTargeted(ctx, s.tx, roomID, userID, sessionID, s.now().UnixMilli())
}

func (s *txStore) DeleteExpired(ctx context.Context) (int64, error) {
	return queryDeleteExpired(ctx, s.tx, s.now().UnixMilli())
}

func (s *txStore) LatestSessionEvents(ctx context.Context, roomID string, cutoff int64) ([]*model.Event, error) {
	return queryLatestSessionEvents(ctx, s.tx, roomID, cutoff, s.now().UnixMilli())
}

func (s *txStore) CreateRoom(ctx context.Context, room *model.Room) error {
	return queryCreateRoom(ctx, s.tx, room, s.now().UnixMilli())
}

func (s *txStore) EnsureRoom(ctx context.Context, room *model.Room) error {
	return queryEnsureRoom(ctx, s.tx, room, s.now().UnixMilli())
}

func (s *txStore) GetRoom(ctx context.Context, id string) (*model.Room, error) {
	return queryGetRoom(ctx, s.tx, id)
}

func (s *txStore) ListRooms(ctx context.Context) ([]*model.RoomSummary, error) {
	return queryListRooms(ctx, s.tx)
}

func (s *txStore) AddMember(ctx context.Context, roomID, userID string) error {
	return queryAddMember(ctx, s.tx, roomID, userID, s.now().UnixMilli())
}

func (s *txStore) ListMembers(ctx context.Context, roomID string) ([]*model.RoomMember, error) {
	return queryListMembers(ctx, s.tx, roomID)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Ping is a no-op for a transaction store.
func (s *txStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
