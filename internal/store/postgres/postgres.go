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

	"github.com/alfredjeanlab/notify/internal/model"
	"github.com/alfredjeanlab/notify/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
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

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an already-open database without running migrations.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "notify_schema_migrations"})
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

func (s *PostgresStore) InsertMessage(ctx context.Context, msg *model.Message) error {
	return store.Wrap("insert message", queryInsertMessage(ctx, s.db, msg))
}

func (s *PostgresStore) ListMessages(ctx context.Context, receiverID int64, filter model.MessageFilter) ([]*model.Message, int, error) {
	msgs, total, err := queryListMessages(ctx, s.db, receiverID, filter)
	return msgs, total, store.Wrap("list messages", err)
}

func (s *PostgresStore) DeleteMessage(ctx context.Context, messageID, receiverID int64) error {
	return store.Wrap("delete message", queryDeleteMessage(ctx, s.db, messageID, receiverID))
}

func (s *PostgresStore) MarkAsRead(ctx context.Context, messageID, receiverID int64) error {
	return store.Wrap("mark as read", queryMarkAsRead(ctx, s.db, messageID, receiverID))
}

func (s *PostgresStore) MarkAsReadBatch(ctx context.Context, messageIDs []int64, receiverID int64) (int, error) {
	n, err := queryMarkAsReadBatch(ctx, s.db, messageIDs, receiverID)
	return n, store.Wrap("mark batch as read", err)
}

func (s *PostgresStore) MarkAllAsRead(ctx context.Context, receiverID int64) (int, error) {
	n, err := queryMarkAllAsRead(ctx, s.db, receiverID)
	return n, store.Wrap("mark all as read", err)
}

func (s *PostgresStore) CountUnread(ctx context.Context, receiverID int64) (int, error) {
	n, err := queryCountUnread(ctx, s.db, receiverID)
	return n, store.Wrap("count unread", err)
}

func (s *PostgresStore) CountUnreadByType(ctx context.Context, receiverID int64) (model.UnreadByType, error) {
	counts, err := queryCountUnreadByType(ctx, s.db, receiverID)
	return counts, store.Wrap("count unread by type", err)
}

func (s *PostgresStore) GetSenders(ctx context.Context, userIDs []int64) (map[int64]model.Sender, error) {
	senders, err := queryGetSenders(ctx, s.db, userIDs)
	return senders, store.Wrap("get senders", err)
}

func (s *PostgresStore) ListMessagesAfter(ctx context.Context, afterID int64, limit int) ([]*model.Message, error) {
	msgs, err := queryListMessagesAfter(ctx, s.db, afterID, limit)
	return msgs, store.Wrap("list messages after", err)
}
