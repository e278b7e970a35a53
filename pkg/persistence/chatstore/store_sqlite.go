package chatstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var ErrNotFound = errors.New("chatstore: not found")

// SQLiteStore persists dashboards, chats, messages, widgets and widget runs.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// migrations are applied in order; each index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS dashboards (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT 'New Chat',
		profile_name TEXT NOT NULL,
		dashboard_id INTEGER NOT NULL REFERENCES dashboards(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		chat_id INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		kind TEXT NOT NULL CHECK (kind IN ('user', 'assistant')),
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS messages_by_chat ON messages(chat_id, created_at, id);
	CREATE INDEX IF NOT EXISTS chats_by_dashboard ON chats(dashboard_id, created_at);`,

	`ALTER TABLE messages ADD COLUMN reasoning TEXT NOT NULL DEFAULT '';
	ALTER TABLE messages ADD COLUMN image_data TEXT NOT NULL DEFAULT '';
	ALTER TABLE messages ADD COLUMN image_type TEXT NOT NULL DEFAULT '';`,

	`CREATE TABLE IF NOT EXISTS widgets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		input TEXT NOT NULL DEFAULT '',
		template_name TEXT NOT NULL,
		dashboard_id INTEGER NOT NULL REFERENCES dashboards(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS widget_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uuid TEXT NOT NULL UNIQUE,
		widget_id INTEGER NOT NULL REFERENCES widgets(id) ON DELETE CASCADE,
		input TEXT NOT NULL DEFAULT '',
		output TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL CHECK (status IN ('running', 'finished', 'error')),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		finished_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS widget_runs_by_widget ON widget_runs(widget_id, created_at DESC, id DESC);`,
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite store: open")
	}
	s := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SQLiteDSNForFile returns a DSN with WAL, a busy timeout and foreign keys on.
func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SchemaVersion returns the number of applied migrations.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := sqlscan.Get(ctx, s.db, &v, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return 0, errors.Wrap(err, "sqlite store: schema version")
	}
	return v, nil
}

// Migrate applies every pending migration, each in its own transaction.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store: db is nil")
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL
	)`); err != nil {
		return errors.Wrap(err, "sqlite store: migrate")
	}
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	for i := current; i < len(migrations); i++ {
		version := i + 1
		if err := s.applyMigration(ctx, version, migrations[i]); err != nil {
			return errors.Wrapf(err, "sqlite store: migrate to version %d", version)
		}
		log.Debug().Str("component", "chatstore").Int("version", version).Msg("applied migration")
	}
	return nil
}

func (s *SQLiteStore) applyMigration(ctx context.Context, version int, stmt string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, version, s.now()); err != nil {
		return err
	}
	return tx.Commit()
}

func getOne(ctx context.Context, q sqlscan.Querier, dst any, query string, args ...any) error {
	err := sqlscan.Get(ctx, q, dst, query, args...)
	if sqlscan.NotFound(err) {
		return ErrNotFound
	}
	return err
}
