// ABOUTME: SQLite implementation of Storage using modernc.org/sqlite
// ABOUTME: Checks ETags and upserts documents inside a single transaction per write

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// sqliteBusyTimeout is how long a connection waits on a locked database, in
// milliseconds.
const sqliteBusyTimeout = 5000

// SQLiteDSN builds a modernc.org/sqlite data source name for path. The pragmas
// ride in the DSN so every pooled connection gets them, and transactions take
// the write lock up front instead of upgrading a read lock.
func SQLiteDSN(path string) string {
	escaped := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(path)
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
		escaped, sqliteBusyTimeout)
}

// SQLiteStorage implements Storage on a SQLite database.
type SQLiteStorage struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStorage opens (or creates) the database at path.
// Parent directories are created if needed.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	logger := slog.Default().With("component", "storage", "driver", "sqlite")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStorage{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite storage initialized", "path", path)
	return s, nil
}

func (s *SQLiteStorage) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS storage_items (
			key TEXT PRIMARY KEY,
			document BLOB NOT NULL,
			etag TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	s.logger.Info("closing SQLite storage")
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Read returns the items that exist.
func (s *SQLiteStorage) Read(ctx context.Context, keys []string) (map[string]Item, error) {
	if err := validateKeys(keys); err != nil {
		return nil, err
	}
	out := make(map[string]Item, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	query := `SELECT key, document, etag FROM storage_items WHERE key IN (` + placeholders(len(keys)) + `)`
	rows, err := s.db.QueryContext(ctx, query, toArgs(keys)...)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key  string
			doc  []byte
			etag string
		)
		if err := rows.Scan(&key, &doc, &etag); err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		out[key] = Item{Document: doc, ETag: Tag(etag)}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}
	return out, nil
}

// Write applies each change whose ETag precondition holds. All non-conflicting
// keys are committed together; conflicting keys are reported in the result.
func (s *SQLiteStorage) Write(ctx context.Context, changes map[string]Item) error {
	if changes == nil {
		return ErrNilChanges
	}
	if len(changes) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var conflicts []error
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, key := range sortedKeys(changes) {
		if key == "" {
			conflicts = append(conflicts, ErrEmptyKey)
			continue
		}
		item := changes[key]

		var current string
		err := tx.QueryRowContext(ctx, `SELECT etag FROM storage_items WHERE key = ?`, key).Scan(&current)
		exists := true
		if errors.Is(err, sql.ErrNoRows) {
			exists = false
		} else if err != nil {
			return fmt.Errorf("reading etag for %q: %w", key, err)
		}

		if err := checkETag(key, item.ETag, current, exists); err != nil {
			conflicts = append(conflicts, err)
			continue
		}

		doc := item.Document
		if doc == nil {
			doc = []byte("null")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO storage_items (key, document, etag, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				document = excluded.document,
				etag = excluded.etag,
				updated_at = excluded.updated_at
		`, key, []byte(doc), newTag().Value(), now)
		if err != nil {
			return fmt.Errorf("writing item %q: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	if len(conflicts) > 0 {
		s.logger.Debug("write completed with conflicts", "keys", len(changes), "conflicts", len(conflicts))
	}
	return errors.Join(conflicts...)
}

// Delete removes the keys.
func (s *SQLiteStorage) Delete(ctx context.Context, keys []string) error {
	if err := validateKeys(keys); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	query := `DELETE FROM storage_items WHERE key IN (` + placeholders(len(keys)) + `)`
	if _, err := s.db.ExecContext(ctx, query, toArgs(keys)...); err != nil {
		return fmt.Errorf("deleting items: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func toArgs(keys []string) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}
