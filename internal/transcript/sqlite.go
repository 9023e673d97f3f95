// ABOUTME: SQLite transcript store using modernc.org/sqlite
// ABOUTME: Stores activities as JSON rows ordered by timestamp with cursor paging

package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/coven-botkit/internal/activity"
	"github.com/2389/coven-botkit/internal/storage"
)

// sortableTime is a fixed-width UTC layout so timestamps compare correctly as
// text.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store on a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) the transcript database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "transcript", "driver", "sqlite")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", storage.SQLiteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite transcript store initialized", "path", path)
	return s, nil
}

func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS transcript_activities (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			activity_id TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			document TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_transcript_conversation
			ON transcript_activities(channel_id, conversation_id, timestamp, seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LogActivity appends a to its conversation's transcript.
func (s *SQLiteStore) LogActivity(ctx context.Context, a *activity.Activity) error {
	if err := validateActivity(a); err != nil {
		return err
	}
	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding activity: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transcript_activities (channel_id, conversation_id, activity_id, timestamp, document)
		VALUES (?, ?, ?, ?, ?)
	`, a.ChannelID, a.Conversation.ID, a.ID, timestampOf(a).Format(sortableTime), string(doc))
	if err != nil {
		return fmt.Errorf("inserting activity: %w", err)
	}
	return nil
}

// GetTranscriptActivities returns activities at or after since, oldest first.
// The continuation token encodes the timestamp and row sequence of the last
// activity returned.
func (s *SQLiteStore) GetTranscriptActivities(ctx context.Context, channelID, conversationID, continuationToken string, since time.Time) (*ActivityPage, error) {
	if err := validateIDs(channelID, conversationID); err != nil {
		return nil, err
	}

	args := []any{channelID, conversationID}
	query := `
		SELECT seq, timestamp, document
		FROM transcript_activities
		WHERE channel_id = ? AND conversation_id = ?
	`
	if !since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, since.UTC().Format(sortableTime))
	}
	if continuationToken != "" {
		ts, id, err := decodeCursor(continuationToken)
		if err != nil {
			return nil, err
		}
		seq, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidContinuation, err)
		}
		cursorTS := ts.UTC().Format(sortableTime)
		query += ` AND (timestamp > ? OR (timestamp = ? AND seq > ?))`
		args = append(args, cursorTS, cursorTS, seq)
	}
	query += ` ORDER BY timestamp ASC, seq ASC LIMIT ?`
	args = append(args, PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transcript: %w", err)
	}
	defer rows.Close()

	page := &ActivityPage{}
	var (
		lastSeq int64
		lastTS  string
	)
	for rows.Next() {
		var doc string
		if err := rows.Scan(&lastSeq, &lastTS, &doc); err != nil {
			return nil, fmt.Errorf("scanning transcript row: %w", err)
		}
		var a activity.Activity
		if err := json.Unmarshal([]byte(doc), &a); err != nil {
			return nil, fmt.Errorf("decoding activity: %w", err)
		}
		page.Activities = append(page.Activities, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcript rows: %w", err)
	}

	if len(page.Activities) == PageSize {
		ts, err := time.Parse(sortableTime, lastTS)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		page.ContinuationToken = encodeCursor(ts, strconv.FormatInt(lastSeq, 10))
	}
	return page, nil
}

// ListTranscripts returns the conversations on a channel ordered by the
// timestamp of their first activity.
func (s *SQLiteStore) ListTranscripts(ctx context.Context, channelID, continuationToken string) (*TranscriptPage, error) {
	if channelID == "" {
		return nil, ErrMissingChannelID
	}

	args := []any{channelID}
	query := `
		SELECT conversation_id, MIN(timestamp) AS created
		FROM transcript_activities
		WHERE channel_id = ?
		GROUP BY conversation_id
	`
	if continuationToken != "" {
		ts, id, err := decodeCursor(continuationToken)
		if err != nil {
			return nil, err
		}
		cursorTS := ts.UTC().Format(sortableTime)
		query += ` HAVING (MIN(timestamp) > ? OR (MIN(timestamp) = ? AND conversation_id > ?))`
		args = append(args, cursorTS, cursorTS, id)
	}
	query += ` ORDER BY created ASC, conversation_id ASC LIMIT ?`
	args = append(args, PageSize)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transcripts: %w", err)
	}
	defer rows.Close()

	page := &TranscriptPage{}
	for rows.Next() {
		var conv, created string
		if err := rows.Scan(&conv, &created); err != nil {
			return nil, fmt.Errorf("scanning transcript info: %w", err)
		}
		ts, err := time.Parse(sortableTime, created)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		page.Transcripts = append(page.Transcripts, Info{ChannelID: channelID, ConversationID: conv, Created: ts})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating transcript info: %w", err)
	}

	if len(page.Transcripts) == PageSize {
		last := page.Transcripts[PageSize-1]
		page.ContinuationToken = encodeCursor(last.Created, last.ConversationID)
	}
	return page, nil
}

// DeleteTranscript removes a conversation's transcript.
func (s *SQLiteStore) DeleteTranscript(ctx context.Context, channelID, conversationID string) error {
	if err := validateIDs(channelID, conversationID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM transcript_activities WHERE channel_id = ? AND conversation_id = ?`,
		channelID, conversationID)
	if err != nil {
		return fmt.Errorf("deleting transcript: %w", err)
	}
	s.logger.Debug("deleted transcript", "channel_id", channelID, "conversation_id", conversationID)
	return nil
}
