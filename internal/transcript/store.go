// Package transcript persists the call events shown in a chat history.
package transcript

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/HMasataka/counsel/internal/call"
	_ "modernc.org/sqlite"
)

var ErrNoChatID = errors.New("transcript line has no chat id")

type Line struct {
	ID     int64
	ChatID string
	CallID string
	Text   string
	At     time.Time
}

// Store is a SQLite backed transcript. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ call.TranscriptSink = (*Store)(nil)

// Open opens or creates the database at path. ":memory:" keeps everything in
// process.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript db: %w", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA busy_timeout = 5000",
		`CREATE TABLE IF NOT EXISTS transcript (
			id      INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL,
			call_id TEXT NOT NULL DEFAULT '',
			text    TEXT NOT NULL,
			at      INTEGER NOT NULL
		)`,
		"CREATE INDEX IF NOT EXISTS transcript_chat ON transcript (chat_id, at)",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to prepare transcript db: %w", err)
		}
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Append(ctx context.Context, line Line) (int64, error) {
	if line.ChatID == "" {
		return 0, ErrNoChatID
	}
	if line.At.IsZero() {
		line.At = time.Now()
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO transcript (chat_id, call_id, text, at) VALUES (?, ?, ?, ?)",
		line.ChatID, line.CallID, line.Text, line.At.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to append transcript: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read transcript id: %w", err)
	}

	s.logger.Debug("transcript appended",
		slog.String("chat_id", line.ChatID),
		slog.String("call_id", line.CallID),
		slog.String("text", line.Text))

	return id, nil
}

// AppendTranscript implements call.TranscriptSink.
func (s *Store) AppendTranscript(ctx context.Context, line call.TranscriptLine) error {
	_, err := s.Append(ctx, Line{
		ChatID: line.ChatID,
		CallID: line.CallID,
		Text:   line.Text,
		At:     line.At,
	})
	return err
}

// List returns the lines of chatID, oldest first.
func (s *Store) List(ctx context.Context, chatID string) ([]Line, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, chat_id, call_id, text, at FROM transcript WHERE chat_id = ? ORDER BY at, id",
		chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcript: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var (
			l  Line
			at int64
		)
		if err := rows.Scan(&l.ID, &l.ChatID, &l.CallID, &l.Text, &at); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		l.At = time.UnixMilli(at)
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list transcript: %w", err)
	}
	return lines, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
