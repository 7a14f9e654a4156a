package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/streamchat/pkg/chatclient"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite journal: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func DSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite journal: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path), nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS exchanges (
			exchange_id TEXT NOT NULL PRIMARY KEY,
			session_id TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			prompt TEXT NOT NULL,
			reply TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			mode TEXT NOT NULL DEFAULT '',
			started_at_ms INTEGER NOT NULL,
			finished_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS exchanges_by_started ON exchanges(started_at_ms DESC);`,
		`CREATE INDEX IF NOT EXISTS exchanges_by_session ON exchanges(session_id, started_at_ms DESC);`,
	}
	for _, st := range stmts {
		if _, err := s.db.Exec(st); err != nil {
			return errors.Wrap(err, "sqlite journal: migrate")
		}
	}
	return nil
}

// RecordExchange upserts by exchange id.
func (s *SQLiteStore) RecordExchange(ctx context.Context, rec chatclient.ExchangeRecord) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite journal: db is nil")
	}
	if strings.TrimSpace(rec.ExchangeID) == "" {
		return errors.New("sqlite journal: exchange id is empty")
	}
	finished := rec.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchanges(
			exchange_id, session_id, state, prompt, reply, error, model, mode, started_at_ms, finished_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(exchange_id) DO UPDATE SET
			session_id = excluded.session_id,
			state = excluded.state,
			reply = excluded.reply,
			error = excluded.error,
			finished_at_ms = excluded.finished_at_ms
	`,
		rec.ExchangeID,
		rec.SessionID,
		rec.State.String(),
		rec.Prompt,
		rec.Reply,
		rec.Error,
		rec.Model,
		rec.Mode,
		rec.StartedAt.UnixMilli(),
		finished.UnixMilli(),
	)
	if err != nil {
		return errors.Wrap(err, "sqlite journal: insert")
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, q Query) ([]chatclient.ExchangeRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite journal: db is nil")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	clauses := []string{}
	args := []any{}
	if v := strings.TrimSpace(q.SessionID); v != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, v)
	}
	if v := strings.TrimSpace(q.State); v != "" {
		clauses = append(clauses, "state = ?")
		args = append(args, v)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT exchange_id, session_id, state, prompt, reply, error, model, mode, started_at_ms, finished_at_ms
		FROM exchanges
		%s
		ORDER BY started_at_ms DESC, exchange_id DESC
		LIMIT ?
	`, where)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite journal: query")
	}
	defer func() { _ = rows.Close() }()

	items := []chatclient.ExchangeRecord{}
	for rows.Next() {
		var (
			rec        chatclient.ExchangeRecord
			state      string
			startedMs  int64
			finishedMs int64
		)
		if err := rows.Scan(
			&rec.ExchangeID,
			&rec.SessionID,
			&state,
			&rec.Prompt,
			&rec.Reply,
			&rec.Error,
			&rec.Model,
			&rec.Mode,
			&startedMs,
			&finishedMs,
		); err != nil {
			return nil, errors.Wrap(err, "sqlite journal: scan")
		}
		if err := rec.State.UnmarshalText([]byte(state)); err != nil {
			return nil, errors.Wrap(err, "sqlite journal: state")
		}
		rec.StartedAt = time.UnixMilli(startedMs)
		rec.FinishedAt = time.UnixMilli(finishedMs)
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
