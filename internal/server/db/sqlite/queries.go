package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ccheshirecat/volterm/internal/server/db"
)

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
}

// executor abstracts *sql.DB and *sql.Tx for shared query logic.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	exec executor
}

var _ db.Queries = (*queries)(nil)

func (q *queries) Commands() db.CommandRepository {
	return &commandRepository{exec: q.exec}
}

type commandRepository struct {
	exec executor
}

var _ db.CommandRepository = (*commandRepository)(nil)

func (r *commandRepository) Record(ctx context.Context, sessionID, command string) (int64, error) {
	res, err := r.exec.ExecContext(ctx,
		`INSERT INTO commands (session_id, command, created_at) VALUES (?, ?, ?);`,
		sessionID, command, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert command: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("command last insert id: %w", err)
	}
	return id, nil
}

func (r *commandRepository) Recent(ctx context.Context, sessionID string, limit int) ([]db.Command, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.exec.QueryContext(ctx,
		`SELECT id, session_id, command, created_at FROM (
            SELECT id, session_id, command, created_at FROM commands
            WHERE session_id = ? ORDER BY id DESC LIMIT ?
        ) ORDER BY id ASC;`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	var result []db.Command
	for rows.Next() {
		var (
			cmd     db.Command
			created any
		)
		if err := rows.Scan(&cmd.ID, &cmd.SessionID, &cmd.Command, &created); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		if cmd.CreatedAt, err = coerceTime(created); err != nil {
			return nil, err
		}
		result = append(result, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return result, nil
}

func (r *commandRepository) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	res, err := r.exec.ExecContext(ctx, `DELETE FROM commands WHERE session_id = ?;`, sessionID)
	if err != nil {
		return 0, fmt.Errorf("delete session commands: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete session rows affected: %w", err)
	}
	return n, nil
}

func coerceTime(value any) (time.Time, error) {
	var s string
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		s = v
	case []byte:
		s = string(v)
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unsupported time type %T", value)
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time format: %q", s)
}
