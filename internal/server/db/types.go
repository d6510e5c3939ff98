package db

import (
	"context"
	"time"
)

// Command is one line submitted to a session's shell.
type Command struct {
	ID        int64
	SessionID string
	Command   string
	CreatedAt time.Time
}

// Store describes the persistence surface consumed by the daemon.
type Store interface {
	Close(ctx context.Context) error
	Queries() Queries
	WithTx(ctx context.Context, fn func(Queries) error) error
}

// Queries exposes repository accessors bound to a specific connection scope
// (either the root connection or a transaction).
type Queries interface {
	Commands() CommandRepository
}

// CommandRepository records submitted commands per session.
type CommandRepository interface {
	Record(ctx context.Context, sessionID, command string) (int64, error)
	// Recent returns up to limit commands of the session, oldest first.
	Recent(ctx context.Context, sessionID string, limit int) ([]Command, error)
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}
