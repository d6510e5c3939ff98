package shell

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ccheshirecat/volterm/internal/server/eventbus"
)

const hangupGrace = 2 * time.Second

// Options configure a Manager.
type Options struct {
	Shell  string
	Bus    eventbus.Bus
	Logger *slog.Logger
	Rows   uint16
	Cols   uint16

	// start overrides process creation in tests.
	start func(ctx context.Context, opts Options) (process, error)
}

// Manager owns the daemon's shell sessions. Sessions start on first use;
// a closed id stays closed.
type Manager struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*Session
	closed   map[string]struct{}
}

// NewManager returns a Manager. Call Start to bring up the default session.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rows == 0 {
		opts.Rows = 40
	}
	if opts.Cols == 0 {
		opts.Cols = 120
	}
	if opts.start == nil {
		opts.start = startPTY
	}
	return &Manager{opts: opts, sessions: make(map[string]*Session), closed: make(map[string]struct{})}
}

// Start launches the default session.
func (m *Manager) Start(ctx context.Context) error {
	_, err := m.session(ctx, DefaultID)
	return err
}

// Ensure starts id if it is not running yet.
func (m *Manager) Ensure(ctx context.Context, id string) error {
	_, err := m.session(ctx, id)
	return err
}

// Submit runs command in session id.
func (m *Manager) Submit(ctx context.Context, id, command string) error {
	s, err := m.session(ctx, id)
	if err != nil {
		return err
	}
	return s.Submit(command)
}

// Output returns the text accumulated in session id since its last command.
func (m *Manager) Output(ctx context.Context, id string) (string, error) {
	s, err := m.session(ctx, id)
	if err != nil {
		return "", err
	}
	return s.Output(), nil
}

// Cwd returns session id's working directory, empty when not yet known.
func (m *Manager) Cwd(ctx context.Context, id string) (string, error) {
	s, err := m.session(ctx, id)
	if err != nil {
		return "", err
	}
	return s.Cwd(), nil
}

// Close hangs up session id.
func (m *Manager) Close(id string) error {
	if id == DefaultID {
		return ErrProtectedSession
	}
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	if ok {
		m.closed[id] = struct{}{}
	}
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	m.opts.Logger.Info("closing session", "session", id)
	return s.close(hangupGrace)
}

// Shutdown hangs up every session, the default one included.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for id, s := range sessions {
		wg.Add(1)
		go func(id string, s *Session) {
			defer wg.Done()
			if err := s.close(hangupGrace); err != nil {
				m.opts.Logger.Warn("hangup session", "session", id, "error", err)
			}
		}(id, s)
	}
	wg.Wait()
}

// Sessions lists the running session ids.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) session(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		id = DefaultID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, gone := m.closed[id]; gone {
		return nil, ErrSessionNotFound
	}
	if s, ok := m.sessions[id]; ok {
		select {
		case <-s.Done():
			// The shell exited on its own; replace it.
			delete(m.sessions, id)
		default:
			return s, nil
		}
	}

	proc, err := m.opts.start(ctx, m.opts)
	if err != nil {
		return nil, fmt.Errorf("shell: start %s: %w", id, err)
	}
	s := newSession(id, proc, m.opts.Bus, m.opts.Logger)
	m.sessions[id] = s
	m.opts.Logger.Info("session started", "session", id, "shell", m.opts.Shell)
	return s, nil
}
