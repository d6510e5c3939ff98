package session

import (
	"time"

	"github.com/google/uuid"
)

// DefaultID identifies the session that always exists and cannot be closed.
const DefaultID = "default"

// Session is an independent command-execution context.
type Session struct {
	ID       string
	Cwd      string
	Timeline *Timeline
}

// Option customises a Registry.
type Option func(*Registry)

// WithIDs overrides the identity generator used for sessions and blocks.
func WithIDs(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithClock overrides the block timestamp source.
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) { r.now = fn }
}

// Registry owns every session, their ordering and the active pointer.
// It is not safe for concurrent use; callers serialize access on their event loop.
type Registry struct {
	order    []string
	sessions map[string]*Session
	active   string
	newID    func() string
	now      func() time.Time
}

// NewRegistry returns a registry holding only the default session, active.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.add(DefaultID)
	r.active = DefaultID
	return r
}

func (r *Registry) add(id string) *Session {
	s := &Session{ID: id, Cwd: "~", Timeline: newTimeline(r.newID, r.now)}
	r.sessions[id] = s
	r.order = append(r.order, id)
	return s
}

// Create opens a new empty session and makes it active.
func (r *Registry) Create() *Session {
	id := r.newID()
	for r.sessions[id] != nil {
		id = r.newID()
	}
	s := r.add(id)
	r.active = id
	return s
}

// Close removes a session and its timeline. The default session and unknown
// ids are rejected. Closing the active session makes the default active.
func (r *Registry) Close(id string) bool {
	if id == DefaultID {
		return false
	}
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.active == id {
		r.active = DefaultID
	}
	return true
}

// Switch makes id the active session. Unknown ids are rejected.
func (r *Registry) Switch(id string) bool {
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	r.active = id
	return true
}

// Route applies op to the named session. Operations addressed to a session
// that no longer exists are dropped; the session is never recreated.
func (r *Registry) Route(id string, op func(*Session)) bool {
	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	op(s)
	return true
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

// Active returns the active session.
func (r *Registry) Active() *Session {
	return r.sessions[r.active]
}

// ActiveID returns the id of the active session.
func (r *Registry) ActiveID() string {
	return r.active
}

// IDs returns session ids in creation order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	return len(r.order)
}

// Index returns the position of id in creation order, or -1.
func (r *Registry) Index(id string) int {
	for i, v := range r.order {
		if v == id {
			return i
		}
	}
	return -1
}

// Step moves the active pointer by delta positions, wrapping around.
func (r *Registry) Step(delta int) string {
	n := len(r.order)
	idx := r.Index(r.active)
	next := ((idx+delta)%n + n) % n
	r.active = r.order[next]
	return r.active
}
