// Package shell runs PTY-backed shell sessions for the daemon.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ccheshirecat/volterm/internal/server/eventbus"
)

// DefaultID names the session that always exists.
const DefaultID = "default"

const (
	readChunk      = 4096
	maxOutputBytes = 1 << 20
	promptTag      = "volterm"
)

var (
	// ErrProtectedSession is returned when closing the default session.
	ErrProtectedSession = errors.New("shell: default session cannot be closed")
	// ErrSessionNotFound is returned when closing a session that is not running.
	ErrSessionNotFound = errors.New("shell: session not found")
	// ErrSessionClosed is returned when writing to a session after it exited.
	ErrSessionClosed = errors.New("shell: session closed")
)

// promptPattern matches the prompt installed through PS1 and captures the
// working directory it reports.
var promptPattern = regexp.MustCompile(`\[` + promptTag + ` ([^\]\r\n]*)\]\$ ?`)

// promptPS1 is expanded by the shell each time it prints a prompt.
const promptPS1 = `[` + promptTag + ` $PWD]$ `

// Closed is published on a session's output topic after it shuts down.
type Closed struct {
	SessionID string
}

// process is a running shell attached to a terminal.
type process interface {
	io.ReadWriter
	// Hangup stops the shell and everything it started.
	Hangup(grace time.Duration) error
}

// Session is one shell plus the output accumulated since its last command.
type Session struct {
	id     string
	proc   process
	bus    eventbus.Bus
	logger *slog.Logger

	mu     sync.Mutex
	output strings.Builder
	cwd    string
	closed bool

	done chan struct{}
}

func newSession(id string, proc process, bus eventbus.Bus, logger *slog.Logger) *Session {
	s := &Session{
		id:     id,
		proc:   proc,
		bus:    bus,
		logger: logger.With("session", id),
		done:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Submit resets the accumulated output and writes command to the shell.
func (s *Session) Submit(command string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.output.Reset()
	s.mu.Unlock()

	if _, err := io.WriteString(s.proc, command+"\n"); err != nil {
		return fmt.Errorf("shell: write command: %w", err)
	}
	return nil
}

// Output returns everything the shell printed since the last Submit, with
// prompts removed.
func (s *Session) Output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return promptPattern.ReplaceAllString(s.output.String(), "")
}

// Cwd returns the directory reported by the most recent prompt. It is empty
// until the shell has printed one.
func (s *Session) Cwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Done is closed once the shell's output stream ends.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) close(grace time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.proc.Hangup(grace)
}

func (s *Session) readLoop() {
	defer close(s.done)
	defer s.publish(Closed{SessionID: s.id})

	buf := make([]byte, readChunk)
	for {
		n, err := s.proc.Read(buf)
		if n > 0 {
			s.ingest(string(buf[:n]))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("pty read ended", "error", err)
			}
			s.mu.Lock()
			s.closed = true
			s.mu.Unlock()
			return
		}
	}
}

func (s *Session) ingest(chunk string) {
	s.mu.Lock()
	if s.output.Len()+len(chunk) > maxOutputBytes {
		kept := trimHead(s.output.String(), len(chunk))
		s.output.Reset()
		s.output.WriteString(kept)
	}
	s.output.WriteString(chunk)

	// A prompt can straddle two reads, so look a little behind the new chunk.
	full := s.output.String()
	start := len(full) - len(chunk) - 256
	if start < 0 {
		start = 0
	}
	if matches := promptPattern.FindAllStringSubmatch(full[start:], -1); len(matches) > 0 {
		s.cwd = strings.TrimSpace(matches[len(matches)-1][1])
	}
	s.mu.Unlock()

	if text := promptPattern.ReplaceAllString(chunk, ""); text != "" {
		s.publish(eventbus.OutputChunk{SessionID: s.id, Data: text, Timestamp: time.Now().UTC()})
	}
}

func (s *Session) publish(payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(context.Background(), eventbus.OutputTopic(s.id), payload); err != nil {
		s.logger.Warn("publish output", "error", err)
	}
}

// trimHead drops the oldest bytes of kept so that another incoming bytes fit
// under maxOutputBytes, never starting the result inside a rune.
func trimHead(kept string, incoming int) string {
	cut := len(kept) + incoming - maxOutputBytes
	if cut <= 0 {
		return kept
	}
	if cut >= len(kept) {
		return ""
	}
	for cut < len(kept) && !utf8.RuneStart(kept[cut]) {
		cut++
	}
	return kept[cut:]
}
