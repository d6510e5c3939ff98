// Package autocomplete drives ghost-text completion: keystrokes are debounced,
// only the newest timer may issue a query, and only the newest query's answer
// may be published.
package autocomplete

import (
	"context"
	"strings"
	"time"
)

// DefaultDelay is the quiet period after the last keystroke before a query.
const DefaultDelay = 400 * time.Millisecond

// Timer identifies one scheduled debounce. Callers arrange for Fire to be
// called with it after Delay; timers superseded in the meantime are ignored.
type Timer struct {
	Gen   uint64
	Delay time.Duration
}

// Query is a completion request to issue.
type Query struct {
	Token uint64
	Input string
}

// Suggester holds the debounce and token state for one input line.
// It is not safe for concurrent use.
type Suggester struct {
	delay      time.Duration
	input      string
	gen        uint64
	token      uint64
	cancel     context.CancelFunc
	suggestion string
}

// New returns a Suggester with the given debounce delay.
func New(delay time.Duration) *Suggester {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Suggester{delay: delay}
}

// Observe records the live input after a keystroke. Empty input clears the
// suggestion and cancels pending work immediately. Otherwise a new timer is
// returned; any earlier timer is superseded.
func (s *Suggester) Observe(input string) (Timer, bool) {
	s.input = input
	s.gen++
	if input == "" {
		s.suggestion = ""
		s.abort()
		s.token++ // strands any response already on its way
		return Timer{}, false
	}
	return Timer{Gen: s.gen, Delay: s.delay}, true
}

// Fire is called when a timer elapses. It returns the query to issue, tagged
// with a fresh token, or false if the timer was superseded.
func (s *Suggester) Fire(t Timer) (Query, bool) {
	if t.Gen != s.gen || s.input == "" {
		return Query{}, false
	}
	s.abort()
	s.token++
	return Query{Token: s.token, Input: s.input}, true
}

// Track associates the cancel function of the in-flight request for token.
// It is cancelled when a newer query is fired or the input is cleared.
func (s *Suggester) Track(token uint64, cancel context.CancelFunc) {
	if token != s.token {
		cancel()
		return
	}
	s.abort()
	s.cancel = cancel
}

// Resolve delivers the completion for token. It is published only when token
// is the latest issued and text extends the live input, ignoring case.
func (s *Suggester) Resolve(token uint64, text string) bool {
	if token != s.token {
		return false
	}
	s.abort()
	text = strings.TrimRight(text, "\r\n")
	if s.input == "" || text == "" || !hasPrefixFold(text, s.input) {
		return false
	}
	s.suggestion = text
	return true
}

// Release cancels the in-flight request for token after it failed. Other
// tokens are ignored.
func (s *Suggester) Release(token uint64) {
	if token == s.token {
		s.abort()
	}
}

// Suggestion returns the published suggestion while it still extends the live
// input, ignoring case.
func (s *Suggester) Suggestion() (string, bool) {
	if s.suggestion == "" || s.input == "" || !hasPrefixFold(s.suggestion, s.input) {
		return "", false
	}
	return s.suggestion, true
}

// Accept consumes the suggestion. It returns the replacement input and clears
// the suggestion, or false if no valid suggestion is shown.
func (s *Suggester) Accept() (string, bool) {
	text, ok := s.Suggestion()
	if !ok {
		return "", false
	}
	s.suggestion = ""
	s.input = text
	s.gen++
	return text, true
}

// Reset clears the input, the suggestion and any pending work.
func (s *Suggester) Reset() {
	s.Observe("")
}

// Token returns the current token. Responses carrying any other are stale.
func (s *Suggester) Token() uint64 {
	return s.token
}

func (s *Suggester) abort() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
