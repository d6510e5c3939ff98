// Package suggest extracts runnable commands from free-text AI responses and
// tracks which of them is currently offered to the user.
package suggest

import (
	"regexp"
	"strings"
)

var reFence = regexp.MustCompile("(?s)```(?:bash)?[ \\t]*\\r?\\n(.*?)```")

// Parse returns every non-blank line of every fenced code block in text, in
// block order then line order. It returns nil when text has no fenced lines.
func Parse(text string) []string {
	var out []string
	for _, m := range reFence.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			out = append(out, line)
		}
	}
	return out
}

// State is the primary suggestion plus its alternates. An empty Primary means
// nothing is being suggested.
type State struct {
	Primary string
	Extras  []string
}

// HasPrimary reports whether a suggestion is on offer.
func (s *State) HasPrimary() bool {
	return s.Primary != ""
}

// Clear drops the primary suggestion and all extras.
func (s *State) Clear() {
	s.Primary = ""
	s.Extras = nil
}

// Apply replaces the state with parsed candidates. The first becomes the
// primary, the rest become extras. With no candidates the state is cleared.
func (s *State) Apply(candidates []string) {
	s.Clear()
	if len(candidates) == 0 {
		return
	}
	s.Primary = candidates[0]
	if len(candidates) > 1 {
		s.Extras = append([]string(nil), candidates[1:]...)
	}
}

// Promote makes extras[i] the primary. The chosen entry leaves the extras and
// the previous primary is discarded.
func (s *State) Promote(i int) bool {
	if i < 0 || i >= len(s.Extras) {
		return false
	}
	chosen := s.Extras[i]
	extras := make([]string, 0, len(s.Extras)-1)
	extras = append(extras, s.Extras[:i]...)
	extras = append(extras, s.Extras[i+1:]...)
	if len(extras) == 0 {
		extras = nil
	}
	s.Primary = chosen
	s.Extras = extras
	return true
}

// Edit replaces the primary text in place, keeping the extras.
func (s *State) Edit(primary string) {
	s.Primary = primary
}

// Take returns the primary suggestion and clears the state.
func (s *State) Take() (string, bool) {
	if !s.HasPrimary() {
		return "", false
	}
	cmd := s.Primary
	s.Clear()
	return cmd, true
}
