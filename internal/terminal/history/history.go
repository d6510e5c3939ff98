// Package history keeps the command recall buffer and the favorite set. Both
// are global across sessions and live only as long as the process.
package history

// History is a flat list of submitted commands with an up/down recall cursor.
type History struct {
	entries []string
	cursor  int // -1 when not recalling
}

// New returns an empty history.
func New() *History {
	return &History{cursor: -1}
}

// Push records cmd and resets the recall cursor.
func (h *History) Push(cmd string) {
	h.entries = append(h.entries, cmd)
	h.cursor = -1
}

// Up moves the cursor towards older entries and returns the entry under it.
// It reports false when the history is empty.
func (h *History) Up() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	if h.cursor < 0 {
		h.cursor = len(h.entries) - 1
	} else {
		h.cursor = max(0, h.cursor-1)
	}
	return h.entries[h.cursor], true
}

// Down moves the cursor towards newer entries. It reports false when no
// recall is in progress. Moving past the newest entry ends the recall and
// returns an empty string, which callers use to clear their input.
func (h *History) Down() (string, bool) {
	if h.cursor < 0 {
		return "", false
	}
	h.cursor++
	if h.cursor > len(h.entries)-1 {
		h.cursor = -1
		return "", true
	}
	return h.entries[h.cursor], true
}

// Cursor returns the recall position, or false when not recalling.
func (h *History) Cursor() (int, bool) {
	return h.cursor, h.cursor >= 0
}

// Reset abandons any recall in progress.
func (h *History) Reset() {
	h.cursor = -1
}

// Entries returns a copy of the recorded commands, oldest first.
func (h *History) Entries() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of recorded commands.
func (h *History) Len() int {
	return len(h.entries)
}
