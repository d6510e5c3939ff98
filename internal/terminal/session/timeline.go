package session

import (
	"strings"
	"time"
)

// Timeline is the append-only, chronological block list of one session. It
// reconciles output that arrives either as full polled snapshots or as pushed
// chunks. Blocks are never reordered or removed individually.
type Timeline struct {
	blocks []Block
	newID  func() string
	now    func() time.Time
}

func newTimeline(newID func() string, now func() time.Time) *Timeline {
	return &Timeline{newID: newID, now: now}
}

// Blocks returns a copy of the blocks in chronological order.
func (t *Timeline) Blocks() []Block {
	out := make([]Block, len(t.blocks))
	copy(out, t.blocks)
	return out
}

// Len returns the number of blocks.
func (t *Timeline) Len() int {
	return len(t.blocks)
}

// Block returns the block at index i.
func (t *Timeline) Block(i int) (Block, bool) {
	if i < 0 || i >= len(t.blocks) {
		return Block{}, false
	}
	return t.blocks[i], true
}

// LastOutput returns the output of the most recent block that has any.
func (t *Timeline) LastOutput() string {
	for i := len(t.blocks) - 1; i >= 0; i-- {
		if strings.TrimSpace(t.blocks[i].Output) != "" {
			return t.blocks[i].Output
		}
	}
	return ""
}

// AppendCommand pushes a pending block for cmd and returns it.
func (t *Timeline) AppendCommand(cmd string) Block {
	b := Block{
		ID:        t.newID(),
		Kind:      KindPending,
		Command:   cmd,
		Timestamp: t.now(),
	}
	t.blocks = append(t.blocks, b)
	return b
}

// IngestFull merges a polled snapshot: text is everything the backend has
// produced since the last command. The nearest pending block, scanning from
// the newest, becomes completed with text as its output. With no pending block
// the text is dropped. Blank text is ignored.
//
// When several commands are pending at once the newest one receives the
// output, even if the backend ran them in submission order.
func (t *Timeline) IngestFull(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	for i := len(t.blocks) - 1; i >= 0; i-- {
		if t.blocks[i].Kind != KindPending {
			continue
		}
		t.blocks[i].Kind = KindCompleted
		t.blocks[i].Output = text
		t.blocks[i].streaming = false
		return true
	}
	return false
}

// IngestChunk merges one pushed chunk. A trailing stream block, or a trailing
// command block that was completed by earlier chunks, accumulates it. A
// trailing pending block is completed with it. Anything else starts a new
// stream block.
func (t *Timeline) IngestChunk(text string) {
	if text == "" {
		return
	}
	if n := len(t.blocks); n > 0 {
		last := &t.blocks[n-1]
		switch {
		case last.Kind == KindStream:
			last.Output += text
			return
		case last.Kind == KindCompleted && last.streaming:
			last.Output += text
			return
		case last.Kind == KindPending:
			last.Kind = KindCompleted
			last.Output = text
			last.streaming = true
			return
		}
	}
	t.blocks = append(t.blocks, Block{
		ID:        t.newID(),
		Kind:      KindStream,
		Output:    text,
		Timestamp: t.now(),
	})
}
