package session

import "time"

// BlockKind tags the role a LogBlock plays in a timeline.
type BlockKind string

const (
	// KindPending is a command that has not received any output yet.
	KindPending BlockKind = "pending"
	// KindCompleted is a command with output attributed to it.
	KindCompleted BlockKind = "completed"
	// KindStream is output that arrived with no command to attribute it to.
	KindStream BlockKind = "stream"
)

// Block is one unit of terminal content in a session timeline.
type Block struct {
	ID        string
	Kind      BlockKind
	Command   string
	Output    string
	Timestamp time.Time

	// streaming is set on command blocks completed by a pushed chunk; further
	// chunks keep accumulating into them until another block follows.
	streaming bool
}

// HasCommand reports whether the block is tied to a submitted command.
func (b Block) HasCommand() bool {
	return b.Kind == KindPending || b.Kind == KindCompleted
}
