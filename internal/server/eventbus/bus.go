// Copyright (c) 2025 HYPR. PTE. LTD.
//
// Business Source License 1.1
// See LICENSE file in the project root for details.

package eventbus

import (
	"context"
	"time"
)

// Bus distributes shell output from PTY readers to stream subscribers.
type Bus interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(topic string, ch chan<- any) (unsubscribe func(), err error)
}

// OutputChunk is one read from a session's PTY.
type OutputChunk struct {
	SessionID string
	Data      string
	Timestamp time.Time
}

// OutputTopic names the topic carrying a session's output chunks.
func OutputTopic(sessionID string) string {
	return "session." + sessionID + ".output"
}
