// Package checkpoint persists conversation state between turns, keyed by
// thread id.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RaghavMittal2005/speech2speech/conversation"
)

// ErrInvalidState is returned by Save for a state that breaks the
// request/result pairing rules. It is never retried.
var ErrInvalidState = errors.New("checkpoint: invalid state")

// Store loads and saves conversation state. Load returns (nil, nil) when
// the thread has no checkpoint. Implementations must not share mutable
// slices with callers.
type Store interface {
	Load(ctx context.Context, threadID string) (*conversation.State, error)
	Save(ctx context.Context, state *conversation.State) error
}

// ThreadInfo summarizes one stored thread.
type ThreadInfo struct {
	ThreadID     string
	MessageCount int
	UpdatedAt    time.Time
}

// Lister is implemented by stores that can enumerate and remove threads.
type Lister interface {
	List(ctx context.Context) ([]ThreadInfo, error)
	Delete(ctx context.Context, threadID string) error
}

func validate(state *conversation.State) error {
	if state == nil {
		return fmt.Errorf("%w: nil state", ErrInvalidState)
	}
	if err := state.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return nil
}
