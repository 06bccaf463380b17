package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/RaghavMittal2005/speech2speech/conversation"
)

// Retrying wraps a Store and retries failed loads and saves with bounded
// exponential backoff. Invalid states and cancelled contexts fail at once.
type Retrying struct {
	inner      Store
	maxTries   uint
	initial    time.Duration
	maxBackoff time.Duration
	logger     *zap.Logger
}

// NewRetrying wraps inner. maxTries counts the first attempt.
func NewRetrying(inner Store, maxTries uint, initial time.Duration, logger *zap.Logger) *Retrying {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxTries == 0 {
		maxTries = 1
	}
	if initial <= 0 {
		initial = 50 * time.Millisecond
	}
	return &Retrying{
		inner:      inner,
		maxTries:   maxTries,
		initial:    initial,
		maxBackoff: 2 * time.Second,
		logger:     logger.Named("checkpoint"),
	}
}

func (r *Retrying) Load(ctx context.Context, threadID string) (*conversation.State, error) {
	return backoff.Retry(ctx, func() (*conversation.State, error) {
		st, err := r.inner.Load(ctx, threadID)
		return st, r.classify(ctx, err)
	}, r.options("load", threadID)...)
}

func (r *Retrying) Save(ctx context.Context, state *conversation.State) error {
	threadID := ""
	if state != nil {
		threadID = state.ThreadID
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, r.classify(ctx, r.inner.Save(ctx, state))
	}, r.options("save", threadID)...)
	return err
}

// Unwrap returns the wrapped store.
func (r *Retrying) Unwrap() Store { return r.inner }

func (r *Retrying) classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidState) || ctx.Err() != nil {
		return backoff.Permanent(err)
	}
	return err
}

func (r *Retrying) options(op, threadID string) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initial
	b.MaxInterval = r.maxBackoff
	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(r.maxTries),
		backoff.WithNotify(func(err error, delay time.Duration) {
			r.logger.Warn("checkpoint operation failed, retrying",
				zap.String("op", op),
				zap.String("thread_id", threadID),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		}),
	}
}
