package utils

import (
	"context"
	"time"
)

// Backoff retries with exponentially growing waits. It is for startup
// dependencies only; request paths do not retry.
type Backoff struct {
	base       time.Duration
	maxRetries int
}

func NewBackoff(base time.Duration, maxRetries int) Backoff {
	return Backoff{base: base, maxRetries: maxRetries}
}

// Do calls fn until it succeeds, retries run out, or ctx is done.
func (b Backoff) Do(ctx context.Context, fn func(i int) error) error {
	var err error
	for i := 0; i <= b.maxRetries; i++ {
		if err = fn(i); err == nil {
			return nil
		}
		if i == b.maxRetries {
			break
		}
		t := time.NewTimer(time.Duration(1<<i) * b.base)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}
