package analytics

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/AngelCh415/spend-dashboard/internal/apperr"
)

// Factory creates the underlying client. It may be slow (credential loading).
type Factory func(ctx context.Context) (Source, error)

// LazySource creates its client on first use. Concurrent first callers share one
// in-flight initialization; a failed initialization is retried by the next call.
type LazySource struct {
	factory Factory

	mu     sync.RWMutex
	client Source
	group  singleflight.Group
}

func NewLazySource(f Factory) *LazySource {
	return &LazySource{factory: f}
}

func (l *LazySource) Client(ctx context.Context) (Source, error) {
	l.mu.RLock()
	c := l.client
	l.mu.RUnlock()
	if c != nil {
		return c, nil
	}

	v, err, _ := l.group.Do("client", func() (any, error) {
		l.mu.RLock()
		existing := l.client
		l.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}
		// the flight outlives any single caller's cancellation
		created, err := l.factory(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.client = created
		l.mu.Unlock()
		return created, nil
	})
	if err != nil {
		return nil, apperr.Unavailable(SourceName, err)
	}
	return v.(Source), nil
}

func (l *LazySource) Query(ctx context.Context, q Query) (*Report, error) {
	c, err := l.Client(ctx)
	if err != nil {
		return nil, err
	}
	return c.Query(ctx, q)
}
