package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// sharedFetchTimeout bounds a coalesced fetch, which outlives any single caller.
	sharedFetchTimeout = 30 * time.Second
	// maxRefetch bounds how often one caller re-issues a fetch whose result
	// was not applied.
	maxRefetch = 2
)

// fetchFunc performs one coalesced fetch under a detached ctx. live reports,
// at the moment of applying, whether any caller is still waiting; it also
// closes the flight to new joiners. The bool result reports whether the
// fetch was applied.
type fetchFunc func(ctx context.Context, live func() bool) (bool, error)

// sharedFetch coalesces concurrent refreshes per key. The fetch runs
// detached from its callers; each caller only observes its own ctx.
type sharedFetch struct {
	group singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

type flight struct {
	waiters []context.Context
}

// do runs fn once for all concurrent callers of key. A caller whose ctx is
// still live when fn reports it did not apply its result runs it again.
func (s *sharedFetch) do(ctx context.Context, key string, fn fetchFunc) error {
	for attempt := 0; ; attempt++ {
		f := s.join(ctx, key)
		ch := s.group.DoChan(key, func() (any, error) {
			defer s.seal(key, f)
			fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
			defer cancel()
			return fn(fetchCtx, func() bool { return s.seal(key, f) })
		})

		select {
		case res := <-ch:
			if res.Err != nil {
				return res.Err
			}
			if applied, _ := res.Val.(bool); applied || attempt >= maxRefetch {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *sharedFetch) join(ctx context.Context, key string) *flight {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flights == nil {
		s.flights = make(map[string]*flight)
	}
	f := s.flights[key]
	if f == nil {
		f = &flight{}
		s.flights[key] = f
	}
	f.waiters = append(f.waiters, ctx)
	return f
}

// seal detaches f from key and reports whether any of its waiters is live.
func (s *sharedFetch) seal(key string, f *flight) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flights[key] == f {
		delete(s.flights, key)
	}
	for _, w := range f.waiters {
		if w.Err() == nil {
			return true
		}
	}
	return false
}
