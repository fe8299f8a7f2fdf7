// Package poll provides the interval-driven refresh primitive used by every
// polling consumer: an immediate fetch, then one fetch per interval, never
// more than one outstanding at a time, bound to a cancellable scope.
package poll

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/gogo/fitsync/internal/domain"
	"github.com/xiaot623/gogo/fitsync/internal/metrics"
	"github.com/xiaot623/gogo/fitsync/internal/observability"
)

const defaultInterval = 5 * time.Second

// Fetch performs one refresh. ctx is cancelled when the job's scope ends.
type Fetch func(ctx context.Context) error

// Job describes a polling job.
type Job struct {
	Name     string
	Interval time.Duration
	Fetch    Fetch
	// OnError receives every failed fetch. It runs on the fetch goroutine and
	// must not call Stop on its own handle; use Cancel instead.
	OnError func(err error)
	// StopOn halts the job when it returns true for a fetch error.
	// Defaults to domain.IsAuth.
	StopOn func(err error) bool
}

// Scheduler starts polling jobs.
type Scheduler struct {
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewScheduler creates a scheduler. m may be nil.
func NewScheduler(logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{logger: logger.Named("poll"), metrics: m}
}

// Handle controls a running job.
type Handle struct {
	name     string
	cancel   context.CancelFunc
	done     chan struct{}
	inflight atomic.Bool
	fetches  sync.WaitGroup

	mu      sync.Mutex
	haltErr error
}

// Start runs job until scope ends, Stop is called, or StopOn matches.
func (s *Scheduler) Start(scope context.Context, job Job) *Handle {
	if job.StopOn == nil {
		job.StopOn = domain.IsAuth
	}
	if job.Interval <= 0 {
		job.Interval = defaultInterval
	}
	ctx, cancel := context.WithCancel(scope)
	h := &Handle{
		name:   job.Name,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx, h, job)
	return h
}

func (s *Scheduler) run(ctx context.Context, h *Handle, job Job) {
	defer close(h.done)
	defer h.fetches.Wait()
	defer h.cancel()

	halted := make(chan error, 1)
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.tick(ctx, h, job, halted)
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-halted:
			h.mu.Lock()
			h.haltErr = err
			h.mu.Unlock()
			s.logger.Info("poll job halted", zap.String("job", job.Name), zap.Error(err))
			return
		case <-ticker.C:
			s.tick(ctx, h, job, halted)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, h *Handle, job Job, halted chan<- error) {
	if ctx.Err() != nil {
		return
	}
	if !h.inflight.CompareAndSwap(false, true) {
		if s.metrics != nil {
			s.metrics.PollSkipped.WithLabelValues(job.Name).Inc()
		}
		s.logger.Debug("poll tick skipped, fetch outstanding", zap.String("job", job.Name))
		return
	}
	if s.metrics != nil {
		s.metrics.PollTicks.WithLabelValues(job.Name).Inc()
	}

	h.fetches.Add(1)
	go func() {
		defer h.fetches.Done()
		defer h.inflight.Store(false)

		err := job.Fetch(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		if s.metrics != nil {
			s.metrics.PollErrors.WithLabelValues(job.Name, domain.KindLabel(err)).Inc()
		}
		if job.OnError != nil {
			job.OnError(err)
		} else {
			s.logger.Warn("poll fetch failed", append(observability.ErrorFields(err), zap.String("job", job.Name))...)
		}
		if job.StopOn(err) {
			select {
			case halted <- err:
			default:
			}
		}
	}()
}

// Name returns the job name.
func (h *Handle) Name() string {
	return h.name
}

// Cancel ends the job without waiting. Safe to call from a fetch or OnError.
func (h *Handle) Cancel() {
	h.cancel()
}

// Stop ends the job and returns once the timer is stopped and any in-flight
// fetch has returned. Idempotent.
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

// Done is closed when the job has fully stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the error that halted the job, if it was halted by StopOn.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.haltErr
}
