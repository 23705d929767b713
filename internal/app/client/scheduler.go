package client

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"posclient/internal/infrastructure/metrics"
)

var (
	// ErrJobRunning is returned when a job is triggered while a run is still in flight.
	ErrJobRunning = errors.New("job already running")
	ErrUnknownJob = errors.New("unknown job")
)

// JobFunc is one run of a periodic job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc
	running  atomic.Bool
}

// Scheduler runs independent periodic jobs. A job never overlaps with itself.
type Scheduler struct {
	jobs    map[string]*job
	order   []string
	metrics *metrics.Metrics
	log     *slog.Logger
}

func NewScheduler(m *metrics.Metrics, log *slog.Logger) *Scheduler {
	return &Scheduler{
		jobs:    make(map[string]*job),
		metrics: m,
		log:     log.With("component", "scheduler"),
	}
}

// Add registers a job. It must be called before Run.
func (s *Scheduler) Add(name string, interval time.Duration, fn JobFunc) {
	if _, ok := s.jobs[name]; !ok {
		s.order = append(s.order, name)
	}
	s.jobs[name] = &job{name: name, interval: interval, fn: fn}
}

// Trigger runs the named job now and waits for it.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.runOnce(ctx, j)
}

// Run starts every job and blocks until ctx is cancelled. Each job runs once at
// start and then on its interval. Job failures are logged, not returned.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range s.order {
		j := s.jobs[name]
		g.Go(func() error {
			s.loop(ctx, j)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	log := s.log.With("job", j.name)
	log.Info("job scheduled", "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if err := s.runOnce(ctx, j); err != nil && !errors.Is(err, ErrJobRunning) && ctx.Err() == nil {
			log.Error("job failed", "error", err)
		}
		select {
		case <-ctx.Done():
			log.Info("job stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j *job) error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrJobRunning
	}
	defer j.running.Store(false)

	start := time.Now()
	err := j.fn(ctx)
	s.metrics.JobRun(j.name, err == nil, time.Since(start))
	return err
}
