/*
scheduler.go - Periodic reset sweep

PURPOSE:
  Runs Sweeper.SweepAll on a fixed interval for the life of the process.

DESIGN:
  - Background goroutine driven by a time.Ticker
  - Runs once immediately on Start, then every Interval
  - The interval is not aligned to midnight; the lazy lapse in the claim
    engine covers the gap between midnight and the next tick
  - A failing or panicking tick is logged and counted, and the loop
    carries on with the next tick

CONFIGURATION:
  - Interval: how often to sweep (default: 24 hours)
  - Enabled:  whether the scheduler starts at all (default: true)

USAGE:
  sched := sweep.NewScheduler(sweeper, m)
  sched.Start()
  // ... later
  sched.Stop()

SEE ALSO:
  - sweep.go: the sweep itself
*/
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/clanpoints/metrics"
)

// DefaultInterval is one sweep per day.
const DefaultInterval = 24 * time.Hour

// Scheduler runs the sweep periodically.
type Scheduler struct {
	Sweeper  *Sweeper
	Interval time.Duration
	Enabled  bool
	Metrics  *metrics.Metrics // optional
	Logger   *slog.Logger
	Now      func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewScheduler creates an enabled scheduler with the default interval.
func NewScheduler(sweeper *Sweeper, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		Sweeper:  sweeper,
		Interval: DefaultInterval,
		Enabled:  true,
		Metrics:  m,
		Logger:   slog.Default().With("component", "sweep"),
		Now:      time.Now,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.Logger.Info("scheduler started", "interval", s.Interval)
}

// Stop stops the scheduler and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("scheduler stopped")
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.tick()

	for {
		select {
		case <-s.ticker.C:
			s.tick()
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) tick() {
	reports, err := s.RunNow(context.Background())
	if err != nil {
		s.Metrics.SweepFailed()
		s.Logger.Error("sweep iteration failed", "error", err)
	}

	lapsed := 0
	for _, r := range reports {
		lapsed += r.Lapsed
	}
	s.Metrics.ObserveSweep(lapsed)
	if lapsed > 0 {
		s.Logger.Info("sweep completed", "communities", len(reports), "lapsed", lapsed)
	}
}

// RunNow runs one sweep over every community. Panics are recovered and
// returned as *IterationError.
func (s *Scheduler) RunNow(ctx context.Context) (reports []Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &IterationError{Err: fmt.Errorf("%w: %v", errPanic, r)}
		}
	}()

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return s.Sweeper.SweepAll(ctx, now())
}

// NextRunTime returns when the next scheduled sweep will occur.
func (s *Scheduler) NextRunTime() time.Time {
	return time.Now().Add(s.Interval)
}
