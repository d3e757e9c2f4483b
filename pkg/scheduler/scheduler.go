package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/digestscope/pkg/domain"
)

// CycleRunner executes one digest cycle
type CycleRunner interface {
	Cycle(ctx context.Context) (domain.Run, error)
}

// Scheduler runs digest cycles on a fixed interval. Cycles never overlap,
// a manual trigger during a running cycle waits its turn.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration

	mu     sync.Mutex // serialize cycles
	wg     sync.WaitGroup
	cancel context.CancelFunc
	manual chan chan cycleResult
}

type cycleResult struct {
	run domain.Run
	err error
}

// NewScheduler creates a scheduler running the given cycle on the interval
func NewScheduler(runner CycleRunner, interval time.Duration) *Scheduler {
	if interval == 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		manual:   make(chan chan cycleResult),
	}
}

// Start begins periodic execution, the first cycle runs immediately
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop(ctx)

	lgr.Printf("[INFO] scheduler started with interval %v", s.interval)
}

// Stop gracefully stops the scheduler, waiting for a running cycle
func (s *Scheduler) Stop() {
	lgr.Printf("[INFO] stopping scheduler...")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	lgr.Printf("[INFO] scheduler stopped")
}

// RunNow triggers a cycle outside the schedule and waits for its result
func (s *Scheduler) RunNow(ctx context.Context) (domain.Run, error) {
	reply := make(chan cycleResult, 1)
	select {
	case s.manual <- reply:
	case <-ctx.Done():
		return domain.Run{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.run, res.err
	case <-ctx.Done():
		return domain.Run{}, ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// run immediately on start
	s.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		case reply := <-s.manual:
			run, err := s.runCycle(ctx)
			reply <- cycleResult{run: run, err: err}
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) (domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lgr.Printf("[INFO] starting digest cycle")
	run, err := s.runner.Cycle(ctx)
	if err != nil {
		lgr.Printf("[ERROR] digest cycle failed: %v", err)
		return run, err
	}
	lgr.Printf("[INFO] digest cycle done: status=%s found=%d new=%d included=%d in %.1fs",
		run.Status, run.ItemsFound, run.ItemsNew, run.ItemsIncluded, run.RuntimeSeconds)
	return run, err
}
