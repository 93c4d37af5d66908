/*
scheduler.go - Automated no-show and overstay sweep

PURPOSE:
  Periodically marks PENDING and CONFIRMED reservations whose guest never
  arrived as NO_SHOW, releasing their room, and extends the room hold of
  in-house guests who stayed past their reserved check-out day.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick calls stay.Service.MarkNoShows, which lists candidates whose
    check-in day plus the grace period has passed
  - Reservations that moved on concurrently (checked in, cancelled) are
    skipped by the service, not retried
  - Then calls stay.Service.HoldOverstays so a late guest's room cannot be
    given to another reservation for tonight
  - Records the last run for the admin UI

CONFIGURATION:
  - CheckInterval: How often to check (NO_SHOW_INTERVAL, default 15m)
  - Enabled: Whether scheduler is active (SCHEDULER_ENABLED)

USAGE:
  scheduler := NewNoShowScheduler(svc, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunNoShows endpoint (manual sweep)
  - stay/lifecycle.go: NoShowEligibleAt
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/stay-engine/logging"
	"github.com/warp/stay-engine/stay"
	"go.uber.org/zap"
)

// NoShowSweeper is the part of stay.Service the scheduler drives.
type NoShowSweeper interface {
	MarkNoShows(ctx context.Context) ([]stay.ReservationID, error)
	HoldOverstays(ctx context.Context) ([]stay.ReservationID, error)
}

// SweepRun records one scheduler pass.
type SweepRun struct {
	StartedAt time.Time
	Marked    []stay.ReservationID
	Held      []stay.ReservationID
	Err       error
}

// NoShowScheduler handles the automated no-show sweep.
type NoShowScheduler struct {
	Sweeper       NoShowSweeper
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	runMu   sync.Mutex
	lastRun *SweepRun
}

func NewNoShowScheduler(sweeper NoShowSweeper, logger *zap.Logger) *NoShowScheduler {
	return &NoShowScheduler{
		Sweeper:       sweeper,
		Logger:        logging.OrNop(logger),
		CheckInterval: 15 * time.Minute,
		Enabled:       true,
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *NoShowScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("no-show scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	s.Logger.Info("no-show scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight sweep.
func (s *NoShowScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.Logger.Info("no-show scheduler stopped")
}

func (s *NoShowScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one sweep synchronously. Sweeps never overlap.
func (s *NoShowScheduler) RunNow(ctx context.Context) SweepRun {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	run := SweepRun{StartedAt: time.Now()}
	run.Marked, run.Err = s.Sweeper.MarkNoShows(ctx)
	if run.Err == nil {
		run.Held, run.Err = s.Sweeper.HoldOverstays(ctx)
	}

	switch {
	case run.Err != nil:
		s.Logger.Error("no-show sweep failed",
			zap.Int("marked", len(run.Marked)),
			zap.Error(run.Err))
	case len(run.Marked) > 0 || len(run.Held) > 0:
		s.Logger.Info("no-show sweep changed reservations",
			zap.Strings("marked", idStrings(run.Marked)),
			zap.Strings("held", idStrings(run.Held)))
	default:
		s.Logger.Debug("no-show sweep found nothing")
	}

	s.lastRun = &run
	return run
}

// LastRun returns the most recent sweep, or nil before the first one.
func (s *NoShowScheduler) LastRun() *SweepRun {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	run := *s.lastRun
	return &run
}
