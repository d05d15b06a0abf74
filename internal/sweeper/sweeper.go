// Package sweeper periodically deletes expired events from the store.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultInterval is how often the sweeper runs when none is configured.
const DefaultInterval = 5 * time.Minute

// Expirer deletes events whose TTL has passed and reports how many.
type Expirer interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sweeper runs DeleteExpired on a fixed interval. A failed sweep is logged
// and retried on the next tick; it never stops the sweeper.
type Sweeper struct {
	store    Expirer
	interval time.Duration
	logger   *slog.Logger

	// OnSweep, when set, receives the result of every sweep.
	OnSweep func(deleted int64, err error)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a sweeper. A non-positive interval uses DefaultInterval.
func New(s Expirer, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: s, interval: interval, logger: logger}
}

// Start begins periodic sweeping. It sweeps once immediately, then on each tick.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the sweeper and waits for the current sweep (if any) to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	s.SweepOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce deletes expired events once. Errors and panics are logged and
// returned to OnSweep; they are not propagated.
func (s *Sweeper) SweepOnce(ctx context.Context) (deleted int64) {
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			deleted = 0
		}
		if err != nil {
			s.logger.Error("sweeper: sweep failed", "err", err)
		} else if deleted > 0 {
			s.logger.Info("sweeper: deleted expired events", "count", deleted)
		}
		if s.OnSweep != nil {
			s.OnSweep(deleted, err)
		}
	}()

	deleted, err = s.store.DeleteExpired(ctx)
	return deleted
}
