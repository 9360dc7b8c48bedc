package engine

import (
	"context"
	"time"

	"github.com/offer-goat/offer-goat/internal/logger"
)

// Scheduler runs ProcessAutoWinnerSelection across all shops on a fixed
// interval until its context is cancelled.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	log      *logger.Logger
}

func NewScheduler(e *Engine, interval time.Duration) *Scheduler {
	return &Scheduler{
		engine:   e,
		interval: interval,
		log:      e.log.Named("scheduler"),
	}
}

// Run blocks until ctx is done. A non-positive interval disables the
// scheduler and Run returns immediately.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info("auto-winner scheduler disabled")
		return
	}

	s.log.Info("auto-winner scheduler starting", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("auto-winner scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single pass and logs its outcome.
func (s *Scheduler) RunOnce(ctx context.Context) AutoWinnerSummary {
	summary, err := s.engine.ProcessAutoWinnerSelection(ctx, "")
	if err != nil && ctx.Err() == nil {
		s.log.Error("auto-winner pass failed", "error", err)
	}
	return summary
}
