package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cwrk-planet/roulette-service/pkg/logger"
)

// Scheduler drives rooms whose timers expire while nobody is looking. It is
// only an accelerator: reads and contributions apply due timers lazily, and
// the per-room lock keeps a tick racing a request from resolving twice.
type Scheduler struct {
	coord    *Coordinator
	interval time.Duration
	log      *slog.Logger
}

func NewScheduler(coord *Coordinator, interval time.Duration, log *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if log == nil {
		log = logger.L()
	}
	return &Scheduler{
		coord:    coord,
		interval: interval,
		log:      log.With(slog.String("component", "scheduler")),
	}
}

// Run ticks until ctx is done and then returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.log.Info("scheduler started", slog.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-t.C:
			n, err := s.coord.TickAll(ctx)
			if err != nil && ctx.Err() == nil {
				s.log.Warn("pending rooms scan failed", logger.Err(err))
				continue
			}
			if n > 0 {
				s.log.Debug("timers applied", slog.Int("transitions", n))
			}
		}
	}
}
