package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kirill555101/paperclip/pkg/lifecycle"
)

// Requeuer re-enqueues staged files older than age. *storage.Deferred
// satisfies it.
type Requeuer interface {
	Requeue(ctx context.Context, age time.Duration) (int, error)
}

// Reaper periodically requeues staged files whose upload jobs were lost.
type Reaper struct {
	cron     *cron.Cron
	schedule string
	age      time.Duration
	requeuer Requeuer
	logger   *slog.Logger
}

// NewReaper validates schedule, a standard cron expression or descriptor
// such as "@every 5m".
func NewReaper(schedule string, age time.Duration, requeuer Requeuer, logger *slog.Logger) (*Reaper, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid reap schedule %q: %w", schedule, err)
	}

	return &Reaper{
		cron:     cron.New(),
		schedule: schedule,
		age:      age,
		requeuer: requeuer,
		logger:   logger.With("system", "jobs", "component", "reaper"),
	}, nil
}

// Start schedules the reaper and stops it when the coordinator shuts down.
func (r *Reaper) Start(lc *lifecycle.Coordinator) error {
	if _, err := r.cron.AddFunc(r.schedule, func() { r.RunOnce(lc.Context()) }); err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}
	r.cron.Start()
	r.logger.Info("reaper scheduled", "schedule", r.schedule, "age", r.age)

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		<-r.cron.Stop().Done()
		r.logger.Info("reaper stopped")
	})
	return nil
}

// RunOnce requeues stale staged files immediately.
func (r *Reaper) RunOnce(ctx context.Context) (int, error) {
	n, err := r.requeuer.Requeue(ctx, r.age)
	if err != nil {
		r.logger.Error("requeue failed", "requeued", n, "error", err)
		return n, err
	}
	if n > 0 {
		r.logger.Info("stale uploads requeued", "count", n)
	}
	return n, nil
}
