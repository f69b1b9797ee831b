package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Maintainer exposes the periodic housekeeping operations of the service.
type Maintainer interface {
	TrimUsage(ctx context.Context, cutoff time.Time) (int, error)
	RebuildIndex(ctx context.Context) (int, error)
}

// Scheduler runs usage-log retention and key-index reconciliation on
// fixed intervals.
type Scheduler struct {
	scheduler gocron.Scheduler
	svc       Maintainer
	retention time.Duration
	reindex   time.Duration
	now       func() time.Time
}

func NewScheduler(svc Maintainer, retention, reindex time.Duration) (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	return &Scheduler{scheduler: s, svc: svc, retention: retention, reindex: reindex, now: time.Now}, nil
}

func (s *Scheduler) register() error {
	if s.retention > 0 {
		_, err := s.scheduler.NewJob(
			gocron.DurationJob(time.Hour),
			gocron.NewTask(s.trimUsage),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithName("usage-retention"),
		)
		if err != nil {
			return fmt.Errorf("register usage retention job: %w", err)
		}
	}

	if s.reindex > 0 {
		_, err := s.scheduler.NewJob(
			gocron.DurationJob(s.reindex),
			gocron.NewTask(s.rebuildIndex),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithName("key-index-reconcile"),
		)
		if err != nil {
			return fmt.Errorf("register key index job: %w", err)
		}
	}
	return nil
}

func (s *Scheduler) trimUsage() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := s.now().Add(-s.retention)
	removed, err := s.svc.TrimUsage(ctx, cutoff)
	if err != nil {
		slog.Error("failed to trim usage log", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("usage log trimmed", "removed", removed, "cutoff", cutoff)
	}
}

func (s *Scheduler) rebuildIndex() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.svc.RebuildIndex(ctx)
	if err != nil {
		slog.Error("failed to rebuild key index", "error", err)
		return
	}
	slog.Debug("key index rebuilt", "keys", n)
}

// Start implements the infrastructure.Server interface.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.register(); err != nil {
		return err
	}
	s.scheduler.Start()
	slog.Info("Scheduler is running", "retention", s.retention, "reindex", s.reindex)

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	return s.scheduler.Shutdown()
}
