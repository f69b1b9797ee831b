package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"keygate/internal/apperror"
	"keygate/internal/model"
	"keygate/internal/repository"
)

// RecordUsage appends one entry to the usage log.
func (s *Service) RecordUsage(ctx context.Context, event model.UsageEvent) error {
	if event.Endpoint == "" || event.Method == "" {
		return apperror.Validation("usage event needs endpoint and method")
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock()
	}

	return s.repo.Update(ctx, func(tx *repository.Tx) error {
		events, err := tx.Usage()
		if err != nil {
			return err
		}
		return tx.SetUsage(append(events, event))
	})
}

func (s *Service) ListUsage(ctx context.Context) ([]model.UsageEvent, error) {
	var events []model.UsageEvent
	err := s.repo.View(ctx, func(tx *repository.Tx) error {
		var err error
		events, err = tx.Usage()
		return err
	})
	return events, err
}

// TrimUsage drops usage entries recorded before cutoff and reports how many
// were removed.
func (s *Service) TrimUsage(ctx context.Context, cutoff time.Time) (int, error) {
	removed := 0
	err := s.repo.Update(ctx, func(tx *repository.Tx) error {
		events, err := tx.Usage()
		if err != nil {
			return err
		}
		kept := make([]model.UsageEvent, 0, len(events))
		for _, ev := range events {
			if ev.Timestamp.Before(cutoff) {
				continue
			}
			kept = append(kept, ev)
		}
		removed = len(events) - len(kept)
		if removed == 0 {
			return nil
		}
		return tx.SetUsage(kept)
	})
	return removed, err
}

// UsageRecorder logs one call to a verification surface. Failures are
// logged and never change the caller's result.
type UsageRecorder interface {
	Record(ctx context.Context, event model.UsageEvent)
}

// DirectUsage writes usage entries straight to the store.
type DirectUsage struct {
	Svc LicenseService
}

func (u DirectUsage) Record(ctx context.Context, event model.UsageEvent) {
	if err := u.Svc.RecordUsage(ctx, event); err != nil {
		slog.Warn("failed to record usage", "endpoint", event.Endpoint, "error", err)
	}
}

// BusUsage publishes usage entries for the usage worker to persist.
type BusUsage struct {
	Bus repository.MessageBus
}

func (u BusUsage) Record(_ context.Context, event model.UsageEvent) {
	if err := repository.PublishJSON(u.Bus, repository.TopicUsageRecorded, event); err != nil {
		slog.Warn("failed to publish usage", "endpoint", event.Endpoint, "error", err)
	}
}
