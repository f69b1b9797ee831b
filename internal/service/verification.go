package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"keygate/internal/apperror"
	"keygate/internal/keyindex"
	"keygate/internal/model"
	"keygate/internal/observability/metrics"
	"keygate/internal/repository"
)

// Verify checks a presented key for a game and, when admitted, appends a
// verification event bound to the requester's IP.
//
// A key is rejected when it is unknown for the game, when now is strictly
// after createdAt + expiryDays, or when its device limit is 1, it already
// has a verification, and none came from this IP. Limits of 2 and 100 are
// never enforced: once reached, verification is still admitted.
func (s *Service) Verify(ctx context.Context, req model.VerifyRequest) (*model.VerificationEvent, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	event, err := s.verify(ctx, req)
	outcome := "success"
	if err != nil {
		outcome = string(apperror.From(err).Kind)
	}
	game := req.GameName
	if !model.IsGame(game) {
		game = "other"
	}
	metrics.KeyVerificationsTotal.WithLabelValues(game, outcome).Inc()

	if err != nil {
		slog.Debug("key verification rejected", "game", req.GameName, "ip", req.IP, "outcome", outcome)
		return nil, err
	}

	slog.Info("key verified", "key_id", event.KeyID, "game", event.GameName, "ip", event.DeviceIP)
	s.publish(repository.TopicKeyVerified, event)
	return event, nil
}

func (s *Service) verify(ctx context.Context, req model.VerifyRequest) (*model.VerificationEvent, error) {
	entry, ok := s.index.Get(keyindex.Lookup{KeyValue: req.KeyValue, GameName: req.GameName})
	if !ok {
		return nil, apperror.ErrInvalidKey
	}

	var event *model.VerificationEvent
	err := s.repo.Update(ctx, func(tx *repository.Tx) error {
		keys, err := tx.Keys(entry.Username)
		if err != nil {
			return err
		}
		key, found := findKey(keys, entry.KeyID)
		if !found || key.KeyValue != req.KeyValue || key.GameName != req.GameName {
			return apperror.ErrInvalidKey
		}

		now := s.clock()
		expiresAt := key.ExpiresAt()
		if now.After(expiresAt) {
			return apperror.ErrKeyExpired
		}

		prior, err := tx.Verifications(key.ID)
		if err != nil {
			return err
		}
		if !admitDevice(key.DeviceLimit, prior, req.IP) {
			return apperror.ErrKeyInUse
		}

		ev := model.VerificationEvent{
			ID:         uuid.NewString(),
			KeyID:      key.ID,
			GameName:   req.GameName,
			DeviceIP:   req.IP,
			VerifiedAt: now,
			ExpiresAt:  expiresAt,
		}
		if err := tx.GuardKeys(entry.Username); err != nil {
			return err
		}
		if err := tx.SetVerifications(key.ID, append(prior, ev)); err != nil {
			return err
		}
		event = &ev
		return nil
	})
	return event, err
}

// admitDevice applies the device-limit policy to the key's prior events.
// The cap is only enforced for single-device keys.
func admitDevice(limit int, prior []model.VerificationEvent, ip string) bool {
	if len(prior) < limit {
		return true
	}
	if limit != 1 {
		return true
	}
	for _, ev := range prior {
		if ev.DeviceIP == ip {
			return true
		}
	}
	return false
}

func findKey(keys []model.Key, id string) (model.Key, bool) {
	for _, k := range keys {
		if k.ID == id {
			return k, true
		}
	}
	return model.Key{}, false
}

// ListVerifications returns the device-binding history of one key.
func (s *Service) ListVerifications(ctx context.Context, keyID string) ([]model.VerificationEvent, error) {
	if keyID == "" {
		return nil, apperror.Validation("key id is required")
	}
	var events []model.VerificationEvent
	err := s.repo.View(ctx, func(tx *repository.Tx) error {
		var err error
		events, err = tx.Verifications(keyID)
		return err
	})
	return events, err
}
