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

// randomKeyAttempts bounds regeneration when a random value collides.
const randomKeyAttempts = 4

type keyIssuedEvent struct {
	KeyID       string `json:"key_id"`
	GameName    string `json:"game_name"`
	DeviceLimit int    `json:"device_limit"`
	ExpiryDays  int    `json:"expiry_days"`
	CreatedBy   string `json:"created_by"`
}

func (s *Service) ListKeys(ctx context.Context, username string) ([]model.Key, error) {
	var keys []model.Key
	err := s.repo.View(ctx, func(tx *repository.Tx) error {
		var err error
		keys, err = tx.Keys(username)
		return err
	})
	return keys, err
}

// IssueKey mints a key for the reseller and debits one credit. The credit
// check, the debit and the key append are committed together, so a failed
// debit never leaves a key behind.
func (s *Service) IssueKey(ctx context.Context, req model.IssueKeyRequest) (*model.Key, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	s.indexMu.RLock()
	defer s.indexMu.RUnlock()

	key := model.Key{
		ID:          uuid.NewString(),
		GameName:    req.GameName,
		DeviceLimit: req.DeviceLimit,
		ExpiryDays:  req.ExpiryDays,
		CreatedBy:   req.Username,
	}
	lookup, err := s.reserveKeyValue(&key, req.CustomKey)
	if err != nil {
		return nil, err
	}

	err = s.repo.Update(ctx, func(tx *repository.Tx) error {
		if _, err := debitOne(tx, req.Username); err != nil {
			return err
		}
		keys, err := tx.Keys(req.Username)
		if err != nil {
			return err
		}
		key.CreatedAt = s.clock()
		return tx.SetKeys(req.Username, append(keys, key))
	})
	if err != nil {
		s.index.Release(lookup, key.ID)
		return nil, err
	}

	metrics.KeysIssuedTotal.WithLabelValues(key.GameName).Inc()
	slog.Info("key issued",
		"username", req.Username,
		"key_id", key.ID,
		"game", key.GameName,
		"device_limit", key.DeviceLimit,
		"expiry_days", key.ExpiryDays,
	)
	s.publish(repository.TopicKeyIssued, keyIssuedEvent{
		KeyID:       key.ID,
		GameName:    key.GameName,
		DeviceLimit: key.DeviceLimit,
		ExpiryDays:  key.ExpiryDays,
		CreatedBy:   key.CreatedBy,
	})
	return &key, nil
}

// reserveKeyValue sets key.KeyValue and claims it in the index. A custom
// value is used verbatim; a random one is regenerated on collision.
func (s *Service) reserveKeyValue(key *model.Key, custom string) (keyindex.Lookup, error) {
	entry := keyindex.Entry{Username: key.CreatedBy, KeyID: key.ID}

	if custom != "" {
		l := keyindex.Lookup{KeyValue: custom, GameName: key.GameName}
		if !s.index.Reserve(l, entry) {
			return l, apperror.ErrKeyValueTaken
		}
		key.KeyValue = custom
		return l, nil
	}

	for i := 0; i < randomKeyAttempts; i++ {
		value, err := randomHex(model.RandomKeyBytes)
		if err != nil {
			return keyindex.Lookup{}, err
		}
		l := keyindex.Lookup{KeyValue: value, GameName: key.GameName}
		if s.index.Reserve(l, entry) {
			key.KeyValue = value
			return l, nil
		}
	}
	return keyindex.Lookup{}, apperror.ErrKeyValueTaken
}

// DeleteKey removes one key. Deleting a key that does not exist succeeds.
func (s *Service) DeleteKey(ctx context.Context, username, keyID string) error {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()

	var removed *model.Key
	err := s.repo.Update(ctx, func(tx *repository.Tx) error {
		removed = nil
		keys, err := tx.Keys(username)
		if err != nil {
			return err
		}
		kept := make([]model.Key, 0, len(keys))
		for _, k := range keys {
			if k.ID == keyID {
				removed = &k
				continue
			}
			kept = append(kept, k)
		}
		if removed == nil {
			return nil
		}
		return tx.SetKeys(username, kept)
	})
	if err != nil {
		return err
	}

	if removed != nil {
		s.index.Release(keyindex.Lookup{KeyValue: removed.KeyValue, GameName: removed.GameName}, removed.ID)
		slog.Info("key deleted", "username", username, "key_id", keyID)
	}
	return nil
}
