package service

import (
	"context"
	"log/slog"
	"math"

	"keygate/internal/apperror"
	"keygate/internal/model"
	"keygate/internal/observability/metrics"
	"keygate/internal/repository"
)

func (s *Service) ListResellers(ctx context.Context) ([]model.Reseller, error) {
	var out []model.Reseller
	err := s.repo.View(ctx, func(tx *repository.Tx) error {
		var err error
		out, err = listResellers(tx)
		return err
	})
	return out, err
}

func listResellers(tx *repository.Tx) ([]model.Reseller, error) {
	names, err := tx.Usernames()
	if err != nil {
		return nil, err
	}
	out := make([]model.Reseller, 0, len(names))
	for _, name := range names {
		r, err := tx.Reseller(name)
		if err != nil {
			return nil, err
		}
		if r == nil {
			continue
		}
		out = append(out, r.Public())
	}
	return out, nil
}

func (s *Service) GetReseller(ctx context.Context, username string) (*model.Reseller, error) {
	var out *model.Reseller
	err := s.repo.View(ctx, func(tx *repository.Tx) error {
		r, err := tx.Reseller(username)
		if err != nil {
			return err
		}
		if r == nil {
			return apperror.ErrUnknownReseller
		}
		pub := r.Public()
		out = &pub
		return nil
	})
	return out, err
}

// DeleteReseller removes the reseller record. Their keys stay stored under
// the username but are no longer verifiable. Deleting an absent reseller
// succeeds.
func (s *Service) DeleteReseller(ctx context.Context, username string) error {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()

	err := s.repo.Update(ctx, func(tx *repository.Tx) error {
		names, err := tx.Usernames()
		if err != nil {
			return err
		}
		kept := make([]string, 0, len(names))
		for _, n := range names {
			if n != username {
				kept = append(kept, n)
			}
		}
		if len(kept) != len(names) {
			if err := tx.SetUsernames(kept); err != nil {
				return err
			}
		}
		return tx.DeleteReseller(username)
	})
	if err != nil {
		return err
	}

	dropped := s.index.DropOwner(username)
	slog.Info("reseller deleted", "username", username, "unindexed_keys", dropped)
	return nil
}

// AddCredits tops up a reseller's balance and returns the updated reseller list.
func (s *Service) AddCredits(ctx context.Context, req model.AddCreditsRequest) ([]model.Reseller, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	var out []model.Reseller
	err := s.repo.Update(ctx, func(tx *repository.Tx) error {
		r, err := tx.Reseller(req.Username)
		if err != nil {
			return err
		}
		if r == nil {
			return apperror.ErrUnknownReseller
		}
		if r.Credits > math.MaxInt64-req.Amount {
			return apperror.Validation("credit balance would overflow")
		}
		r.Credits += req.Amount
		if err := tx.PutReseller(*r); err != nil {
			return err
		}
		out, err = listResellers(tx)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.CreditsAddedTotal.Add(float64(req.Amount))
	slog.Info("credits added", "username", req.Username, "amount", req.Amount)
	return out, nil
}

// debitOne takes one credit from the reseller inside tx. It fails without
// writing when the reseller is unknown or the balance is not positive.
func debitOne(tx *repository.Tx, username string) (*model.Reseller, error) {
	r, err := tx.Reseller(username)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperror.ErrUnknownReseller
	}
	if r.Credits <= 0 {
		return nil, apperror.ErrInsufficientCredits
	}
	r.Credits--
	if err := tx.PutReseller(*r); err != nil {
		return nil, err
	}
	return r, nil
}
