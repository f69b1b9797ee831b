package service

import (
	"context"
	"log/slog"
	"slices"

	"github.com/google/uuid"

	"keygate/internal/apperror"
	"keygate/internal/model"
	"keygate/internal/observability/metrics"
	"keygate/internal/repository"
)

func (s *Service) ListTokens(ctx context.Context) ([]string, error) {
	var tokens []string
	err := s.repo.View(ctx, func(tx *repository.Tx) error {
		var err error
		tokens, err = tx.Tokens()
		return err
	})
	return tokens, err
}

// GenerateToken adds a new one-time referral token.
func (s *Service) GenerateToken(ctx context.Context) (string, error) {
	token, err := randomHex(model.ReferralTokenBytes)
	if err != nil {
		return "", err
	}
	err = s.repo.Update(ctx, func(tx *repository.Tx) error {
		tokens, err := tx.Tokens()
		if err != nil {
			return err
		}
		return tx.SetTokens(append(tokens, token))
	})
	if err != nil {
		return "", err
	}
	slog.Info("referral token generated")
	return token, nil
}

// Register creates a reseller with the starting credit grant and consumes
// the referral token in the same commit.
func (s *Service) Register(ctx context.Context, req model.RegisterRequest) (*model.Reseller, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	reseller := model.Reseller{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		CreatedAt:    s.clock(),
		Credits:      model.StartingCredits,
	}

	err = s.repo.Update(ctx, func(tx *repository.Tx) error {
		tokens, err := tx.Tokens()
		if err != nil {
			return err
		}
		i := slices.Index(tokens, req.ReferralToken)
		if i < 0 {
			return apperror.ErrInvalidToken
		}

		existing, err := tx.Reseller(req.Username)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperror.ErrUsernameTaken
		}
		names, err := tx.Usernames()
		if err != nil {
			return err
		}

		if err := tx.PutReseller(reseller); err != nil {
			return err
		}
		if err := tx.SetUsernames(append(names, req.Username)); err != nil {
			return err
		}
		return tx.SetTokens(slices.Delete(tokens, i, i+1))
	})
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues(string(apperror.From(err).Kind)).Inc()
		return nil, err
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	slog.Info("reseller registered", "username", reseller.Username)
	pub := reseller.Public()
	return &pub, nil
}
