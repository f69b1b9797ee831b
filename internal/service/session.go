package service

import (
	"context"
	"log/slog"

	"keygate/internal/apperror"
	"keygate/internal/auth"
	"keygate/internal/model"
	"keygate/internal/repository"
)

// SeedAdmin stores the admin credential on first boot. An existing admin
// record is left untouched. With an empty password a random one is
// generated and logged once.
func (s *Service) SeedAdmin(ctx context.Context, username, password string) error {
	if username == "" {
		return apperror.Validation("admin username is required")
	}

	var existing *model.Admin
	err := s.repo.View(ctx, func(tx *repository.Tx) error {
		var err error
		existing, err = tx.Admin()
		return err
	})
	if err != nil || existing != nil {
		return err
	}

	generated := password == ""
	if generated {
		if password, err = randomHex(12); err != nil {
			return err
		}
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	err = s.repo.Update(ctx, func(tx *repository.Tx) error {
		current, err := tx.Admin()
		if err != nil || current != nil {
			return err
		}
		return tx.PutAdmin(model.Admin{Username: username, PasswordHash: hash})
	})
	if err != nil {
		return err
	}

	if generated {
		slog.Warn("admin credential generated, change it after first login", "username", username, "password", password)
	} else {
		slog.Info("admin credential seeded", "username", username)
	}
	return nil
}

func (s *Service) AuthenticateAdmin(ctx context.Context, req model.LoginRequest) (*model.LoginResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	var admin *model.Admin
	err := s.repo.View(ctx, func(tx *repository.Tx) error {
		var err error
		admin, err = tx.Admin()
		return err
	})
	if err != nil {
		return nil, err
	}
	if admin == nil || admin.Username != req.Username || s.hasher.Verify(req.Password, admin.PasswordHash) != nil {
		slog.Warn("admin login failed", "username", req.Username)
		return nil, apperror.ErrInvalidCredentials
	}
	return s.issueSession(admin.Username, auth.RoleAdmin)
}

func (s *Service) AuthenticateReseller(ctx context.Context, req model.LoginRequest) (*model.LoginResult, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	var reseller *model.Reseller
	err := s.repo.View(ctx, func(tx *repository.Tx) error {
		var err error
		reseller, err = tx.Reseller(req.Username)
		return err
	})
	if err != nil {
		return nil, err
	}
	if reseller == nil || s.hasher.Verify(req.Password, reseller.PasswordHash) != nil {
		slog.Warn("reseller login failed", "username", req.Username)
		return nil, apperror.ErrInvalidCredentials
	}
	return s.issueSession(reseller.Username, auth.RoleReseller)
}

func (s *Service) issueSession(username string, role auth.Role) (*model.LoginResult, error) {
	token, err := s.sessions.Generate(username, role)
	if err != nil {
		return nil, err
	}
	return &model.LoginResult{
		Token:     token,
		Role:      string(role),
		Username:  username,
		ExpiresIn: int64(s.sessions.TTL().Seconds()),
	}, nil
}

// VerifySession validates a session token issued by a login.
func (s *Service) VerifySession(token string) (*auth.Claims, error) {
	claims, err := s.sessions.Verify(token)
	if err != nil {
		return nil, apperror.New(apperror.KindInvalidCredentials, "invalid or expired session")
	}
	return claims, nil
}
