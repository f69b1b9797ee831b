package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"keygate/internal/apperror"
	"keygate/internal/auth"
	"keygate/internal/keyindex"
	"keygate/internal/model"
	"keygate/internal/repository"
)

// LicenseService defines the business operations of the key service.
// All transport layers (HTTP, gRPC, NATS) depend on this interface, not on
// the concrete implementation.
type LicenseService interface {
	ListResellers(ctx context.Context) ([]model.Reseller, error)
	GetReseller(ctx context.Context, username string) (*model.Reseller, error)
	DeleteReseller(ctx context.Context, username string) error
	AddCredits(ctx context.Context, req model.AddCreditsRequest) ([]model.Reseller, error)

	ListTokens(ctx context.Context) ([]string, error)
	GenerateToken(ctx context.Context) (string, error)
	Register(ctx context.Context, req model.RegisterRequest) (*model.Reseller, error)

	ListKeys(ctx context.Context, username string) ([]model.Key, error)
	IssueKey(ctx context.Context, req model.IssueKeyRequest) (*model.Key, error)
	DeleteKey(ctx context.Context, username, keyID string) error

	Verify(ctx context.Context, req model.VerifyRequest) (*model.VerificationEvent, error)
	ListVerifications(ctx context.Context, keyID string) ([]model.VerificationEvent, error)

	RecordUsage(ctx context.Context, event model.UsageEvent) error
	ListUsage(ctx context.Context) ([]model.UsageEvent, error)

	AuthenticateAdmin(ctx context.Context, req model.LoginRequest) (*model.LoginResult, error)
	AuthenticateReseller(ctx context.Context, req model.LoginRequest) (*model.LoginResult, error)
	VerifySession(token string) (*auth.Claims, error)
}

type Service struct {
	repo     *repository.LedgerRepo
	bus      repository.MessageBus
	hasher   auth.PasswordHasher
	sessions *auth.JWTService
	validate *validator.Validate
	now      func() time.Time

	index *keyindex.Index
	// indexMu lets issuance and deletion run concurrently with each other
	// while RebuildIndex swaps the index exclusively.
	indexMu sync.RWMutex
}

var _ LicenseService = (*Service)(nil)

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(repo *repository.LedgerRepo, bus repository.MessageBus, hasher auth.PasswordHasher, sessions *auth.JWTService, opts ...Option) *Service {
	if bus == nil {
		bus = repository.NopBus{}
	}
	s := &Service{
		repo:     repo,
		bus:      bus,
		hasher:   hasher,
		sessions: sessions,
		validate: newValidator(),
		now:      time.Now,
		index:    keyindex.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("game", func(fl validator.FieldLevel) bool {
		return model.IsGame(fl.Field().String())
	})
	return v
}

func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Tag() == "game" {
			return apperror.Validation(fmt.Sprintf("unsupported game %q", fe.Value()))
		}
		return apperror.Validation(fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
	}
	return apperror.Validation(err.Error())
}

func (s *Service) clock() time.Time { return s.now().UTC() }

// publish sends an event on the bus; a bus failure never fails the operation.
func (s *Service) publish(topic string, v any) {
	if err := repository.PublishJSON(s.bus, topic, v); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// RebuildIndex reloads the key index from every registered reseller's keys.
// Keys of deleted resellers are not indexed and so cannot be verified.
func (s *Service) RebuildIndex(ctx context.Context) (int, error) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	entries := make(map[keyindex.Lookup]keyindex.Entry)
	err := s.repo.View(ctx, func(tx *repository.Tx) error {
		names, err := tx.Usernames()
		if err != nil {
			return err
		}
		for _, name := range names {
			keys, err := tx.Keys(name)
			if err != nil {
				return err
			}
			for _, k := range keys {
				l := keyindex.Lookup{KeyValue: k.KeyValue, GameName: k.GameName}
				if prev, dup := entries[l]; dup {
					// Keys minted before uniqueness was enforced; the first owner wins.
					slog.Warn("duplicate key value in store", "game", k.GameName, "kept", prev.KeyID, "skipped", k.ID)
					continue
				}
				entries[l] = keyindex.Entry{Username: name, KeyID: k.ID}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.index.Replace(entries)
	return len(entries), nil
}
