package auth

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/payflow/payflow/internal/shared"
)

// keyPrefix marks credentials issued by this service. The full token shape is
// pk_<keyID>.<secret>.
const keyPrefix = "pk_"

// Service authenticates API-key credentials into principals.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// Authenticate resolves a bearer token to its principal. Every failure mode
// collapses into ErrInvalidCredentials so callers leak nothing about keys.
func (s *Service) Authenticate(ctx context.Context, token string) (*shared.Principal, error) {
	keyID, secret, ok := splitToken(token)
	if !ok {
		return nil, shared.ErrInvalidCredentials
	}
	key, err := s.repo.FindByKeyID(ctx, keyID)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !key.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(key.SecretHash), []byte(secret)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if err := s.repo.TouchLastUsed(ctx, keyID); err != nil {
		s.logger.Warn("api key touch failed", slog.Any("error", err), slog.String("key", keyID))
	}
	return &shared.Principal{ID: key.PrincipalID, Roles: key.Roles}, nil
}

// splitToken splits pk_<keyID>.<secret> into its parts.
func splitToken(token string) (keyID, secret string, ok bool) {
	if !strings.HasPrefix(token, keyPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(token, keyPrefix)
	keyID, secret, found := strings.Cut(rest, ".")
	if !found || keyID == "" || secret == "" {
		return "", "", false
	}
	return keyPrefix + keyID, secret, true
}
