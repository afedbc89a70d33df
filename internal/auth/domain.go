package auth

import "time"

// APIKey is a stored machine credential. The secret is held only as a bcrypt
// hash; the plaintext appears once at issuance and never again.
type APIKey struct {
	ID          string
	SecretHash  string
	PrincipalID string
	Roles       []string
	IsActive    bool
	CreatedAt   time.Time
	LastUsedAt  time.Time
}
