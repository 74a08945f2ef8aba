package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials indicates a password sign-in was rejected.
	ErrInvalidCredentials = errors.New("invalid login credentials")

	// ErrUnauthorized indicates an access token is missing, expired or revoked.
	ErrUnauthorized = errors.New("unauthorized")
)

// ProviderError is a rejection reported by the identity provider itself. Message is the
// provider's own text and is safe to show to the operator. Err, when set, is one of the
// sentinels above.
type ProviderError struct {
	Status  int
	Message string
	Err     error
}

func (e *ProviderError) Error() string { return e.Message }
func (e *ProviderError) Unwrap() error { return e.Err }

// User is the authenticated principal as reported by the identity provider.
type User struct {
	ID    string
	Email string
}

// Session is the result of a successful sign-in.
type Session struct {
	AccessToken string
	ExpiresAt   time.Time
	User        User
}

// Provider is the hosted identity provider. It is treated as opaque: only
// success/failure and session presence matter to this system.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (Session, error)
	SignOut(ctx context.Context, accessToken string) error
	User(ctx context.Context, accessToken string) (User, error)
}
