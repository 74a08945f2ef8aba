package sessions

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/identity"
)

const (
	CodeAuth          = "AUTH_ERROR"
	CodeConfiguration = "CONFIGURATION_ERROR"
)

const (
	MsgCredentialsRequired = "Email dan password wajib diisi."
	MsgSessionCheckFailed  = "Gagal memeriksa sesi."
	MsgNotConfigured       = "Supabase belum dikonfigurasi."
)

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string

	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Service exposes the identity provider's session operations to the admin surface.
type Service struct {
	idp identity.Provider
}

// NewService wraps idp; a nil provider makes every call fail with CONFIGURATION_ERROR.
func NewService(idp identity.Provider) *Service {
	return &Service{idp: idp}
}

func (s *Service) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	if s.idp == nil {
		return identity.Session{}, notConfigured()
	}
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return identity.Session{}, &Error{Status: http.StatusUnprocessableEntity, Code: CodeAuth, Message: MsgCredentialsRequired}
	}
	sess, err := s.idp.SignInWithPassword(ctx, email, password)
	if err != nil {
		return identity.Session{}, authError(err)
	}
	return sess, nil
}

func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	if s.idp == nil {
		return notConfigured()
	}
	if err := s.idp.SignOut(ctx, accessToken); err != nil {
		return authError(err)
	}
	return nil
}

// Current resolves the user behind an access token (session check).
func (s *Service) Current(ctx context.Context, accessToken string) (identity.User, error) {
	if s.idp == nil {
		return identity.User{}, notConfigured()
	}
	u, err := s.idp.User(ctx, accessToken)
	if err != nil {
		return identity.User{}, authError(err)
	}
	return u, nil
}

func notConfigured() *Error {
	return &Error{Status: http.StatusServiceUnavailable, Code: CodeConfiguration, Message: MsgNotConfigured}
}

// authError keeps the provider's own message, which is what the login form shows. Anything
// else (transport failures, undecodable responses) gets the generic message.
func authError(err error) *Error {
	var pe *identity.ProviderError
	switch {
	case errors.As(err, &pe) && pe.Message != "":
		return &Error{Status: http.StatusUnauthorized, Code: CodeAuth, Message: pe.Message, Err: err}
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrUnauthorized):
		return &Error{Status: http.StatusUnauthorized, Code: CodeAuth, Message: err.Error(), Err: err}
	default:
		return &Error{Status: http.StatusBadGateway, Code: CodeAuth, Message: MsgSessionCheckFailed, Err: err}
	}
}
