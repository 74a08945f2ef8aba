// Package gotrue implements identity.Provider against the hosted auth REST API
// (/auth/v1) using the auth-go client.
package gotrue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	auth "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"

	"github.com/kominfo-unma/canva-claim-api/internal/platform/httpctx"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/identity"
)

const DefaultTimeout = 10 * time.Second

var ErrNotConfigured = errors.New("gotrue: url and key are required")

// TokenVerifier checks access tokens locally; see jwtverifier.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (identity.User, error)
}

type Config struct {
	URL string
	Key string

	// Transport defaults to http.DefaultTransport.
	Transport http.RoundTripper
	// Timeout bounds each call; zero means DefaultTimeout.
	Timeout time.Duration
	// Verifier, when set, resolves User locally instead of calling /auth/v1/user.
	Verifier TokenVerifier
	Now      func() time.Time
}

type Provider struct {
	client    auth.Client
	transport http.RoundTripper
	timeout   time.Duration
	verifier  TokenVerifier
	now       func() time.Time
}

func New(cfg Config) (*Provider, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	key := strings.TrimSpace(cfg.Key)
	if base == "" || key == "" {
		return nil, ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Provider{
		// The project reference is unused once a custom URL is set.
		client:    auth.New("", key).WithCustomAuthURL(base + "/auth/v1"),
		transport: cfg.Transport,
		timeout:   timeout,
		verifier:  cfg.Verifier,
		now:       now,
	}, nil
}

// bound returns a client whose requests run under ctx (auth-go takes no context) and carry
// token as the bearer when non-empty.
func (p *Provider) bound(ctx context.Context, token string) (auth.Client, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	c := p.client.WithClient(http.Client{Transport: httpctx.Transport(ctx, p.transport)})
	if token != "" {
		c = c.WithToken(token)
	}
	return c, cancel
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (identity.Session, error) {
	c, cancel := p.bound(ctx, "")
	defer cancel()

	tok, err := c.SignInWithEmailPassword(email, password)
	if errors.Is(err, types.ErrInvalidTokenRequest) {
		return identity.Session{}, &identity.ProviderError{Status: http.StatusBadRequest, Message: "Email and password are required", Err: identity.ErrInvalidCredentials}
	}
	if err != nil {
		return identity.Session{}, classify(err)
	}
	if tok.AccessToken == "" {
		return identity.Session{}, &identity.ProviderError{Status: http.StatusBadGateway, Message: "empty access token"}
	}

	expires := time.Time{}
	switch {
	case tok.ExpiresAt > 0:
		expires = time.Unix(tok.ExpiresAt, 0).UTC()
	case tok.ExpiresIn > 0:
		expires = p.now().Add(time.Duration(tok.ExpiresIn) * time.Second).UTC()
	}
	return identity.Session{
		AccessToken: tok.AccessToken,
		ExpiresAt:   expires,
		User:        userOf(tok.User),
	}, nil
}

func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return identity.ErrUnauthorized
	}
	c, cancel := p.bound(ctx, accessToken)
	defer cancel()
	return classify(c.Logout())
}

func (p *Provider) User(ctx context.Context, accessToken string) (identity.User, error) {
	if strings.TrimSpace(accessToken) == "" {
		return identity.User{}, identity.ErrUnauthorized
	}
	if p.verifier != nil {
		return p.verifier.Verify(ctx, accessToken)
	}
	c, cancel := p.bound(ctx, accessToken)
	defer cancel()

	resp, err := c.GetUser()
	if err != nil {
		return identity.User{}, classify(err)
	}
	if resp.ID == uuid.Nil {
		return identity.User{}, identity.ErrUnauthorized
	}
	return userOf(resp.User), nil
}

func userOf(u types.User) identity.User {
	id := ""
	if u.ID != uuid.Nil {
		id = u.ID.String()
	}
	return identity.User{ID: id, Email: u.Email}
}

// auth-go reports non-2xx answers as "response status code <n>: <body>".
var statusErrorPattern = regexp.MustCompile(`(?s)^response status code (\d+)(?:: (.*))?$`)

// errorBody covers both the OAuth-style and the newer error shapes.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

// classify turns a provider rejection into *identity.ProviderError. Transport and decode
// failures are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	m := statusErrorPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return err
	}
	status, _ := strconv.Atoi(m[1])
	raw := strings.TrimSpace(m[2])

	var eb errorBody
	_ = json.Unmarshal([]byte(raw), &eb)

	msg := firstNonEmpty(eb.ErrorDescription, eb.Msg, eb.Message, eb.Error)
	if msg == "" {
		msg = raw
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	e := &identity.ProviderError{Status: status, Message: msg}
	switch {
	case eb.ErrorCode == "invalid_credentials" || eb.Error == "invalid_grant":
		e.Err = identity.ErrInvalidCredentials
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Err = identity.ErrUnauthorized
	}
	return e
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
