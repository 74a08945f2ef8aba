package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	clockport "github.com/kominfo-unma/canva-claim-api/internal/ports/out/clock"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/identity"
)

// DefaultSessionTTL matches the hosted provider's default access token lifetime.
const DefaultSessionTTL = time.Hour

// Provider is an in-memory identity provider for local development and tests.
// Passwords are kept as bcrypt hashes; sessions are opaque tokens that expire after the
// session TTL. It is safe for concurrent use.
type Provider struct {
	clk clockport.Clock
	ttl time.Duration

	mu       sync.RWMutex
	accounts map[string]account

	sessions *gocache.Cache
}

type account struct {
	user identity.User
	hash []byte
}

func NewProvider(clk clockport.Clock, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Provider{
		clk:      clk,
		ttl:      ttl,
		accounts: make(map[string]account),
		sessions: gocache.New(ttl, 10*time.Minute),
	}
}

// AddAccount registers an administrator account.
func (p *Provider) AddAccount(email, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	key := strings.ToLower(strings.TrimSpace(email))
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[key] = account{
		user: identity.User{ID: uuid.NewString(), Email: key},
		hash: hash,
	}
	return nil
}

func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (identity.Session, error) {
	_ = ctx
	p.mu.RLock()
	acct, ok := p.accounts[strings.ToLower(strings.TrimSpace(email))]
	p.mu.RUnlock()
	if !ok {
		return identity.Session{}, identity.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return identity.Session{}, identity.ErrInvalidCredentials
	}

	token := uuid.NewString()
	p.sessions.Set(token, acct.user, p.ttl)
	return identity.Session{
		AccessToken: token,
		ExpiresAt:   p.clk.Now().Add(p.ttl),
		User:        acct.user,
	}, nil
}

func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	_ = ctx
	if _, ok := p.sessions.Get(accessToken); !ok {
		return identity.ErrUnauthorized
	}
	p.sessions.Delete(accessToken)
	return nil
}

func (p *Provider) User(ctx context.Context, accessToken string) (identity.User, error) {
	_ = ctx
	v, ok := p.sessions.Get(accessToken)
	if !ok {
		return identity.User{}, identity.ErrUnauthorized
	}
	return v.(identity.User), nil
}
