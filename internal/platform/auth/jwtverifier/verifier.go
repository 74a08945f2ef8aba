// Package jwtverifier verifies admin access tokens locally against the identity
// provider's JWKS endpoint.
package jwtverifier

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kominfo-unma/canva-claim-api/internal/platform/auth/jwks"
	"github.com/kominfo-unma/canva-claim-api/internal/platform/config"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/identity"
)

// ErrUnauthorized is returned for every rejected token; callers never learn why.
var ErrUnauthorized = identity.ErrUnauthorized

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Verifier struct {
	cfg    config.JWTConfig
	client *http.Client
	clock  Clock

	mu          sync.Mutex
	keysByKID   map[string]*rsa.PublicKey
	lastRefresh time.Time
	refreshing  bool
	refreshDone chan struct{}
}

func New(cfg config.JWTConfig) *Verifier {
	return NewWithOptions(cfg, nil, nil)
}

func NewWithOptions(cfg config.JWTConfig, httpClient *http.Client, clock Clock) *Verifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	if clock == nil {
		clock = realClock{}
	}
	return &Verifier{
		cfg:       cfg,
		client:    httpClient,
		clock:     clock,
		keysByKID: map[string]*rsa.PublicKey{},
	}
}

// Verify checks an RS256 token (signature, iss, aud, exp, nbf) and returns the user it
// was issued to.
func (v *Verifier) Verify(ctx context.Context, token string) (identity.User, error) {
	var claims jwks.Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			if err := v.maybeRefresh(ctx, kid); err != nil {
				return nil, err
			}
			if pub := v.getKey(kid); pub != nil {
				return pub, nil
			}
			return nil, fmt.Errorf("unknown kid %q", kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.ClockSkew),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil || claims.Subject == "" {
		return identity.User{}, ErrUnauthorized
	}
	return identity.User{ID: claims.Subject, Email: claims.Email}, nil
}

func (v *Verifier) getKey(kid string) *rsa.PublicKey {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.keysByKID[kid]
}

// maybeRefresh refetches the key set when the refresh interval elapsed, or when kid is
// unknown and the last fetch is older than the minimum refresh interval. Concurrent
// callers share one fetch.
func (v *Verifier) maybeRefresh(ctx context.Context, kid string) error {
	now := v.clock.Now()

	v.mu.Lock()
	sinceLast := now.Sub(v.lastRefresh)
	never := v.lastRefresh.IsZero()
	stale := !never && v.cfg.JWKSRefreshInterval > 0 && sinceLast >= v.cfg.JWKSRefreshInterval
	unknown := v.keysByKID[kid] == nil && (never || v.cfg.JWKSMinRefreshInterval <= 0 || sinceLast >= v.cfg.JWKSMinRefreshInterval)
	if !stale && !unknown {
		v.mu.Unlock()
		return nil
	}

	if v.refreshing {
		ch := v.refreshDone
		v.mu.Unlock()
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	v.refreshing = true
	v.refreshDone = make(chan struct{})
	ch := v.refreshDone
	v.mu.Unlock()

	err := v.refresh(ctx)

	v.mu.Lock()
	v.refreshing = false
	close(ch)
	v.mu.Unlock()
	return err
}

func (v *Verifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.cfg.JWKSURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("jwks fetch failed: status=%d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	keys, err := jwks.PublicKeys(body)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return errors.New("no usable jwks keys")
	}

	v.mu.Lock()
	v.keysByKID = keys
	v.lastRefresh = v.clock.Now()
	v.mu.Unlock()
	return nil
}
