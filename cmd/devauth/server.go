package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/kominfo-unma/canva-claim-api/internal/platform/auth/jwks"
)

// authServer answers the subset of the hosted auth API the claim service uses:
// password grant, logout, user lookup and the JWKS document.
type authServer struct {
	issuer   string
	audience string
	ttl      time.Duration
	key      jwks.Keypair
	jwksJSON []byte
	now      func() time.Time
	log      zerolog.Logger

	mu       sync.RWMutex
	accounts map[string]account

	// revoked holds the jti of signed-out tokens until they would have expired anyway.
	revoked *gocache.Cache
}

type account struct {
	id    string
	email string
	hash  []byte
}

func newAuthServer(issuer, audience string, ttl time.Duration, key jwks.Keypair, log zerolog.Logger) (*authServer, error) {
	doc, err := jwks.Marshal(key)
	if err != nil {
		return nil, err
	}
	return &authServer{
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		key:      key,
		jwksJSON: doc,
		now:      time.Now,
		log:      log,
		accounts: make(map[string]account),
		revoked:  gocache.New(ttl, 10*time.Minute),
	}, nil
}

func (s *authServer) addAccount(email, password string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return errors.New("account needs an email and a password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = account{id: uuid.NewString(), email: email, hash: hash}
	return nil
}

func (s *authServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/.well-known/jwks.json", s.handleJWKS)
	r.Route("/auth/v1", func(r chi.Router) {
		r.Get("/.well-known/jwks.json", s.handleJWKS)
		r.Post("/token", s.handleToken)
		r.Post("/logout", s.handleLogout)
		r.Get("/user", s.handleUser)
	})
	return r
}

func (s *authServer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(s.jwksJSON)
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *authServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("grant_type") != "password" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type", "error_description": "only the password grant is supported"})
		return
	}
	var req tokenRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request", "error_description": "invalid JSON body"})
		return
	}

	s.mu.RLock()
	acct, ok := s.accounts[strings.ToLower(strings.TrimSpace(req.Email))]
	s.mu.RUnlock()
	if !ok || bcrypt.CompareHashAndPassword(acct.hash, []byte(req.Password)) != nil {
		s.log.Info().Str("email", req.Email).Msg("rejected sign-in")
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_grant",
			"error_code":        "invalid_credentials",
			"error_description": "Invalid login credentials",
		})
		return
	}

	now := s.now().UTC()
	exp := now.Add(s.ttl)
	token, err := jwks.Mint(s.key, jwks.Claims{
		Email: acct.email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   acct.id,
			Audience:  jwt.ClaimStrings{s.audience},
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			// small skew tolerance for local use
			NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
			ID:        uuid.NewString(),
		},
	})
	if err != nil {
		s.log.Error().Err(err).Msg("mint token")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server_error", "msg": "failed to mint token"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int64(s.ttl / time.Second),
		"expires_at":   exp.Unix(),
		"user":         map[string]string{"id": acct.id, "email": acct.email},
	})
}

func (s *authServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "invalid JWT"})
		return
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		ttl = time.Second
	}
	s.revoked.Set(claims.ID, struct{}{}, ttl)
	w.WriteHeader(http.StatusNoContent)
}

func (s *authServer) handleUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.authenticate(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"msg": "invalid JWT"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": claims.Subject, "email": claims.Email, "role": claims.Role})
}

// authenticate verifies the bearer token against the server's own key.
func (s *authServer) authenticate(r *http.Request) (*jwks.Claims, bool) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(authz) <= len(prefix) || !strings.EqualFold(authz[:len(prefix)], prefix) {
		return nil, false
	}
	var claims jwks.Claims
	_, err := jwt.ParseWithClaims(strings.TrimSpace(authz[len(prefix):]), &claims,
		func(*jwt.Token) (any, error) { return &s.key.Private.PublicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.Subject == "" {
		return nil, false
	}
	if _, gone := s.revoked.Get(claims.ID); gone {
		return nil, false
	}
	return &claims, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
