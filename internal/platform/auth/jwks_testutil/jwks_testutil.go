package jwks_testutil

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kominfo-unma/canva-claim-api/internal/platform/auth/jwks"
)

type Keypair = jwks.Keypair

func GenerateRSAKeypair(kid string) (Keypair, error) {
	return jwks.GenerateRSAKeypair(kid)
}

// NewRotatingJWKSServer returns a JWKS server whose key set can be swapped at runtime.
// Fetches counts requests served.
func NewRotatingJWKSServer() (srv *httptest.Server, setKeys func(keys []Keypair), fetches *atomic.Int64) {
	var doc atomic.Value // []byte
	doc.Store([]byte(`{"keys":[]}`))
	fetches = new(atomic.Int64)

	setKeys = func(keys []Keypair) {
		b, err := jwks.Marshal(keys...)
		if err != nil {
			panic(err)
		}
		doc.Store(b)
	}

	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fetches.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc.Load().([]byte))
	}))
	return srv, setKeys, fetches
}

// MintRS256JWT creates a signed admin token. aud may be a string or []string; nbfDelta is
// optional.
func MintRS256JWT(kp Keypair, iss string, aud any, sub, email string, now time.Time, expDelta time.Duration, nbfDelta *time.Duration) (string, error) {
	claims := jwks.Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    iss,
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(now.Add(expDelta)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	switch a := aud.(type) {
	case string:
		claims.Audience = jwt.ClaimStrings{a}
	case []string:
		claims.Audience = jwt.ClaimStrings(a)
	}
	if nbfDelta != nil {
		claims.NotBefore = jwt.NewNumericDate(now.Add(*nbfDelta))
	}
	return jwks.Mint(kp, claims)
}
