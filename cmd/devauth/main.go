package main

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kominfo-unma/canva-claim-api/internal/platform/auth/jwks"
	"github.com/kominfo-unma/canva-claim-api/internal/platform/logging"
)

// Dev-only stand-in for the hosted auth API.
//
// This is NOT a full identity provider. It exists so the API and claimctl can run locally
// against real RS256 tokens: point SUPABASE_URL at it for sign-in and JWT_JWKS_URL at
// <addr>/auth/v1/.well-known/jwks.json for local verification.
func main() {
	log := logging.New(logging.Options{Level: getenv("LOG_LEVEL", "info"), Format: getenv("LOG_FORMAT", logging.FormatConsole)})

	port := getenv("PORT", "9999")
	issuer := getenv("ISSUER", "http://localhost:"+port+"/auth/v1")
	audience := getenv("AUDIENCE", "authenticated")
	kid := getenv("KID", "dev-kid-1")
	ttl := getenvDuration("TTL", time.Hour)

	key, err := jwks.GenerateRSAKeypair(kid)
	if err != nil {
		log.Fatal().Err(err).Msg("generate key")
	}
	srv, err := newAuthServer(issuer, audience, ttl, key, log)
	if err != nil {
		log.Fatal().Err(err).Msg("init")
	}

	// DEVAUTH_USERS is a comma-separated list of email:password pairs.
	users := getenv("DEVAUTH_USERS", "admin@example.com:admin")
	for _, pair := range strings.Split(users, ",") {
		email, password, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			log.Fatal().Str("entry", pair).Msg("DEVAUTH_USERS entries must be email:password")
		}
		if err := srv.addAccount(email, password); err != nil {
			log.Fatal().Err(err).Str("email", email).Msg("add account")
		}
		log.Info().Str("email", email).Msg("account registered")
	}

	httpSrv := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info().Str("port", port).Str("iss", issuer).Str("aud", audience).Str("kid", kid).Dur("ttl", ttl).Msg("devauth listening")
	if err := httpSrv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
