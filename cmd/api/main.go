package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kominfo-unma/canva-claim-api/internal/adapters/gotrue"
	"github.com/kominfo-unma/canva-claim-api/internal/adapters/httpapi"
	memclaimrepo "github.com/kominfo-unma/canva-claim-api/internal/adapters/memory/claimrepo"
	memidempotency "github.com/kominfo-unma/canva-claim-api/internal/adapters/memory/idempotency"
	memidentity "github.com/kominfo-unma/canva-claim-api/internal/adapters/memory/identity"
	postgres "github.com/kominfo-unma/canva-claim-api/internal/adapters/postgres"
	pgclaimrepo "github.com/kominfo-unma/canva-claim-api/internal/adapters/postgres/claimrepo"
	pgidempotency "github.com/kominfo-unma/canva-claim-api/internal/adapters/postgres/idempotency"
	pgrstclaimrepo "github.com/kominfo-unma/canva-claim-api/internal/adapters/postgrest/claimrepo"
	"github.com/kominfo-unma/canva-claim-api/internal/adapters/rabbitmq"
	"github.com/kominfo-unma/canva-claim-api/internal/app/claims"
	"github.com/kominfo-unma/canva-claim-api/internal/app/export"
	"github.com/kominfo-unma/canva-claim-api/internal/app/sessions"
	"github.com/kominfo-unma/canva-claim-api/internal/platform/auth/jwtverifier"
	platformclock "github.com/kominfo-unma/canva-claim-api/internal/platform/clock"
	"github.com/kominfo-unma/canva-claim-api/internal/platform/config"
	"github.com/kominfo-unma/canva-claim-api/internal/platform/logging"
	claimrepoport "github.com/kominfo-unma/canva-claim-api/internal/ports/out/claimrepo"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/events"
	idempotencyport "github.com/kominfo-unma/canva-claim-api/internal/ports/out/idempotency"
	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/identity"
)

func main() {
	cfg, err := config.Load()
	log := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := platformclock.NewSystemClock()
	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	// Claims store.
	var (
		repo      claimrepoport.Repository
		idemStore idempotencyport.Store = memidempotency.NewStoreWithTTL(cfg.IdempotencyTTL)
	)
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := postgres.NewPool(ctx, postgres.PoolOptions{URL: cfg.DatabaseURL})
		if err != nil {
			log.Fatal().Err(err).Msg("invalid postgres config")
		}
		cleanups = append(cleanups, pool.Close)
		if err := postgres.EnsureSchema(ctx, pool, cfg.Supabase.Table); err != nil {
			log.Fatal().Err(err).Msg("ensure schema")
		}
		repo = pgclaimrepo.NewRepo(pool, cfg.Supabase.Table)
		idemStore = pgidempotency.NewStore(pool, cfg.IdempotencyTTL)
	case config.BackendMemory:
		repo = memclaimrepo.NewRepo(clk)
	default:
		r, err := pgrstclaimrepo.NewRepo(pgrstclaimrepo.Config{
			URL:   cfg.Supabase.URL,
			Key:   cfg.Supabase.AnonKey,
			Table: cfg.Supabase.Table,
		})
		switch {
		case errors.Is(err, pgrstclaimrepo.ErrNotConfigured):
			// Serve anyway: every claim operation reports the missing settings.
			log.Warn().Strs("required", claims.RequiredSettings).Msg("claims store not configured")
		case err != nil:
			log.Fatal().Err(err).Msg("invalid store config")
		default:
			repo = r
		}
	}

	// Claim events.
	var publisher events.Publisher
	if cfg.Events.AMQPURL != "" {
		p, err := rabbitmq.Dial(ctx, rabbitmq.Options{URL: cfg.Events.AMQPURL, Exchange: cfg.Events.Exchange, Log: log})
		if err != nil {
			log.Fatal().Err(err).Msg("connect event broker")
		}
		cleanups = append(cleanups, func() { _ = p.Close() })
		publisher = p
	}

	// Identity.
	idp, err := newIdentityProvider(cfg, clk, log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid auth config")
	}
	sessionSvc := sessions.NewService(idp)

	loc, err := export.LoadLocation(cfg.TimeZone)
	if err != nil {
		log.Fatal().Err(err).Str("timeZone", cfg.TimeZone).Msg("invalid time zone")
	}

	claimSvc := claims.NewService(repo, publisher, clk).WithLogger(log)
	api := httpapi.NewServer(claimSvc, sessionSvc, export.NewExporter(cfg.CampaignName, loc, clk), idemStore, clk, log)
	api.Organizations = cfg.Organizations
	api.AdminPath = cfg.AdminPath
	if len(cfg.Organizations) == 0 {
		log.Warn().Msg("no organizations configured; the claim form will be empty")
	}

	handler := httpapi.NewRouter(api, httpapi.RouterOptions{
		AuthMiddleware: httpapi.NewAuthMiddleware(httpapi.VerifierFunc(sessionSvc.Current)),
		SubmitLimiter:  httpapi.NewRateLimiter(cfg.SubmitRateLimit.PerMinute, cfg.SubmitRateLimit.Burst, 10*time.Minute),
		AccessLog:      true,
		Logger:         log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("store", cfg.StoreBackend).
			Str("auth", cfg.AuthMode).
			Str("adminPath", cfg.AdminPath).
			Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

// newIdentityProvider returns nil (not an error) when the hosted provider is not
// configured, so session routes answer CONFIGURATION_ERROR instead of the process exiting.
func newIdentityProvider(cfg config.Config, clk platformclock.SystemClock, log zerolog.Logger) (identity.Provider, error) {
	if cfg.AuthMode == config.AuthModeDev {
		p := memidentity.NewProvider(clk, cfg.SessionTTL)
		if err := p.AddAccount(cfg.DevAdminEmail, cfg.DevAdminPassword); err != nil {
			return nil, err
		}
		log.Warn().Str("email", cfg.DevAdminEmail).Msg("AUTH_MODE=dev: using in-memory admin account")
		return p, nil
	}

	gcfg := gotrue.Config{URL: cfg.Supabase.URL, Key: cfg.Supabase.AnonKey}
	if cfg.JWT != nil {
		gcfg.Verifier = jwtverifier.New(*cfg.JWT)
	}
	p, err := gotrue.New(gcfg)
	if errors.Is(err, gotrue.ErrNotConfigured) {
		log.Warn().Msg("identity provider not configured")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
