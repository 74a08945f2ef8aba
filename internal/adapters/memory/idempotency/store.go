package idempotency

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kominfo-unma/canva-claim-api/internal/ports/out/idempotency"
)

// DefaultTTL bounds how long a submission can be replayed.
const DefaultTTL = 24 * time.Hour

// Store is an in-memory implementation of idempotency.Store.
// Records expire after the configured TTL. It is safe for concurrent use.
type Store struct {
	c *gocache.Cache
}

func NewStore() *Store {
	return NewStoreWithTTL(DefaultTTL)
}

func NewStoreWithTTL(ttl time.Duration) *Store {
	return &Store{c: gocache.New(ttl, ttl/2)}
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	_ = ctx
	v, ok := s.c.Get(cacheKey(fp))
	if !ok {
		return idempotency.Record{}, false, nil
	}
	return v.(idempotency.Record), true, nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	_ = ctx
	s.c.SetDefault(cacheKey(fp), rec)
	return nil
}

func cacheKey(fp idempotency.Fingerprint) string {
	return string(fp.Key) + "\x00" + fp.Client + "\x00" + fp.Method + "\x00" + fp.Route + "\x00" + fp.BodyHash
}
