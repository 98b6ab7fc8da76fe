package gate

import (
	"context"
	"fmt"
	"time"

	"paygateway/src/cache"

	"github.com/google/uuid"
)

const claimKeyPrefix = "idempotency:"

// Gate atomically claims correlation ids so the same client submission is
// accepted at most once. Claims live in the shared cache under a bounded TTL;
// the durable existence check in the service layer backstops expiry.
type Gate struct {
	cache cache.Cache
	ttl   time.Duration
}

func New(c cache.Cache, ttl time.Duration) *Gate {
	return &Gate{cache: c, ttl: ttl}
}

// Claim returns true if and only if no live claim existed for the id.
// First writer wins; concurrent callers are serialized by the cache's
// atomic set-if-absent.
func (g *Gate) Claim(ctx context.Context, correlationID uuid.UUID) (bool, error) {
	ok, err := g.cache.SetIfAbsent(ctx, claimKey(correlationID), true, g.ttl)
	if err != nil {
		return false, fmt.Errorf("claim correlation id %s: %w", correlationID, err)
	}
	return ok, nil
}

// Release undoes a claim so a client retry is not blocked by an attempt that
// never produced a payment row.
func (g *Gate) Release(ctx context.Context, correlationID uuid.UUID) error {
	return g.cache.Delete(ctx, claimKey(correlationID))
}

func claimKey(correlationID uuid.UUID) string {
	return claimKeyPrefix + correlationID.String()
}
