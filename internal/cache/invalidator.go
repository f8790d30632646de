package cache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/socialstream/platform/internal/metrics"
)

// Invalidator purges every cache prefix a committed write could have left
// stale. Over-invalidation only costs reads; under-invalidation would be a
// correctness bug, so purges are whole-prefix.
type Invalidator struct {
	store  *Store
	logger *zerolog.Logger
}

func NewInvalidator(store *Store, logger *zerolog.Logger) *Invalidator {
	return &Invalidator{store: store, logger: logger}
}

// Invalidate purges the given prefixes. It runs after the store commit and
// never fails the write: a failed purge is logged and counted, and the
// stale entries expire via TTL.
func (inv *Invalidator) Invalidate(ctx context.Context, prefixes ...string) {
	if inv == nil || inv.store == nil {
		return
	}
	for _, prefix := range prefixes {
		if err := inv.store.PurgePrefix(ctx, prefix); err != nil {
			metrics.CacheInvalidationFailures.Inc()
			inv.logger.Error().Err(err).Str("prefix", prefix).
				Msg("cache purge failed, entries left to TTL expiry")
		}
	}
}

// InvalidateAsync detaches the purge from the request so the client-visible
// response is never blocked on it.
func (inv *Invalidator) InvalidateAsync(prefixes ...string) {
	if inv == nil || inv.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		inv.Invalidate(ctx, prefixes...)
	}()
}
