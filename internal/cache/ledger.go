package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rawblock/txflow-engine/internal/ledger"
	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/rs/zerolog"
)

// CachedLedger puts a read-through Redis cache in front of transaction
// history reads. Every other Ledger method passes straight through.
// Cache failures are logged and the read falls back to the ledger.
type CachedLedger struct {
	ledger.Ledger
	cache *RedisCache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedLedger wraps next with a transaction cache of the given TTL
func NewCachedLedger(next ledger.Ledger, cache *RedisCache, ttl time.Duration, log zerolog.Logger) *CachedLedger {
	return &CachedLedger{Ledger: next, cache: cache, ttl: ttl, log: log}
}

func txKey(address string, limit int) string {
	return fmt.Sprintf("txs:%s:%d", address, limit)
}

func (c *CachedLedger) ListTransactions(ctx context.Context, address string, limit int) ([]models.Transaction, error) {
	key := txKey(address, limit)

	var cached []models.Transaction
	err := c.cache.Get(ctx, key, &cached)
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, ErrCacheMiss):
		c.log.Warn().Err(err).Str("address", address).Msg("transaction cache read failed")
	}

	txs, err := c.Ledger.ListTransactions(ctx, address, limit)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, txs, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("address", address).Msg("transaction cache write failed")
	}
	return txs, nil
}

// SaveTransactions writes through and invalidates the cached history of
// every address the new transactions touch.
func (c *CachedLedger) SaveTransactions(ctx context.Context, txs []models.Transaction) error {
	if err := c.Ledger.SaveTransactions(ctx, txs); err != nil {
		return err
	}

	touched := make(map[string]bool)
	for _, tx := range txs {
		for _, addr := range []string{tx.SourceAddress, tx.DestinationAddress} {
			if addr == "" || touched[addr] {
				continue
			}
			touched[addr] = true
			if err := c.cache.DeleteByPattern(ctx, fmt.Sprintf("txs:%s:*", addr)); err != nil {
				c.log.Warn().Err(err).Str("address", addr).Msg("transaction cache invalidation failed")
			}
		}
	}
	return nil
}
