package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rawblock/txflow-engine/internal/ledger"
	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLedger struct {
	*ledger.MemoryLedger
	reads int
}

func (c *countingLedger) ListTransactions(ctx context.Context, address string, limit int) ([]models.Transaction, error) {
	c.reads++
	return c.MemoryLedger.ListTransactions(ctx, address, limit)
}

func newTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(context.Background(), RedisConfig{Addr: mr.Addr(), Prefix: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func sampleTx(sig, src, dst string) models.Transaction {
	when := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return models.Transaction{
		Signature:          sig,
		BlockTime:          &when,
		SourceAddress:      src,
		DestinationAddress: dst,
		Amount:             decimal.NewNullDecimal(decimal.RequireFromString("2.5")),
		Type:               models.TxTypeTransfer,
	}
}

func TestCachedLedger_ReadThrough(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestCache(t)
	backing := &countingLedger{MemoryLedger: ledger.NewMemoryLedger()}
	require.NoError(t, backing.SaveTransactions(ctx, []models.Transaction{sampleTx("a", "S", "X")}))

	cl := NewCachedLedger(backing, rc, time.Minute, zerolog.Nop())

	first, err := cl.ListTransactions(ctx, "S", 10)
	require.NoError(t, err)
	second, err := cl.ListTransactions(ctx, "S", 10)
	require.NoError(t, err)

	assert.Equal(t, 1, backing.reads)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Signature, second[0].Signature)
	assert.True(t, first[0].Amount.Decimal.Equal(second[0].Amount.Decimal))
	assert.True(t, mr.Exists("test:txs:S:10"))

	mr.FastForward(2 * time.Minute)
	_, err = cl.ListTransactions(ctx, "S", 10)
	require.NoError(t, err)
	assert.Equal(t, 2, backing.reads)
}

func TestCachedLedger_SaveInvalidates(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestCache(t)
	backing := &countingLedger{MemoryLedger: ledger.NewMemoryLedger()}
	cl := NewCachedLedger(backing, rc, time.Minute, zerolog.Nop())

	empty, err := cl.ListTransactions(ctx, "S", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, cl.SaveTransactions(ctx, []models.Transaction{sampleTx("a", "X", "S")}))
	assert.False(t, mr.Exists("test:txs:S:10"))

	got, err := cl.ListTransactions(ctx, "S", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, backing.reads)
}

func TestCachedLedger_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	rc, mr := newTestCache(t)
	backing := &countingLedger{MemoryLedger: ledger.NewMemoryLedger()}
	require.NoError(t, backing.SaveTransactions(ctx, []models.Transaction{sampleTx("a", "S", "X")}))
	cl := NewCachedLedger(backing, rc, time.Minute, zerolog.Nop())

	mr.Close()
	got, err := cl.ListTransactions(ctx, "S", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRedisCache_Lock(t *testing.T) {
	ctx := context.Background()
	rc, _ := newTestCache(t)

	ok, err := rc.TryLock(ctx, "wallet:S", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rc.TryLock(ctx, "wallet:S", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rc.Unlock(ctx, "wallet:S"))
	ok, err = rc.TryLock(ctx, "wallet:S", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCache_GetMiss(t *testing.T) {
	rc, _ := newTestCache(t)
	var out []models.Transaction
	assert.ErrorIs(t, rc.Get(context.Background(), "absent", &out), ErrCacheMiss)
}
