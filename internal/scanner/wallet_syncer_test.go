package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rawblock/txflow-engine/internal/address"
	"github.com/rawblock/txflow-engine/internal/cache"
	"github.com/rawblock/txflow-engine/internal/heuristics"
	"github.com/rawblock/txflow-engine/internal/ledger"
	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func wallet(b byte) string {
	var key [address.PublicKeyLength]byte
	for i := range key {
		key[i] = b
	}
	return address.Encode(key)
}

func payment(i int, src, dst string) models.Transaction {
	when := baseTime.Add(time.Duration(i) * 20 * time.Minute)
	return models.Transaction{
		Signature:          fmt.Sprintf("sig-%03d", i),
		BlockTime:          &when,
		SourceAddress:      src,
		DestinationAddress: dst,
		Amount:             decimal.NewNullDecimal(decimal.NewFromInt(10)),
		Type:               models.TxTypeTransfer,
	}
}

// fakeSource serves a fixed history per address
type fakeSource struct {
	mu      sync.Mutex
	history map[string][]models.Transaction
	limits  []int
	err     error
}

func (f *fakeSource) RecentTransactions(_ context.Context, addr string, limit int) ([]models.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limits = append(f.limits, limit)
	if f.err != nil {
		return nil, f.err
	}
	txs := f.history[addr]
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func newTestSyncer(src ChainSource, l ledger.Ledger, opts ...Option) *WalletSyncer {
	engine := heuristics.NewClusterEngine(heuristics.DefaultConfig()).WithClock(func() time.Time { return baseTime })
	return NewWalletSyncer(src, l, engine, opts...)
}

func TestSync_StoresNewTransactions(t *testing.T) {
	subject := wallet(1)
	var history []models.Transaction
	for i := 0; i < 5; i++ {
		history = append(history, payment(i, subject, wallet(byte(10+i))))
	}
	src := &fakeSource{history: map[string][]models.Transaction{subject: history}}
	l := ledger.NewMemoryLedger()
	syncer := newTestSyncer(src, l)
	ctx := context.Background()

	res, err := syncer.Sync(ctx, subject, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Fetched)
	assert.Equal(t, 5, res.Stored)
	assert.Equal(t, 1, res.Clusters)
	// nothing clustered before the first sync
	assert.Equal(t, 0.0, res.Drift)
	// five singletons collapsing into one cluster
	assert.InDelta(t, math.Log2(5), res.Divergence, 1e-9)
	assert.Equal(t, []int{ledger.DefaultTransactionLimit}, src.limits)

	stored, err := l.ListTransactions(ctx, subject, 10)
	require.NoError(t, err)
	assert.Len(t, stored, 5)
	_, err = l.GetWallet(ctx, subject)
	require.NoError(t, err, "wallet tracked after sync")

	again, err := syncer.Sync(ctx, subject, 5000)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Stored)
	assert.Equal(t, 1.0, again.Drift)
	assert.InDelta(t, 0.0, again.Divergence, 1e-9)
	assert.Equal(t, MaxSyncLimit, src.limits[1])
}

func TestSync_InvalidAddress(t *testing.T) {
	syncer := newTestSyncer(&fakeSource{}, ledger.NewMemoryLedger())
	_, err := syncer.Sync(context.Background(), "nope", 10)
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestSync_SourceErrorPropagates(t *testing.T) {
	errRPC := errors.New("rpc down")
	syncer := newTestSyncer(&fakeSource{err: errRPC}, ledger.NewMemoryLedger())
	_, err := syncer.Sync(context.Background(), wallet(1), 10)
	require.ErrorIs(t, err, errRPC)
}

func TestSync_LockHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{Addr: mr.Addr(), Prefix: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	subject := wallet(1)
	src := &fakeSource{history: map[string][]models.Transaction{subject: {payment(0, subject, wallet(2))}}}
	syncer := newTestSyncer(src, ledger.NewMemoryLedger(), WithLocker(rc, time.Minute))

	held, err := rc.TryLock(ctx, "sync:"+subject, time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	_, err = syncer.Sync(ctx, subject, 10)
	require.ErrorIs(t, err, ErrSyncInProgress)

	require.NoError(t, rc.Unlock(ctx, "sync:"+subject))
	res, err := syncer.Sync(ctx, subject, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stored)

	// released after the sync
	again, err := rc.TryLock(ctx, "sync:"+subject, time.Minute)
	require.NoError(t, err)
	assert.True(t, again)
}

func TestSyncAll(t *testing.T) {
	a, b := wallet(1), wallet(2)
	src := &fakeSource{history: map[string][]models.Transaction{
		a: {payment(0, a, wallet(3)), payment(1, a, wallet(4))},
		b: {payment(2, wallet(5), b)},
	}}
	syncer := newTestSyncer(src, ledger.NewMemoryLedger())

	require.NoError(t, syncer.SyncAll(context.Background(), []string{a, "bad", b}))

	require.Eventually(t, func() bool { return !syncer.GetProgress().IsRunning }, 2*time.Second, 10*time.Millisecond)
	p := syncer.GetProgress()
	assert.Equal(t, int64(3), p.TotalWallets)
	assert.Equal(t, int64(2), p.WalletsSynced)
	assert.Equal(t, int64(3), p.TxsStored)
	assert.Equal(t, int64(1), p.Failures)
}

func TestWatcher_PollAnalyzesUpdatedWallets(t *testing.T) {
	a, b := wallet(1), wallet(2)
	src := &fakeSource{history: map[string][]models.Transaction{
		a: {payment(0, a, wallet(3))},
	}}
	syncer := newTestSyncer(src, ledger.NewMemoryLedger())

	var analyzed []string
	w := NewWatcher(syncer, []string{a, b}, time.Minute, func(_ context.Context, addr string) error {
		analyzed = append(analyzed, addr)
		return nil
	})

	assert.Equal(t, 1, w.Poll(context.Background()))
	assert.Equal(t, []string{a}, analyzed)

	// nothing new on the second pass
	assert.Equal(t, 0, w.Poll(context.Background()))
	assert.Len(t, analyzed, 1)

	src.mu.Lock()
	src.history[b] = []models.Transaction{payment(1, wallet(4), b)}
	src.mu.Unlock()
	assert.Equal(t, 1, w.Poll(context.Background()))
	assert.Equal(t, []string{a, b}, analyzed)
}
