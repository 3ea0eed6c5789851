//go:build integration

package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rawblock/txflow-engine/internal/ledger"
	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := Connect(ctx, url, PoolOptions{MaxConns: 4}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.InitSchema(ctx))
	t.Cleanup(store.Close)
	return store
}

func TestPostgresStore_TransactionsRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	subject := "subj-" + uuid.NewString()[:8]
	when := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	txs := []models.Transaction{
		{Signature: uuid.NewString(), BlockTime: &when, SourceAddress: "X", DestinationAddress: subject,
			Amount: decimal.NewNullDecimal(decimal.RequireFromString("1.25")), Type: models.TxTypeTransfer},
		{Signature: uuid.NewString(), SourceAddress: subject, DestinationAddress: "Y", Type: models.TxTypeSwap},
	}
	require.NoError(t, store.SaveTransactions(ctx, txs))
	require.NoError(t, store.SaveTransactions(ctx, txs))

	got, err := store.ListTransactions(ctx, subject, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1.25", got[0].Amount.Decimal.String())
	assert.False(t, got[1].Amount.Valid)
	assert.Equal(t, models.TxTypeSwap, got[1].Type)
}

func TestPostgresStore_WalletAndUpserts(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	address := "wallet-" + uuid.NewString()[:8]

	_, err := store.GetWallet(ctx, address)
	require.ErrorIs(t, err, ledger.ErrNotFound)

	w1, err := store.EnsureWallet(ctx, address, "user-1")
	require.NoError(t, err)
	w2, err := store.EnsureWallet(ctx, address, "")
	require.NoError(t, err)
	assert.Equal(t, w1.ID, w2.ID)

	fs := models.FundingSource{
		WalletAddress: address, SourceAddress: "X", TotalAmount: decimal.NewFromInt(2),
		TransactionCount: 1, IsDirectSource: true, Confidence: 1.0, Path: []string{"X", address},
	}
	require.NoError(t, store.UpsertFundingSources(ctx, []models.FundingSource{fs}))
	require.NoError(t, store.UpsertFundingSources(ctx, []models.FundingSource{fs}))

	sources, err := store.ListFundingSources(ctx, address)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "4", sources[0].TotalAmount.String())
	assert.Equal(t, 2, sources[0].TransactionCount)

	indirect := models.FundingSource{
		WalletAddress: address, SourceAddress: "X", TotalAmount: decimal.NewFromInt(7),
		TransactionCount: 1, Confidence: 0.8, Path: []string{"X", "Y", address},
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, store.UpsertFundingSources(ctx, []models.FundingSource{indirect}))
	}
	sources, err = store.ListFundingSources(ctx, address)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "4", sources[0].TotalAmount.String())
	assert.False(t, sources[1].IsDirectSource)
	assert.Equal(t, "7", sources[1].TotalAmount.String())
	assert.Equal(t, 1, sources[1].TransactionCount)
	assert.InDelta(t, 0.8, sources[1].Confidence, 1e-9)

	p := models.ActivityPattern{WalletID: w1.ID, Pattern: "burst_activity", Confidence: 0.8, UpdatedAt: time.Now().UTC()}
	_, err = store.UpsertActivityPatterns(ctx, []models.ActivityPattern{p})
	require.NoError(t, err)
	rows, err := store.UpsertActivityPatterns(ctx, []models.ActivityPattern{p})
	require.NoError(t, err)
	assert.InDelta(t, 0.9, rows[0].Confidence, 1e-9)
}
