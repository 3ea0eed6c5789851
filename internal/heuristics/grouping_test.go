package heuristics

import (
	"testing"
	"time"

	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupTransactions_BelowMinimum(t *testing.T) {
	txs := []models.Transaction{
		transfer("s1", "S", "A", "10", 0),
		transfer("s2", "S", "B", "10", time.Minute),
	}
	assert.Nil(t, GroupTransactions(txs, DefaultGroupingConfig(), baseTime))
}

func TestGroupTransactions_IdenticalPayments(t *testing.T) {
	txs := identicalPayments()
	candidates := GroupTransactions(txs, DefaultGroupingConfig(), baseTime)

	require.Len(t, candidates, 3)
	assert.Equal(t, 0.8, candidates[0].Score)
	assert.Equal(t, 0.75, candidates[1].Score)
	assert.Contains(t, candidates[1].Description, "~10.0000")
	assert.Equal(t, 0.7, candidates[2].Score)
	for _, c := range candidates {
		assert.Len(t, c.Transactions, 5)
		assert.Equal(t, candidates[0].ID, c.ID, "identical membership yields identical IDs")
	}
}

func TestTemporalClusters_WindowMeasuredFromRunStart(t *testing.T) {
	txs := []models.Transaction{
		transfer("t1", "S", "A", "1", 0),
		transfer("t2", "S", "A", "2", 10*time.Hour),
		transfer("t3", "S", "A", "3", 20*time.Hour),
		transfer("t4", "S", "A", "4", 25*time.Hour),
		transfer("t5", "S", "A", "5", 26*time.Hour),
		transfer("t6", "S", "A", "6", 27*time.Hour),
		{Signature: "untimed", SourceAddress: "S", DestinationAddress: "A"},
	}

	clusters := TemporalClusters(txs, DefaultGroupingConfig(), baseTime)
	require.Len(t, clusters, 2)
	assert.ElementsMatch(t, []string{"t1", "t2", "t3"}, signaturesOf(clusters[0]))
	assert.ElementsMatch(t, []string{"t4", "t5", "t6"}, signaturesOf(clusters[1]))
}

func TestTemporalClusters_ShortRunDropped(t *testing.T) {
	txs := []models.Transaction{
		transfer("t1", "S", "A", "1", 0),
		transfer("t2", "S", "A", "2", time.Hour),
		transfer("t3", "S", "A", "3", 48*time.Hour),
	}
	assert.Empty(t, TemporalClusters(txs, DefaultGroupingConfig(), baseTime))
}

func TestAmountClusters_RelativeTolerance(t *testing.T) {
	txs := []models.Transaction{
		transfer("a1", "S", "A", "10", 0),
		transfer("a2", "S", "B", "10.4", time.Hour),
		transfer("a3", "S", "C", "9.6", 2*time.Hour),
		transfer("a4", "S", "D", "10.6", 3*time.Hour),
		transfer("a5", "S", "E", "50", 4*time.Hour),
		{Signature: "no-amount", SourceAddress: "S", DestinationAddress: "F"},
	}

	clusters := AmountClusters(txs, DefaultGroupingConfig(), baseTime)
	require.Len(t, clusters, 1)
	assert.ElementsMatch(t, []string{"a1", "a2", "a3"}, signaturesOf(clusters[0]))
	assert.Contains(t, clusters[0].Description, "~10.0000")
}

func TestWithinTolerance_ZeroRepresentative(t *testing.T) {
	assert.True(t, withinTolerance(decimal.Zero, decimal.Zero, 0.05))
	assert.False(t, withinTolerance(decimal.NewFromInt(1), decimal.Zero, 0.05))
}

func TestPairClusters_Circular(t *testing.T) {
	txs := []models.Transaction{
		transfer("p1", "A", "B", "1", 0),
		transfer("p2", "A", "B", "2", time.Hour),
		transfer("p3", "B", "A", "3", 2*time.Hour),
		transfer("p4", "B", "A", "4", 3*time.Hour),
	}

	clusters := PairClusters(txs, DefaultGroupingConfig(), baseTime)
	require.Len(t, clusters, 2)
	for _, c := range clusters {
		assert.Equal(t, 0.9, c.Score)
		assert.Contains(t, c.Description, "Circular transaction pattern")
	}
}

func TestPairClusters_RepeatedCounterparty(t *testing.T) {
	txs := []models.Transaction{
		transfer("p1", "A", "B", "1", 0),
		transfer("p2", "A", "B", "2", time.Hour),
		transfer("p3", "A", "C", "3", 2*time.Hour),
	}

	clusters := PairClusters(txs, DefaultGroupingConfig(), baseTime)
	require.Len(t, clusters, 1)
	assert.Equal(t, 0.8, clusters[0].Score)
	assert.ElementsMatch(t, []string{"A", "B"}, clusters[0].Wallets)
}

func TestTypeClusters_EmptyTypeCountsAsOther(t *testing.T) {
	txs := []models.Transaction{
		{Signature: "o1", SourceAddress: "A", DestinationAddress: "B"},
		{Signature: "o2", SourceAddress: "A", DestinationAddress: "C", Type: models.TxTypeOther},
		{Signature: "o3", SourceAddress: "A", DestinationAddress: "D"},
	}

	clusters := TypeClusters(txs, DefaultGroupingConfig(), baseTime)
	require.Len(t, clusters, 1)
	assert.Contains(t, clusters[0].Description, "Repeated other transactions: 3 occurrences")
}

func TestNewCluster_WalletsMatchTransactions(t *testing.T) {
	txs := []models.Transaction{
		transfer("w1", "A", "B", "1", 0),
		transfer("w1", "A", "B", "1", 0),
		{Signature: "w2", SourceAddress: "C"},
	}

	c := newCluster(txs, 0.5, "", baseTime)
	assert.Len(t, c.Transactions, 2)
	assert.Equal(t, []string{"A", "B", "C"}, c.Wallets)
	assert.Len(t, c.ID, 64)
}

// identicalPayments is five outgoing transfers of 10.0 to distinct
// counterparties inside two hours at irregular spacing.
func identicalPayments() []models.Transaction {
	return []models.Transaction{
		transfer("e1", "S", "C1", "10.0", 0),
		transfer("e2", "S", "C2", "10.0", 17*time.Minute),
		transfer("e3", "S", "C3", "10.0", 41*time.Minute),
		transfer("e4", "S", "C4", "10.0", 70*time.Minute),
		transfer("e5", "S", "C5", "10.0", 118*time.Minute),
	}
}
