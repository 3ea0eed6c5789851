package heuristics

import (
	"fmt"
	"testing"
	"time"

	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *ClusterEngine {
	return NewClusterEngine(DefaultConfig()).WithClock(fixedClock)
}

func TestClusterEngine_TooFewTransactions(t *testing.T) {
	txs := identicalPayments()[:2]
	clusters := newTestEngine().Cluster("S", txs)
	assert.NotNil(t, clusters)
	assert.Empty(t, clusters)
}

func TestClusterEngine_IdenticalOutgoingPayments(t *testing.T) {
	clusters := newTestEngine().Cluster("S", identicalPayments())

	require.Len(t, clusters, 1)
	c := clusters[0]
	assert.Len(t, c.Transactions, 5)
	assert.Len(t, c.Wallets, 6)
	assert.Equal(t, 0.8, c.Score)
	assert.Equal(t, models.ClusterUnusual, c.Type)
	assert.Contains(t, c.Description, noteNoIncoming)
	assert.NotContains(t, c.Description, noteRegularTiming)
}

func TestClusterEngine_MixedDirectionStaysNormal(t *testing.T) {
	txs := identicalPayments()
	txs[4].SourceAddress, txs[4].DestinationAddress = "C5", "S"

	clusters := newTestEngine().Cluster("S", txs)
	require.Len(t, clusters, 1)
	assert.Equal(t, models.ClusterNormal, clusters[0].Type)
}

func TestClusterEngine_Idempotent(t *testing.T) {
	engine := newTestEngine()
	txs := append(identicalPayments(),
		transfer("x1", "S", "W", "3", 30*time.Hour),
		transfer("x2", "W", "S", "4", 31*time.Hour),
		transfer("x3", "S", "W", "5", 32*time.Hour),
	)

	first := engine.Cluster("S", txs)
	second := engine.Cluster("S", txs)
	assert.Equal(t, first, second)
}

func TestClusterEngine_WashTradingIsSuspicious(t *testing.T) {
	var txs []models.Transaction
	for i := 0; i < 6; i++ {
		src, dst := "S", "W"
		if i%2 == 1 {
			src, dst = dst, src
		}
		txs = append(txs, transfer(fmt.Sprintf("w%d", i), src, dst, fmt.Sprintf("%d", i+1), time.Duration(i)*time.Hour))
	}

	clusters := newTestEngine().Cluster("S", txs)
	require.NotEmpty(t, clusters)
	for _, c := range clusters {
		if len(c.Transactions) > 5 {
			assert.Equal(t, models.ClusterSuspicious, c.Type)
		}
	}
}

func TestEntityGraph(t *testing.T) {
	clusters := []models.Cluster{
		{Wallets: []string{"A", "B"}},
		{Wallets: []string{"B", "C"}},
		{Wallets: []string{"D", "E"}},
		{Wallets: []string{}},
	}

	g := BuildEntityGraph(clusters)
	assert.Equal(t, 2, g.TotalEntities())
	assert.Equal(t, []string{"A", "B", "C"}, g.Members("C"))
	assert.Equal(t, 3, g.Size("A"))
	assert.False(t, g.Union("A", "C"))
	assert.True(t, g.Union("C", "D"))
	assert.Equal(t, 5, g.Size("E"))
	assert.Equal(t, 1, g.TotalEntities())
	assert.Equal(t, g.Find("A"), g.Find("E"))
}
