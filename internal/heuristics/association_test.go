package heuristics

import (
	"fmt"
	"testing"
	"time"

	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreAssociations(t *testing.T) {
	var washTxs []models.Transaction
	for i := 0; i < 6; i++ {
		washTxs = append(washTxs, transfer(fmt.Sprintf("w%d", i), "S", "W1", "1", time.Duration(i)*time.Hour))
	}
	wash := newCluster(washTxs, 0.9, "", baseTime)
	wash.Type = models.ClusterSuspicious

	shared := newCluster([]models.Transaction{transfer("n1", "W2", "S", "2", 0)}, 0.8, "", baseTime)

	unrelated := newCluster([]models.Transaction{transfer("u1", "X", "Y", "3", 0)}, 0.8, "", baseTime)
	unrelated.Type = models.ClusterUnusual

	scores := ScoreAssociations([]models.Cluster{wash, shared, unrelated}, "S", DefaultAssociationConfig())
	require.Len(t, scores, 2)

	assert.Equal(t, "W1", scores[0].Address)
	assert.Equal(t, 1.0, scores[0].Score)
	assert.Equal(t, []string{reasonSuspicious, reasonFrequent}, scores[0].Reasons)
	assert.Equal(t, 6, scores[0].TransactionCount)

	assert.Equal(t, "W2", scores[1].Address)
	assert.Equal(t, 0.2, scores[1].Score)
	assert.Equal(t, []string{reasonShared}, scores[1].Reasons)

	for _, s := range scores {
		assert.GreaterOrEqual(t, s.Score, 0.0)
		assert.LessOrEqual(t, s.Score, 1.0)
	}
}

func TestScoreAssociations_DirectTransactionsDeduplicated(t *testing.T) {
	txs := []models.Transaction{
		transfer("d1", "S", "W", "1", 0),
		transfer("d2", "W", "S", "1", time.Hour),
		transfer("d3", "S", "W", "1", 5*time.Hour),
	}
	a := newCluster(txs, 0.8, "", baseTime)
	b := newCluster(txs, 0.75, "", baseTime)

	scores := ScoreAssociations([]models.Cluster{a, b}, "S", DefaultAssociationConfig())
	require.Len(t, scores, 1)
	assert.Equal(t, 3, scores[0].TransactionCount)
	assert.Equal(t, 0.5, scores[0].Score)
	assert.Contains(t, scores[0].Reasons, reasonRepeated)

	assert.Empty(t, FilterAssociations(scores, 0.5))
	assert.Len(t, FilterAssociations(scores, 0.4), 1)
}

func TestScoreAssociations_SubjectAbsent(t *testing.T) {
	c := newCluster([]models.Transaction{transfer("u1", "X", "Y", "3", 0)}, 0.8, "", baseTime)
	assert.Empty(t, ScoreAssociations([]models.Cluster{c}, "S", DefaultAssociationConfig()))
}
