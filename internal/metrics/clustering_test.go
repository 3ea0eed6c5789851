package metrics

import (
	"testing"

	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/stretchr/testify/assert"
)

func clusterOf(sigs ...string) models.Cluster {
	c := models.Cluster{}
	for _, s := range sigs {
		c.Transactions = append(c.Transactions, models.Transaction{Signature: s})
	}
	return c
}

func TestAdjustedRandIndex(t *testing.T) {
	assert.Equal(t, 1.0, AdjustedRandIndex([]int{0, 0, 1, 1}, []int{5, 5, 7, 7}))
	assert.InDelta(t, 0.0, AdjustedRandIndex([]int{0, 0, 0, 1, 1, 1}, []int{0, 0, 0, 0, 0, 0}), 1e-9)
	assert.Equal(t, 0.0, AdjustedRandIndex([]int{0}, []int{0}))
	assert.Equal(t, 0.0, AdjustedRandIndex([]int{0, 1}, []int{0}))
}

func TestVariationOfInformation(t *testing.T) {
	assert.InDelta(t, 0.0, VariationOfInformation([]int{0, 0, 1, 1}, []int{1, 1, 0, 0}), 1e-9)
	assert.InDelta(t, 1.0, VariationOfInformation([]int{0, 0, 0, 1, 1, 1}, []int{0, 0, 0, 0, 0, 0}), 1e-9)
}

func TestClusterAgreement(t *testing.T) {
	before := []models.Cluster{clusterOf("a", "b", "c"), clusterOf("d", "e", "f")}

	assert.Equal(t, 1.0, ClusterAgreement(before, before))
	assert.Equal(t, 1.0, ClusterAgreement(nil, nil))

	merged := []models.Cluster{clusterOf("a", "b", "c", "d", "e", "f")}
	assert.InDelta(t, 0.0, ClusterAgreement(before, merged), 1e-9)

	grown := []models.Cluster{clusterOf("a", "b", "c", "g"), clusterOf("d", "e", "f")}
	agreement := ClusterAgreement(before, grown)
	assert.Less(t, agreement, 1.0)
	assert.Greater(t, agreement, 0.5)
}

func TestClusterDivergence(t *testing.T) {
	before := []models.Cluster{clusterOf("a", "b", "c"), clusterOf("d", "e", "f")}

	assert.InDelta(t, 0.0, ClusterDivergence(before, before), 1e-9)
	assert.Equal(t, 0.0, ClusterDivergence(nil, nil))

	// merging two equal halves loses exactly one bit
	merged := []models.Cluster{clusterOf("a", "b", "c", "d", "e", "f")}
	assert.InDelta(t, 1.0, ClusterDivergence(before, merged), 1e-9)
}

func TestLabelSignatures_FirstClusterWins(t *testing.T) {
	clusters := []models.Cluster{clusterOf("a", "b"), clusterOf("b", "c")}
	labels := labelSignatures(clusters, []string{"a", "b", "c", "z"})
	assert.Equal(t, []int{0, 0, 1, 2}, labels)
}
