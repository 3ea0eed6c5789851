package heuristics

import (
	"math"

	"github.com/rawblock/txflow-engine/pkg/models"
)

// Cluster Merger
//
// Candidate clusters from the grouping passes overlap heavily (a burst of
// identical payments shows up in all three lenses). The merger walks the
// candidates in input order; each unprocessed candidate becomes an anchor and
// absorbs every later unprocessed candidate whose Jaccard similarity with the
// accumulating anchor meets the threshold.
//
// This is a greedy single pass, not a transitive closure: if A~B and B~C but
// A≁C, whether C joins depends on how far B pulled the anchor. Absorbed
// clusters never become anchors themselves.

// Jaccard returns |A∩B| / |A∪B| over the transaction signature sets
func Jaccard(a, b models.Cluster) float64 {
	setA := signatureSet(a)
	setB := signatureSet(b)

	intersection := 0
	for sig := range setA {
		if _, ok := setB[sig]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// MergeClusters consolidates overlapping clusters, returning one cluster per
// merge group in first-seen order. The input slice is not modified.
func MergeClusters(clusters []models.Cluster, cfg MergeConfig) []models.Cluster {
	processed := make([]bool, len(clusters))
	merged := make([]models.Cluster, 0, len(clusters))

	for i := range clusters {
		if processed[i] {
			continue
		}
		processed[i] = true
		anchor := cloneCluster(clusters[i])

		for j := i + 1; j < len(clusters); j++ {
			if processed[j] {
				continue
			}
			if Jaccard(anchor, clusters[j]) >= cfg.SimilarityThreshold {
				anchor = mergePair(anchor, clusters[j])
				processed[j] = true
			}
		}
		merged = append(merged, anchor)
	}
	return merged
}

// mergePair unions b into a
func mergePair(a, b models.Cluster) models.Cluster {
	txs := make([]models.Transaction, 0, len(a.Transactions)+len(b.Transactions))
	txs = append(txs, a.Transactions...)
	txs = append(txs, b.Transactions...)

	out := models.Cluster{
		Score:       math.Max(a.Score, b.Score),
		Type:        a.Type,
		Description: "Merged: " + a.Description + " & " + b.Description,
		CreatedAt:   a.CreatedAt,
	}
	if b.Type.Severity() > a.Type.Severity() {
		out.Type = b.Type
	}
	setTransactions(&out, txs)
	return out
}

func cloneCluster(c models.Cluster) models.Cluster {
	out := c
	out.Transactions = make([]models.Transaction, len(c.Transactions))
	copy(out.Transactions, c.Transactions)
	out.Wallets = make([]string, len(c.Wallets))
	copy(out.Wallets, c.Wallets)
	return out
}
