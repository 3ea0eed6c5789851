package metrics

import (
	"math"
	"sort"

	"github.com/rawblock/txflow-engine/pkg/models"
)

// Partition agreement
//
// Two clustering runs over the same wallet can be compared by treating each
// run as a partition of the transaction signatures. Signatures claimed by
// several clusters belong to the first one; signatures claimed by none are
// singletons.
//
// ARI = (Σ C(n_ij,2) − E) / (½(Σ C(a_i,2) + Σ C(b_j,2)) − E)
// with E = Σ C(a_i,2) · Σ C(b_j,2) / C(n,2).
// 1 = identical, 0 = chance level, negative = worse than chance.

// ClusterAgreement returns the adjusted Rand index between two clusterings
// of the same transactions, computed over the union of their signatures.
func ClusterAgreement(before, after []models.Cluster) float64 {
	a, b := signatureLabels(before, after)
	if len(a) == 0 {
		return 1.0
	}
	return AdjustedRandIndex(a, b)
}

// ClusterDivergence returns the variation of information between two
// clusterings in bits, over the same labeling as ClusterAgreement.
// 0 means the runs partition the signatures identically.
func ClusterDivergence(before, after []models.Cluster) float64 {
	a, b := signatureLabels(before, after)
	return VariationOfInformation(a, b)
}

// signatureLabels labels the union of signatures of both runs
func signatureLabels(before, after []models.Cluster) ([]int, []int) {
	universe := make(map[string]bool)
	for _, set := range [][]models.Cluster{before, after} {
		for _, c := range set {
			for _, tx := range c.Transactions {
				universe[tx.Signature] = true
			}
		}
	}
	if len(universe) == 0 {
		return nil, nil
	}

	sigs := make([]string, 0, len(universe))
	for sig := range universe {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)
	return labelSignatures(before, sigs), labelSignatures(after, sigs)
}

// labelSignatures assigns a partition label to every signature
func labelSignatures(clusters []models.Cluster, sigs []string) []int {
	owner := make(map[string]int)
	for i, c := range clusters {
		for _, tx := range c.Transactions {
			if _, taken := owner[tx.Signature]; !taken {
				owner[tx.Signature] = i
			}
		}
	}

	labels := make([]int, len(sigs))
	next := len(clusters)
	for i, sig := range sigs {
		if label, ok := owner[sig]; ok {
			labels[i] = label
			continue
		}
		labels[i] = next
		next++
	}
	return labels
}

// contingency is the cross-tabulation of two labelings of the same items
type contingency struct {
	n       int
	cells   map[[2]int]int
	rowSums map[int]int
	colSums map[int]int
}

func newContingency(a, b []int) contingency {
	ct := contingency{
		n:       len(a),
		cells:   make(map[[2]int]int),
		rowSums: make(map[int]int),
		colSums: make(map[int]int),
	}
	for k := range a {
		ct.cells[[2]int{a[k], b[k]}]++
		ct.rowSums[a[k]]++
		ct.colSums[b[k]]++
	}
	return ct
}

// AdjustedRandIndex compares two labelings of the same items. Returns 0 when
// the inputs differ in length or have fewer than two items.
func AdjustedRandIndex(a, b []int) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0.0
	}
	ct := newContingency(a, b)

	sumCells := 0.0
	for _, n := range ct.cells {
		sumCells += comb2(n)
	}
	sumRows := 0.0
	for _, n := range ct.rowSums {
		sumRows += comb2(n)
	}
	sumCols := 0.0
	for _, n := range ct.colSums {
		sumCols += comb2(n)
	}

	expected := sumRows * sumCols / comb2(ct.n)
	maxIndex := 0.5 * (sumRows + sumCols)
	denominator := maxIndex - expected
	if math.Abs(denominator) < 1e-12 {
		return 1.0
	}
	return (sumCells - expected) / denominator
}

// VariationOfInformation is H(A|B) + H(B|A) in bits; 0 means identical
// partitions.
func VariationOfInformation(a, b []int) float64 {
	if len(a) != len(b) || len(a) < 2 {
		return 0.0
	}
	ct := newContingency(a, b)
	n := float64(ct.n)

	vi := 0.0
	for cell, count := range ct.cells {
		p := float64(count) / n
		vi -= p * math.Log2(float64(count)/float64(ct.colSums[cell[1]]))
		vi -= p * math.Log2(float64(count)/float64(ct.rowSums[cell[0]]))
	}
	return vi
}

// comb2 computes C(n, 2)
func comb2(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(n) * float64(n-1) / 2.0
}
