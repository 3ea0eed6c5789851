package heuristics

import (
	"fmt"
	"sort"
	"time"

	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/shopspring/decimal"
)

// Similarity & Grouping Passes
//
// Three independent lenses over a wallet's recent history, each producing
// candidate clusters:
//
//   Temporal:  bursts of activity inside a fixed window measured from the
//              first transaction of the run
//   Amount:    transactions whose value is within a relative tolerance of a
//              bucket's representative amount
//   Pattern:   repeated transaction types and repeated (source,destination)
//              pairs, with circular flows (A→B and B→A) scored higher
//
// Candidates overlap freely; the merger consolidates them afterwards.

// GroupTransactions runs all three passes and concatenates their candidates
// in pass order (temporal, amount, pattern). Returns nil when the history is
// shorter than MinTransactions.
func GroupTransactions(txs []models.Transaction, cfg GroupingConfig, now time.Time) []models.Cluster {
	if len(txs) < cfg.MinTransactions {
		return nil
	}

	var candidates []models.Cluster
	candidates = append(candidates, TemporalClusters(txs, cfg, now)...)
	candidates = append(candidates, AmountClusters(txs, cfg, now)...)
	candidates = append(candidates, PatternClusters(txs, cfg, now)...)
	return candidates
}

// TemporalClusters groups timestamped transactions into runs that fit inside
// cfg.TimeWindow from the run's first transaction. Untimed transactions are skipped.
func TemporalClusters(txs []models.Transaction, cfg GroupingConfig, now time.Time) []models.Cluster {
	timed := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.HasTime() {
			timed = append(timed, tx)
		}
	}
	sort.SliceStable(timed, func(i, j int) bool {
		return timed[i].BlockTime.Before(*timed[j].BlockTime)
	})

	var clusters []models.Cluster
	var run []models.Transaction

	closeRun := func() {
		if len(run) >= cfg.MinClusterSize {
			start := *run[0].BlockTime
			span := run[len(run)-1].BlockTime.Sub(start)
			desc := fmt.Sprintf("Temporal cluster: %d transactions within %s starting %s",
				len(run), span.Round(time.Second), start.UTC().Format(time.RFC3339))
			clusters = append(clusters, newCluster(run, cfg.TemporalScore, desc, now))
		}
		run = nil
	}

	for _, tx := range timed {
		if len(run) > 0 && tx.BlockTime.Sub(*run[0].BlockTime) > cfg.TimeWindow {
			closeRun()
		}
		run = append(run, tx)
	}
	closeRun()

	return clusters
}

type amountBucket struct {
	representative decimal.Decimal
	members        []models.Transaction
}

// AmountClusters buckets amount-bearing transactions greedily: each joins the
// first bucket whose representative is within cfg.AmountTolerance, otherwise
// it opens a new bucket keyed by its own amount.
func AmountClusters(txs []models.Transaction, cfg GroupingConfig, now time.Time) []models.Cluster {
	var buckets []*amountBucket

	for _, tx := range txs {
		if !tx.Amount.Valid {
			continue
		}
		placed := false
		for _, b := range buckets {
			if withinTolerance(tx.Amount.Decimal, b.representative, cfg.AmountTolerance) {
				b.members = append(b.members, tx)
				placed = true
				break
			}
		}
		if !placed {
			buckets = append(buckets, &amountBucket{
				representative: tx.Amount.Decimal,
				members:        []models.Transaction{tx},
			})
		}
	}

	var clusters []models.Cluster
	for _, b := range buckets {
		if len(b.members) < cfg.MinClusterSize {
			continue
		}
		desc := fmt.Sprintf("Similar amounts: %d transactions of ~%s", len(b.members), b.representative.StringFixed(4))
		clusters = append(clusters, newCluster(b.members, cfg.AmountScore, desc, now))
	}
	return clusters
}

// withinTolerance reports whether |a-rep|/rep <= tolerance. A zero
// representative only matches zero.
func withinTolerance(a, rep decimal.Decimal, tolerance float64) bool {
	if rep.IsZero() {
		return a.IsZero()
	}
	diff := a.Sub(rep).Abs().Div(rep.Abs())
	return diff.LessThanOrEqual(decimal.NewFromFloat(tolerance))
}

// PatternClusters finds repeated transaction types and repeated address pairs
func PatternClusters(txs []models.Transaction, cfg GroupingConfig, now time.Time) []models.Cluster {
	clusters := TypeClusters(txs, cfg, now)
	return append(clusters, PairClusters(txs, cfg, now)...)
}

// TypeClusters groups transactions by type; an empty type counts as other
func TypeClusters(txs []models.Transaction, cfg GroupingConfig, now time.Time) []models.Cluster {
	var order []models.TxType
	byType := make(map[models.TxType][]models.Transaction)
	for _, tx := range txs {
		t := tx.Type
		if t == "" {
			t = models.TxTypeOther
		}
		if _, ok := byType[t]; !ok {
			order = append(order, t)
		}
		byType[t] = append(byType[t], tx)
	}

	var clusters []models.Cluster
	for _, t := range order {
		group := byType[t]
		if len(group) < cfg.MinClusterSize {
			continue
		}
		desc := fmt.Sprintf("Repeated %s transactions: %d occurrences", t, len(group))
		clusters = append(clusters, newCluster(group, cfg.TypeScore, desc, now))
	}
	return clusters
}

// pairGroup is the transactions of one exact (source, destination) pair
type pairGroup struct {
	src, dst string
	txs      []models.Transaction
	circular bool // the reverse pair also occurs
}

// pairGroups returns the pairs with at least MinPairClusterSize transactions
// in first-seen order.
func pairGroups(txs []models.Transaction, cfg GroupingConfig) []pairGroup {
	type pair struct{ src, dst string }
	var order []pair
	byPair := make(map[pair][]models.Transaction)
	for _, tx := range txs {
		p := pair{tx.SourceAddress, tx.DestinationAddress}
		if _, ok := byPair[p]; !ok {
			order = append(order, p)
		}
		byPair[p] = append(byPair[p], tx)
	}

	var groups []pairGroup
	for _, p := range order {
		group := byPair[p]
		if len(group) < cfg.MinPairClusterSize {
			continue
		}
		_, reverse := byPair[pair{p.dst, p.src}]
		groups = append(groups, pairGroup{src: p.src, dst: p.dst, txs: group, circular: reverse && p.src != p.dst})
	}
	return groups
}

// PairClusters groups transactions by exact (source, destination) pair. A
// pair whose reverse also occurs is reported as circular at CircularScore.
func PairClusters(txs []models.Transaction, cfg GroupingConfig, now time.Time) []models.Cluster {
	var clusters []models.Cluster
	for _, g := range pairGroups(txs, cfg) {
		if g.circular {
			desc := fmt.Sprintf("Circular transaction pattern between %s and %s", g.src, g.dst)
			clusters = append(clusters, newCluster(g.txs, cfg.CircularScore, desc, now))
			continue
		}
		desc := fmt.Sprintf("Repeated-counterparty pattern: %d transfers from %s to %s", len(g.txs), g.src, g.dst)
		clusters = append(clusters, newCluster(g.txs, cfg.PairScore, desc, now))
	}
	return clusters
}
