package heuristics

import (
	"math"
	"sort"

	"github.com/rawblock/txflow-engine/pkg/models"
)

// Counterparty Association Scoring
//
// Every wallet that shares a cluster with the subject accumulates points
// weighted by how alarming the shared cluster is, plus a bonus for frequent
// direct interaction with the subject:
//
//   normal cluster     +0.2
//   unusual cluster    +0.5
//   suspicious cluster +0.8
//   ≥5 direct txs      +0.3   (else ≥3 direct txs +0.1)
//
// The total is clamped to [0, 1]. Direct transactions are deduplicated by
// signature because surviving clusters may still overlap below the merge
// threshold.

const (
	reasonShared     = "Shared transaction cluster"
	reasonUnusual    = "Unusual transaction pattern"
	reasonSuspicious = "Suspicious transaction pattern"
	reasonFrequent   = "frequent interactions"
	reasonRepeated   = "repeated interactions"
)

type associationAcc struct {
	points  float64
	reasons map[string]bool
	direct  map[string]bool
}

// ScoreAssociations scores every non-subject wallet in clusters that include the subject
func ScoreAssociations(clusters []models.Cluster, subject string, cfg AssociationConfig) []models.AssociationScore {
	accs := make(map[string]*associationAcc)
	get := func(addr string) *associationAcc {
		a, ok := accs[addr]
		if !ok {
			a = &associationAcc{reasons: make(map[string]bool), direct: make(map[string]bool)}
			accs[addr] = a
		}
		return a
	}

	for _, c := range clusters {
		if !c.HasWallet(subject) {
			continue
		}

		weight, reason := cfg.NormalWeight, reasonShared
		switch c.Type {
		case models.ClusterSuspicious:
			weight, reason = cfg.SuspiciousWeight, reasonSuspicious
		case models.ClusterUnusual:
			weight, reason = cfg.UnusualWeight, reasonUnusual
		}

		for _, w := range c.Wallets {
			if w == subject {
				continue
			}
			a := get(w)
			a.points += weight
			a.reasons[reason] = true
		}

		for _, tx := range c.Transactions {
			cp := tx.Counterparty(subject)
			if cp == "" || cp == subject {
				continue
			}
			get(cp).direct[tx.Signature] = true
		}
	}

	scores := make([]models.AssociationScore, 0, len(accs))
	for addr, a := range accs {
		direct := len(a.direct)
		switch {
		case direct >= cfg.FrequentTxs:
			a.points += cfg.FrequentBonus
			a.reasons[reasonFrequent] = true
		case direct >= cfg.RepeatedTxs:
			a.points += cfg.RepeatedBonus
			a.reasons[reasonRepeated] = true
		}

		reasons := make([]string, 0, len(a.reasons))
		for r := range a.reasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)

		scores = append(scores, models.AssociationScore{
			Address:          addr,
			Score:            math.Round(clamp01(a.points)*1000) / 1000,
			Reasons:          reasons,
			TransactionCount: direct,
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Address < scores[j].Address
	})
	return scores
}

// FilterAssociations keeps scores strictly above threshold
func FilterAssociations(scores []models.AssociationScore, threshold float64) []models.AssociationScore {
	out := make([]models.AssociationScore, 0, len(scores))
	for _, s := range scores {
		if s.Score > threshold {
			out = append(out, s)
		}
	}
	return out
}
