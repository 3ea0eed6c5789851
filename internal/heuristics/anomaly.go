package heuristics

import (
	"sort"

	"github.com/rawblock/txflow-engine/pkg/models"
)

// Cluster Anomaly Classifier
//
// Each merged cluster is inspected by four independent heuristics:
//
//   Amount variance:      CV(amounts) > 1.5        → unusual
//   Timing regularity:    CV(inter-arrival) < 0.1  → unusual (bot-like metronome)
//   Directional skew:     ≥5 txs, one direction absent → unusual
//   Counterparty shape:   >5 txs over ≤2 counterparties → suspicious (wash trading)
//                         one counterparty >70% of txs  → unusual
//
// Severity is monotone within one evaluation: a heuristic can raise the
// type but never lower it, so suspicious always survives a later unusual.

const (
	noteHighVariance  = "High variance in transaction amounts."
	noteRegularTiming = "Suspiciously regular transaction timing."
	noteNoOutgoing    = "No outgoing transactions from subject wallet."
	noteNoIncoming    = "No incoming transactions to subject wallet."
	noteWashTrading   = "Potential wash trading or circular fund movement."
	noteConcentration = "High concentration of transactions with single counterparty."
)

// ClassifyClusters returns a classified copy of every cluster
func ClassifyClusters(clusters []models.Cluster, subject string, cfg AnomalyConfig) []models.Cluster {
	out := make([]models.Cluster, len(clusters))
	for i, c := range clusters {
		out[i] = ClassifyCluster(c, subject, cfg)
	}
	return out
}

// ClassifyCluster evaluates all heuristics against a single cluster
func ClassifyCluster(c models.Cluster, subject string, cfg AnomalyConfig) models.Cluster {
	if c.Type == "" {
		c.Type = models.ClusterNormal
	}

	flag := func(t models.ClusterType, note string) {
		if t.Severity() > c.Type.Severity() {
			c.Type = t
		}
		c.Description = appendNote(c.Description, note)
	}

	if amountVarianceHigh(c.Transactions, cfg) {
		flag(models.ClusterUnusual, noteHighVariance)
	}
	if timingTooRegular(c.Transactions, cfg) {
		flag(models.ClusterUnusual, noteRegularTiming)
	}
	if len(c.Transactions) >= cfg.DirectionalMinTxs {
		outgoing, incoming := directionCounts(c.Transactions, subject)
		switch {
		case outgoing == 0:
			flag(models.ClusterUnusual, noteNoOutgoing)
		case incoming == 0:
			flag(models.ClusterUnusual, noteNoIncoming)
		}
	}
	if len(c.Transactions) > cfg.WashMinTxs && countCounterparties(c, subject) <= cfg.WashMaxCounterparties {
		flag(models.ClusterSuspicious, noteWashTrading)
	}
	if len(c.Transactions) > 0 {
		if share := topCounterpartyShare(c.Transactions, subject); share > cfg.ConcentrationRatio {
			flag(models.ClusterUnusual, noteConcentration)
		}
	}

	return c
}

// amountVarianceHigh checks the amount CV; txs without an amount are skipped
func amountVarianceHigh(txs []models.Transaction, cfg AnomalyConfig) bool {
	amounts := make([]float64, 0, len(txs))
	for _, tx := range txs {
		if tx.Amount.Valid {
			amounts = append(amounts, tx.Amount.Decimal.InexactFloat64())
		}
	}
	if len(amounts) < cfg.MinSamples {
		return false
	}
	cv, ok := coefficientOfVariation(amounts)
	return ok && cv > cfg.AmountCVThreshold
}

// timingTooRegular checks the CV of consecutive gaps between timestamped txs
func timingTooRegular(txs []models.Transaction, cfg AnomalyConfig) bool {
	var times []int64
	for _, tx := range txs {
		if tx.HasTime() {
			times = append(times, tx.BlockTime.UnixMilli())
		}
	}
	if len(times) < cfg.MinSamples {
		return false
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	gaps := make([]float64, len(times)-1)
	for i := 1; i < len(times); i++ {
		gaps[i-1] = float64(times[i] - times[i-1])
	}
	cv, ok := coefficientOfVariation(gaps)
	return ok && cv < cfg.TimingCVThreshold
}

// directionCounts counts transactions sent by and received by the subject
func directionCounts(txs []models.Transaction, subject string) (outgoing, incoming int) {
	for _, tx := range txs {
		if tx.SourceAddress == subject {
			outgoing++
		}
		if tx.DestinationAddress == subject {
			incoming++
		}
	}
	return outgoing, incoming
}

// countCounterparties counts the cluster's wallets other than the subject
func countCounterparties(c models.Cluster, subject string) int {
	n := 0
	for _, w := range c.Wallets {
		if w != subject {
			n++
		}
	}
	return n
}

// topCounterpartyShare returns the fraction of the cluster's transactions
// involving its most frequent counterparty.
func topCounterpartyShare(txs []models.Transaction, subject string) float64 {
	counts := make(map[string]int)
	for _, tx := range txs {
		if cp := tx.Counterparty(subject); cp != "" && cp != subject {
			counts[cp]++
		}
	}
	top := 0
	for _, n := range counts {
		if n > top {
			top = n
		}
	}
	return float64(top) / float64(len(txs))
}
