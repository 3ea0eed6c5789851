package heuristics

import (
	"fmt"
	"math"
	"time"

	"github.com/rawblock/txflow-engine/pkg/models"
)

// Activity pattern tags. One row per tag per wallet is kept by the ledger;
// re-detection raises confidence instead of duplicating.
const (
	PatternHighFrequency         = "high_frequency"
	PatternRegularSchedule       = "regular_schedule"
	PatternBusinessHours         = "business_hours"
	PatternBurstActivity         = "burst_activity"
	PatternConsistentAmounts     = "consistent_amounts"
	PatternRecurringCounterparty = "recurring_counterparty"
	PatternCircularFlow          = "circular_flow"
	PatternSuspiciousActivity    = "suspicious_activity"
)

const (
	highFrequencyPerDay = 10.0
	regularScheduleMin  = 0.8
	businessWeekdayMin  = 0.8
	businessMinSamples  = 5
)

// DetectActivityPatterns derives behavioral tags for a wallet from its
// history and its classified clusters.
func DetectActivityPatterns(walletID, subject string, txs []models.Transaction,
	clusters []models.Cluster, cfg GroupingConfig, now time.Time) []models.ActivityPattern {

	var patterns []models.ActivityPattern
	add := func(tag string, frequency *string, confidence float64, description string) {
		patterns = append(patterns, models.ActivityPattern{
			WalletID:    walletID,
			Pattern:     tag,
			Frequency:   frequency,
			Confidence:  math.Round(clamp01(confidence)*100) / 100,
			Description: description,
			UpdatedAt:   now,
		})
	}

	profile := AnalyzeBehavioralPattern(txs)
	if profile.TxFrequency >= highFrequencyPerDay {
		freq := "daily"
		add(PatternHighFrequency, &freq, 0.5+profile.TxFrequency/100,
			fmt.Sprintf("%.1f transactions per day (%s profile)", profile.TxFrequency, profile.EntityType))
	}
	if profile.Regularity >= regularScheduleMin {
		freq := cadence(profile.MeanInterval)
		add(PatternRegularSchedule, &freq, profile.Regularity,
			fmt.Sprintf("Regular %s activity, peak hour %02d:00 UTC (%s)", freq, profile.PeakHourUTC, profile.InferredTimezone))
	}
	if profile.SampleSize >= businessMinSamples && profile.WeekdayRatio >= businessWeekdayMin {
		add(PatternBusinessHours, nil, profile.WeekdayRatio,
			fmt.Sprintf("%.0f%% of activity on weekdays", profile.WeekdayRatio*100))
	}

	if len(txs) < cfg.MinTransactions {
		return patterns
	}

	if bursts := TemporalClusters(txs, cfg, now); len(bursts) > 0 {
		largest := 0
		for _, b := range bursts {
			if len(b.Transactions) > largest {
				largest = len(b.Transactions)
			}
		}
		add(PatternBurstActivity, nil, cfg.TemporalScore,
			fmt.Sprintf("%d activity bursts within %s windows, largest %d transactions", len(bursts), cfg.TimeWindow, largest))
	}
	if buckets := AmountClusters(txs, cfg, now); len(buckets) > 0 {
		add(PatternConsistentAmounts, nil, cfg.AmountScore,
			fmt.Sprintf("%d groups of near-identical amounts", len(buckets)))
	}

	recurring, circular := 0, 0
	for _, g := range pairGroups(txs, cfg) {
		if g.circular {
			circular++
		} else {
			recurring++
		}
	}
	if recurring > 0 {
		add(PatternRecurringCounterparty, nil, cfg.PairScore,
			fmt.Sprintf("%d repeated counterparty pairs", recurring))
	}
	if circular > 0 {
		add(PatternCircularFlow, nil, cfg.CircularScore,
			fmt.Sprintf("%d circular fund flows", circular))
	}

	suspicious, best := 0, 0.0
	for _, c := range clusters {
		if c.Type == models.ClusterSuspicious {
			suspicious++
			best = math.Max(best, c.Score)
		}
	}
	if suspicious > 0 {
		add(PatternSuspiciousActivity, nil, best,
			fmt.Sprintf("%d suspicious transaction clusters", suspicious))
	}

	return patterns
}
