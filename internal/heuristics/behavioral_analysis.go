package heuristics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rawblock/txflow-engine/pkg/models"
)

// Pattern-of-Life Behavioral Analysis
//
// Transaction timing reveals behavioral fingerprints:
//
//   1. Peak activity hour (UTC) and a timezone hint derived from it
//   2. Weekday vs weekend bias
//   3. Regularity: 1/(1+CV) of inter-transaction intervals; bots approach 1.0
//   4. Frequency: transactions per day over the observed span
//
// The profile feeds activity pattern detection; it is a hint, never an
// identity claim.

// BehavioralProfile holds temporal behavioral analysis results
type BehavioralProfile struct {
	InferredTimezone string        `json:"inferredTimezone"` // Estimated UTC offset (e.g., "UTC-5")
	PeakHourUTC      int           `json:"peakHourUTC"`      // Most active hour (0-23 UTC)
	WeekdayRatio     float64       `json:"weekdayRatio"`     // Fraction of txs on weekdays (Mon-Fri)
	Regularity       float64       `json:"regularity"`       // 0.0 (random) to 1.0 (perfectly regular)
	MeanInterval     time.Duration `json:"meanInterval"`     // Average gap between transactions
	TxFrequency      float64       `json:"txFrequency"`      // Average transactions per day
	EntityType       string        `json:"entityType"`       // "bot"/"service"/"business"/"human"/"unknown"
	SampleSize       int           `json:"sampleSize"`       // Timestamped transactions considered
}

// AnalyzeBehavioralPattern computes the temporal profile of a transaction
// history. Transactions without a timestamp are ignored.
func AnalyzeBehavioralPattern(txs []models.Transaction) BehavioralProfile {
	profile := BehavioralProfile{
		InferredTimezone: "unknown",
		EntityType:       "unknown",
	}

	var times []time.Time
	for _, tx := range txs {
		if tx.HasTime() {
			times = append(times, tx.BlockTime.UTC())
		}
	}
	profile.SampleSize = len(times)
	if len(times) < 3 {
		return profile
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	hourCounts := make([]int, 24)
	weekdayCount := 0
	for _, t := range times {
		hourCounts[t.Hour()]++
		if t.Weekday() >= time.Monday && t.Weekday() <= time.Friday {
			weekdayCount++
		}
	}

	maxCount := 0
	for h, count := range hourCounts {
		if count > maxCount {
			maxCount = count
			profile.PeakHourUTC = h
		}
	}
	profile.InferredTimezone = inferTimezoneFromPeak(profile.PeakHourUTC)
	profile.WeekdayRatio = math.Round(float64(weekdayCount)*100/float64(len(times))) / 100

	intervals := make([]float64, len(times)-1)
	for i := 1; i < len(times); i++ {
		intervals[i-1] = times[i].Sub(times[i-1]).Hours()
	}
	mean, _ := meanStdDev(intervals)
	profile.MeanInterval = time.Duration(mean * float64(time.Hour))
	if cv, ok := coefficientOfVariation(intervals); ok {
		profile.Regularity = math.Round(100/(1+cv)) / 100
	}

	span := times[len(times)-1].Sub(times[0])
	if span > 0 {
		profile.TxFrequency = math.Round(float64(len(times))*100/(span.Hours()/24)) / 100
	}

	profile.EntityType = classifyEntityFromBehavior(profile)
	return profile
}

// inferTimezoneFromPeak assumes peak activity sits around 13:00 local time
func inferTimezoneFromPeak(peakHourUTC int) string {
	offset := peakHourUTC - 13
	if offset > 12 {
		offset -= 24
	}
	if offset < -12 {
		offset += 24
	}
	if offset >= 0 {
		return fmt.Sprintf("UTC+%d", offset)
	}
	return fmt.Sprintf("UTC%d", offset)
}

func classifyEntityFromBehavior(p BehavioralProfile) string {
	switch {
	case p.Regularity >= 0.8 && p.TxFrequency >= 10:
		return "bot"
	case p.Regularity >= 0.6 && p.TxFrequency >= 5:
		return "service"
	case p.WeekdayRatio >= 0.8 && p.TxFrequency >= 1:
		return "business"
	case p.TxFrequency >= 0.1:
		return "human"
	default:
		return "unknown"
	}
}

// cadence names the natural period of a mean interval
func cadence(d time.Duration) string {
	switch {
	case d <= 2*time.Hour:
		return "hourly"
	case d <= 36*time.Hour:
		return "daily"
	case d <= 10*24*time.Hour:
		return "weekly"
	default:
		return "monthly"
	}
}
