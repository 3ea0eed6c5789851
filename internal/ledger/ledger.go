package ledger

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/rawblock/txflow-engine/pkg/models"
)

// ErrNotFound is returned when a wallet is absent from the ledger
var ErrNotFound = errors.New("ledger: not found")

// DefaultTransactionLimit bounds a history read when the caller passes no limit
const DefaultTransactionLimit = 100

// Ledger is the persistence boundary of the engine: transaction history
// reads plus idempotent writes of derived facts.
type Ledger interface {
	// ListTransactions returns up to limit transactions involving address,
	// most recent first. Untimed transactions sort last.
	ListTransactions(ctx context.Context, address string, limit int) ([]models.Transaction, error)
	// SaveTransactions inserts transactions, ignoring signatures already stored.
	SaveTransactions(ctx context.Context, txs []models.Transaction) error

	GetWallet(ctx context.Context, address string) (*models.Wallet, error)
	// EnsureWallet returns the wallet for address, creating it on first use.
	EnsureWallet(ctx context.Context, address, userID string) (*models.Wallet, error)

	// UpsertFundingSources stores sources keyed by (wallet, source,
	// FundingPathKey) and merges repeats; see MergeFundingSource.
	UpsertFundingSources(ctx context.Context, sources []models.FundingSource) error
	ListFundingSources(ctx context.Context, walletAddress string) ([]models.FundingSource, error)

	// UpsertActivityPatterns stores one row per (wallet, pattern) and returns
	// the stored rows after merging.
	UpsertActivityPatterns(ctx context.Context, patterns []models.ActivityPattern) ([]models.ActivityPattern, error)

	// SaveClusters upserts clusters by ID.
	SaveClusters(ctx context.Context, walletAddress string, clusters []models.Cluster) error
}

const (
	fundingConfidenceNudge = 0.05
	patternConfidenceNudge = 0.1
)

// FundingPathKey is the third component of a funding source's identity next
// to (wallet, source). Direct edges share the empty key; indirect sources are
// keyed by their full path so the same origin reached through different
// intermediaries stays separate and never folds into the direct edge.
func FundingPathKey(fs models.FundingSource) string {
	if fs.IsDirectSource {
		return ""
	}
	return strings.Join(fs.Path, ">")
}

// MergeFundingSource folds a new observation of the same funding source into
// the stored row. For direct edges amount and count accumulate, confidence
// only rises and the observed date range widens. Indirect sources are
// snapshots copied from a nested discovery, so the latest observation
// replaces amount, count and dates and the confidence stays at its
// hop-decayed value.
func MergeFundingSource(stored, observed models.FundingSource) models.FundingSource {
	if !observed.IsDirectSource {
		out := observed
		out.ID = stored.ID
		out.Path = append([]string(nil), observed.Path...)
		return out
	}

	out := stored
	out.Path = append([]string(nil), stored.Path...)
	out.TotalAmount = stored.TotalAmount.Add(observed.TotalAmount)
	out.TransactionCount = stored.TransactionCount + observed.TransactionCount
	out.Confidence = math.Min(1, math.Max(stored.Confidence, observed.Confidence)+fundingConfidenceNudge)
	out.Confidence = math.Round(out.Confidence*1000) / 1000

	if observed.FirstTxDate != nil && (stored.FirstTxDate == nil || observed.FirstTxDate.Before(*stored.FirstTxDate)) {
		out.FirstTxDate = observed.FirstTxDate
		out.FirstTxSignature = observed.FirstTxSignature
	}
	if observed.LastTxDate != nil && (stored.LastTxDate == nil || observed.LastTxDate.After(*stored.LastTxDate)) {
		out.LastTxDate = observed.LastTxDate
		out.LastTxSignature = observed.LastTxSignature
	}
	return out
}

// MergeActivityPattern re-detects a stored pattern: confidence rises by 0.1
// up to 1.0 and the latest description and frequency replace the old ones.
func MergeActivityPattern(stored, observed models.ActivityPattern) models.ActivityPattern {
	out := stored
	out.Confidence = math.Round(math.Min(1, stored.Confidence+patternConfidenceNudge)*100) / 100
	out.Description = observed.Description
	if observed.Frequency != nil {
		out.Frequency = observed.Frequency
	}
	out.UpdatedAt = observed.UpdatedAt
	return out
}
