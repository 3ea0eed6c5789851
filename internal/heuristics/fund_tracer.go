package heuristics

import (
	"context"
	"math"
	"sort"

	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/shopspring/decimal"
)

// Fund Provenance Tracer
//
// Given a subject wallet, walks BACKWARD through funding relationships to
// build a multi-hop picture of where its funds originated:
//
//   1. Aggregate every inbound, positive-amount transaction by source wallet
//      into a direct FundingSource (confidence 1.0, path [source, subject])
//   2. For each source not yet visited, resolve ITS direct sources
//   3. Re-root each of those at the subject as an indirect source, with
//      confidence decayed by one hop and the full origin→subject path
//   4. Repeat until the depth bound is hit or every wallet is visited
//
// Cycle safety comes from an explicit visited set (seeded with the subject)
// shared across the whole traversal, plus a per-path check so that no wallet
// appears twice within one path. Depth is a hard parameter, never an
// emergent property of the input.
//
// The same ultimate origin can legitimately appear more than once at
// different path lengths when it is reachable through different
// intermediaries; results are not deduplicated across levels.

// DirectSourceFunc resolves the one-hop funding sources of an address.
// Implementations typically read the address's history from the ledger.
type DirectSourceFunc func(ctx context.Context, address string) ([]models.FundingSource, error)

// AggregateDirectSources folds a wallet's history into one direct
// FundingSource per distinct sender. Only transactions paying the subject a
// positive amount count; self-transfers are ignored. Output is ordered by
// each sender's first observed inflow.
func AggregateDirectSources(subject string, txs []models.Transaction) []models.FundingSource {
	ordered := chronological(txs)

	var order []string
	bySource := make(map[string]*models.FundingSource)

	for _, tx := range ordered {
		if tx.DestinationAddress != subject || tx.SourceAddress == "" || tx.SourceAddress == subject {
			continue
		}
		if !tx.Amount.Valid || !tx.Amount.Decimal.IsPositive() {
			continue
		}

		fs, ok := bySource[tx.SourceAddress]
		if !ok {
			fs = &models.FundingSource{
				WalletAddress:    subject,
				SourceAddress:    tx.SourceAddress,
				FirstTxSignature: tx.Signature,
				FirstTxDate:      tx.BlockTime,
				TotalAmount:      decimal.Zero,
				IsDirectSource:   true,
				Confidence:       1.0,
				Path:             []string{tx.SourceAddress, subject},
			}
			bySource[tx.SourceAddress] = fs
			order = append(order, tx.SourceAddress)
		}
		fs.LastTxSignature = tx.Signature
		fs.LastTxDate = tx.BlockTime
		fs.TotalAmount = fs.TotalAmount.Add(tx.Amount.Decimal)
		fs.TransactionCount++
	}

	sources := make([]models.FundingSource, 0, len(order))
	for _, addr := range order {
		sources = append(sources, *bySource[addr])
	}
	return sources
}

// chronological returns a copy of txs with timestamped transactions first in
// ascending time order; untimed transactions keep their relative order at the end.
func chronological(txs []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, len(txs))
	copy(out, txs)
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].HasTime(), out[j].HasTime()
		if ti && tj {
			return out[i].BlockTime.Before(*out[j].BlockTime)
		}
		return ti && !tj
	})
	return out
}

// ProvenanceTracer performs bounded backward tracing
type ProvenanceTracer struct {
	cfg    TraceConfig
	lookup DirectSourceFunc
}

// NewProvenanceTracer creates a tracer resolving hops through lookup
func NewProvenanceTracer(cfg TraceConfig, lookup DirectSourceFunc) *ProvenanceTracer {
	return &ProvenanceTracer{cfg: cfg, lookup: lookup}
}

// Trace returns the direct sources of subject followed by every indirect
// source discovered up to depth hops (depth is clamped to [1, MaxDepth]).
// Any lookup failure aborts the trace; no partial result is returned.
func (t *ProvenanceTracer) Trace(ctx context.Context, subject string, depth int) ([]models.FundingSource, error) {
	depth = t.cfg.ClampDepth(depth)

	direct, err := t.lookup(ctx, subject)
	if err != nil {
		return nil, err
	}
	if depth <= 1 || len(direct) == 0 {
		return direct, nil
	}

	visited := map[string]bool{subject: true}
	indirect, err := t.expand(ctx, subject, direct, 1, depth, visited)
	if err != nil {
		return nil, err
	}

	result := make([]models.FundingSource, 0, len(direct)+len(indirect))
	result = append(result, direct...)
	result = append(result, indirect...)
	return result, nil
}

// expand resolves the next hop behind every parent source. currentDepth is
// the hop count of the parents.
func (t *ProvenanceTracer) expand(ctx context.Context, subject string, parents []models.FundingSource,
	currentDepth, maxDepth int, visited map[string]bool) ([]models.FundingSource, error) {

	if currentDepth >= maxDepth {
		return nil, nil
	}

	var discovered []models.FundingSource
	for _, parent := range parents {
		intermediate := parent.SourceAddress
		if visited[intermediate] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		visited[intermediate] = true

		nested, err := t.lookup(ctx, intermediate)
		if err != nil {
			return nil, err
		}

		level := make([]models.FundingSource, 0, len(nested))
		for _, n := range nested {
			if onPath(parent.Path, n.SourceAddress) {
				continue
			}
			level = append(level, t.reroot(subject, parent, n))
		}
		discovered = append(discovered, level...)

		deeper, err := t.expand(ctx, subject, level, currentDepth+1, maxDepth, visited)
		if err != nil {
			return nil, err
		}
		discovered = append(discovered, deeper...)
	}
	return discovered, nil
}

// reroot turns a nested discovery (origin → intermediate) into an indirect
// source of the subject (origin → intermediate → … → subject).
func (t *ProvenanceTracer) reroot(subject string, parent, nested models.FundingSource) models.FundingSource {
	path := make([]string, 0, len(parent.Path)+1)
	path = append(path, nested.SourceAddress)
	path = append(path, parent.Path...)

	return models.FundingSource{
		WalletAddress:    subject,
		SourceAddress:    nested.SourceAddress,
		FirstTxSignature: nested.FirstTxSignature,
		FirstTxDate:      nested.FirstTxDate,
		LastTxSignature:  nested.LastTxSignature,
		LastTxDate:       nested.LastTxDate,
		TotalAmount:      nested.TotalAmount,
		TransactionCount: nested.TransactionCount,
		IsDirectSource:   false,
		Confidence:       t.decay(parent.Confidence),
		Path:             path,
	}
}

// decay lowers confidence by one hop, never below the floor
func (t *ProvenanceTracer) decay(parent float64) float64 {
	c := math.Max(t.cfg.MinConfidence, parent-t.cfg.HopDecay)
	return math.Round(c*1000) / 1000
}

func onPath(path []string, addr string) bool {
	for _, p := range path {
		if p == addr {
			return true
		}
	}
	return false
}

// ProvenanceSummary condenses a trace result for display
type ProvenanceSummary struct {
	Subject         string   `json:"subject"`
	DirectSources   int      `json:"directSources"`
	IndirectSources int      `json:"indirectSources"`
	MaxHopReached   int      `json:"maxHopReached"` // path length minus one
	Origins         []string `json:"origins"`       // distinct ultimate origins
}

// SummarizeProvenance returns counts, max hop and distinct origins of a trace
func SummarizeProvenance(subject string, sources []models.FundingSource) ProvenanceSummary {
	s := ProvenanceSummary{Subject: subject, Origins: []string{}}
	seen := make(map[string]bool)
	for _, fs := range sources {
		if fs.IsDirectSource {
			s.DirectSources++
		} else {
			s.IndirectSources++
		}
		if hops := len(fs.Path) - 1; hops > s.MaxHopReached {
			s.MaxHopReached = hops
		}
		if !seen[fs.SourceAddress] {
			seen[fs.SourceAddress] = true
			s.Origins = append(s.Origins, fs.SourceAddress)
		}
	}
	return s
}
