package heuristics

import (
	"time"

	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/shopspring/decimal"
)

// Monday 2026-03-02 09:00 UTC
var baseTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return baseTime }

func at(offset time.Duration) *time.Time {
	t := baseTime.Add(offset)
	return &t
}

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func transfer(sig, src, dst, value string, offset time.Duration) models.Transaction {
	return models.Transaction{
		Signature:          sig,
		BlockTime:          at(offset),
		SourceAddress:      src,
		DestinationAddress: dst,
		Amount:             amount(value),
		Type:               models.TxTypeTransfer,
	}
}

func signaturesOf(c models.Cluster) []string {
	sigs := make([]string, len(c.Transactions))
	for i, tx := range c.Transactions {
		sigs[i] = tx.Signature
	}
	return sigs
}
