package chain

import (
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/shopspring/decimal"
)

// lamportExp scales lamports to SOL
const lamportExp = -9

// Observed is a confirmed transaction as fetched from the node, reduced to
// the fields the engine derives direction, amount and type from.
type Observed struct {
	Signature string
	BlockTime *time.Time
	// Accounts lists the static message keys followed by the loaded writable
	// and read-only lookup-table addresses, matching the balance arrays.
	Accounts     []solana.PublicKey
	PreBalances  []uint64
	PostBalances []uint64
	Fee          uint64
	Programs     []solana.PublicKey
	Failed       bool
}

// Convert builds the subject-relative transaction record. The subject's net
// lamport change gives direction and amount, the account with the largest
// opposite change is the counterparty. Returns false for failed transactions
// and transactions the subject is not part of.
func Convert(subject solana.PublicKey, obs Observed) (models.Transaction, bool) {
	if obs.Failed {
		return models.Transaction{}, false
	}
	self := indexOf(obs.Accounts, subject)
	if self < 0 {
		return models.Transaction{}, false
	}

	tx := models.Transaction{
		Signature:     obs.Signature,
		BlockTime:     obs.BlockTime,
		SourceAddress: subject.String(),
		Type:          ClassifyPrograms(obs.Programs),
	}

	deltas, ok := balanceDeltas(obs)
	if !ok || deltas[self] == 0 {
		// no native value moved for the subject; record the interaction with the program
		if p := primaryProgram(obs.Programs); !p.IsZero() {
			tx.DestinationAddress = p.String()
		}
		return tx, true
	}

	d := deltas[self]
	if d < 0 {
		tx.Amount = decimal.NewNullDecimal(decimal.New(-d, lamportExp))
		if cp := extremeDelta(deltas, self, +1); cp >= 0 {
			tx.DestinationAddress = obs.Accounts[cp].String()
		}
		return tx, true
	}

	tx.Amount = decimal.NewNullDecimal(decimal.New(d, lamportExp))
	tx.DestinationAddress = subject.String()
	tx.SourceAddress = ""
	if cp := extremeDelta(deltas, self, -1); cp >= 0 {
		tx.SourceAddress = obs.Accounts[cp].String()
	}
	return tx, true
}

// balanceDeltas returns post-pre per account with the fee added back to the
// fee payer, or false when the balance arrays don't line up with the accounts
func balanceDeltas(obs Observed) ([]int64, bool) {
	n := len(obs.Accounts)
	if n == 0 || len(obs.PreBalances) != n || len(obs.PostBalances) != n {
		return nil, false
	}
	deltas := make([]int64, n)
	for i := range deltas {
		deltas[i] = int64(obs.PostBalances[i]) - int64(obs.PreBalances[i])
	}
	deltas[0] += int64(obs.Fee)
	return deltas, true
}

// extremeDelta returns the index other than self with the largest change in
// direction sign (+1 gains, -1 losses), or -1 if no account moved that way.
// Ties go to the lower index.
func extremeDelta(deltas []int64, self int, sign int64) int {
	best, bestVal := -1, int64(0)
	for i, d := range deltas {
		if i == self {
			continue
		}
		if v := d * sign; v > bestVal {
			best, bestVal = i, v
		}
	}
	return best
}

func indexOf(keys []solana.PublicKey, k solana.PublicKey) int {
	for i, key := range keys {
		if key.Equals(k) {
			return i
		}
	}
	return -1
}
