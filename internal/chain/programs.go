package chain

import (
	"github.com/gagliardetto/solana-go"
	"github.com/rawblock/txflow-engine/pkg/models"
)

// Well-known program IDs used to categorize transactions
var (
	jupiterV6     = solana.MustPublicKeyFromBase58("JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4")
	raydiumAMMv4  = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
	orcaWhirlpool = solana.MustPublicKeyFromBase58("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")
	tokenMetadata = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
	magicEdenV2   = solana.MustPublicKeyFromBase58("M2mx93ekt1fmXSVkTrUL9xVFHkmME8HTUi5Cyc5aF7K")
	marinade      = solana.MustPublicKeyFromBase58("MarBmsSgKXdrN1egZf5sqe1TMai9K1rChYNDJgjq7aD")
	solend        = solana.MustPublicKeyFromBase58("So1endDq2YkqhipRh3WViPa8hdiSpxWy6z3Z6tMCpAo")
	kaminoLend    = solana.MustPublicKeyFromBase58("KLend2g3cP87fffoy8q1mQqGKjrxjC8boSyAYavgmjD")
	computeBudget = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")
	associatedATA = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	memoProgramV2 = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
)

var programTypes = map[solana.PublicKey]models.TxType{
	jupiterV6:              models.TxTypeSwap,
	raydiumAMMv4:           models.TxTypeSwap,
	orcaWhirlpool:          models.TxTypeSwap,
	tokenMetadata:          models.TxTypeNFT,
	magicEdenV2:            models.TxTypeNFT,
	marinade:               models.TxTypeDeFi,
	solend:                 models.TxTypeDeFi,
	kaminoLend:             models.TxTypeDeFi,
	solana.SystemProgramID: models.TxTypeTransfer,
	solana.TokenProgramID:  models.TxTypeTransfer,
}

// Programs that accompany almost any transaction and say nothing about its kind
var auxiliaryPrograms = map[solana.PublicKey]bool{
	computeBudget: true,
	associatedATA: true,
	memoProgramV2: true,
}

// typePrecedence ranks categories when a transaction invokes several programs
var typePrecedence = map[models.TxType]int{
	models.TxTypeNFT:      4,
	models.TxTypeSwap:     3,
	models.TxTypeDeFi:     2,
	models.TxTypeTransfer: 1,
	models.TxTypeOther:    0,
}

// ClassifyPrograms returns the transaction type implied by the invoked programs
func ClassifyPrograms(programs []solana.PublicKey) models.TxType {
	best := models.TxTypeOther
	sawUnknown := false
	for _, p := range programs {
		if auxiliaryPrograms[p] {
			continue
		}
		t, known := programTypes[p]
		if !known {
			sawUnknown = true
			continue
		}
		if typePrecedence[t] > typePrecedence[best] {
			best = t
		}
	}
	// a plain transfer wrapped in an unrecognized program is not a plain transfer
	if best == models.TxTypeTransfer && sawUnknown {
		return models.TxTypeOther
	}
	return best
}

// primaryProgram returns the first program that is neither auxiliary nor a
// token/system program, or the zero key
func primaryProgram(programs []solana.PublicKey) solana.PublicKey {
	for _, p := range programs {
		if auxiliaryPrograms[p] || p.Equals(solana.SystemProgramID) || p.Equals(solana.TokenProgramID) {
			continue
		}
		return p
	}
	return solana.PublicKey{}
}
