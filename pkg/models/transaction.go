package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxType is the coarse category assigned to a transaction by the chain provider
type TxType string

const (
	TxTypeTransfer TxType = "transfer"
	TxTypeSwap     TxType = "swap"
	TxTypeNFT      TxType = "nft"
	TxTypeDeFi     TxType = "defi"
	TxTypeOther    TxType = "other"
)

// ParseTxType maps a stored type string back to a TxType, defaulting to "other"
func ParseTxType(s string) TxType {
	switch TxType(s) {
	case TxTypeTransfer, TxTypeSwap, TxTypeNFT, TxTypeDeFi:
		return TxType(s)
	default:
		return TxTypeOther
	}
}

// Transaction is a single observed value movement between two wallets.
// Amount and BlockTime are optional: not every record carries them.
type Transaction struct {
	Signature          string              `json:"signature"`
	BlockTime          *time.Time          `json:"blockTime,omitempty"`
	SourceAddress      string              `json:"sourceAddress"`
	DestinationAddress string              `json:"destinationAddress"`
	Amount             decimal.NullDecimal `json:"amount"`
	Type               TxType              `json:"type"`
}

// HasTime reports whether the transaction carries a block timestamp
func (t Transaction) HasTime() bool {
	return t.BlockTime != nil && !t.BlockTime.IsZero()
}

// Involves reports whether addr is the source or the destination
func (t Transaction) Involves(addr string) bool {
	return t.SourceAddress == addr || t.DestinationAddress == addr
}

// Counterparty returns the other side of the transaction relative to addr,
// or "" when addr is not a party to it.
func (t Transaction) Counterparty(addr string) string {
	switch addr {
	case t.SourceAddress:
		return t.DestinationAddress
	case t.DestinationAddress:
		return t.SourceAddress
	}
	return ""
}

// Wallet is a tracked address in the ledger
type Wallet struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	UserID    string    `json:"userId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
