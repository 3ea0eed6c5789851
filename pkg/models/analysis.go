package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClusterType is the anomaly classification of a cluster
type ClusterType string

const (
	ClusterNormal     ClusterType = "normal"
	ClusterUnusual    ClusterType = "unusual"
	ClusterSuspicious ClusterType = "suspicious"
)

// Severity orders cluster types so classification can only move upward
func (c ClusterType) Severity() int {
	switch c {
	case ClusterSuspicious:
		return 2
	case ClusterUnusual:
		return 1
	default:
		return 0
	}
}

// Cluster is a group of transactions sharing a behavioral characteristic.
// Wallets is always the set of addresses appearing in Transactions.
type Cluster struct {
	ID           string        `json:"id"`
	Transactions []Transaction `json:"transactions"`
	Wallets      []string      `json:"wallets"`
	Score        float64       `json:"score"`       // 0.0-1.0 confidence the grouping is meaningful
	Type         ClusterType   `json:"type"`        // normal/unusual/suspicious
	Description  string        `json:"description"` // human-readable reasons
	CreatedAt    time.Time     `json:"createdAt"`
}

// HasWallet reports whether addr appears in the cluster
func (c Cluster) HasWallet(addr string) bool {
	for _, w := range c.Wallets {
		if w == addr {
			return true
		}
	}
	return false
}

// FundingSource is a directed provenance edge: funds in WalletAddress came from SourceAddress,
// either directly or through the intermediaries listed in Path.
type FundingSource struct {
	ID               string          `json:"id,omitempty"`
	WalletAddress    string          `json:"walletAddress"` // subject
	SourceAddress    string          `json:"sourceAddress"`
	FirstTxSignature string          `json:"firstTxSignature"`
	FirstTxDate      *time.Time      `json:"firstTxDate,omitempty"`
	LastTxSignature  string          `json:"lastTxSignature"`
	LastTxDate       *time.Time      `json:"lastTxDate,omitempty"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	TransactionCount int             `json:"transactionCount"`
	IsDirectSource   bool            `json:"isDirectSource"`
	Confidence       float64         `json:"confidence"`
	Path             []string        `json:"path"` // ultimate origin first, subject last
}

// ActivityPattern is a behavioral tag detected for a wallet
type ActivityPattern struct {
	ID          string    `json:"id,omitempty"`
	WalletID    string    `json:"walletId"`
	Pattern     string    `json:"pattern"`
	Frequency   *string   `json:"frequency,omitempty"`
	Confidence  float64   `json:"confidence"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AssociationScore expresses how strongly a counterparty is linked to the subject wallet
type AssociationScore struct {
	Address          string   `json:"address"`
	Score            float64  `json:"score"`
	Reasons          []string `json:"reasons"`
	TransactionCount int      `json:"transactionCount"`
}
