package heuristics

import (
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/rawblock/txflow-engine/pkg/models"
)

// newCluster builds a cluster from txs, deduplicating by signature and
// deriving the wallet set and ID from the resulting membership.
func newCluster(txs []models.Transaction, score float64, description string, createdAt time.Time) models.Cluster {
	c := models.Cluster{
		Score:       score,
		Type:        models.ClusterNormal,
		Description: description,
		CreatedAt:   createdAt,
	}
	setTransactions(&c, txs)
	return c
}

// setTransactions replaces the cluster membership and recomputes the
// derived wallet set and ID so the two can never drift apart.
func setTransactions(c *models.Cluster, txs []models.Transaction) {
	seen := make(map[string]bool, len(txs))
	unique := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if seen[tx.Signature] {
			continue
		}
		seen[tx.Signature] = true
		unique = append(unique, tx)
	}
	c.Transactions = unique
	c.Wallets = walletsOf(unique)
	c.ID = clusterID(unique)
}

// walletsOf returns the distinct non-empty addresses of txs in first-seen order
func walletsOf(txs []models.Transaction) []string {
	seen := make(map[string]bool)
	var wallets []string
	for _, tx := range txs {
		for _, addr := range []string{tx.SourceAddress, tx.DestinationAddress} {
			if addr == "" || seen[addr] {
				continue
			}
			seen[addr] = true
			wallets = append(wallets, addr)
		}
	}
	if wallets == nil {
		wallets = []string{}
	}
	return wallets
}

// clusterID is the double-SHA256 of the sorted signature set. Identical
// membership always yields the same ID regardless of pass or merge order.
func clusterID(txs []models.Transaction) string {
	sigs := make([]string, len(txs))
	for i, tx := range txs {
		sigs[i] = tx.Signature
	}
	sort.Strings(sigs)
	return chainhash.HashH([]byte(strings.Join(sigs, "\n"))).String()
}

// signatureSet returns the set of signatures in a cluster
func signatureSet(c models.Cluster) map[string]struct{} {
	set := make(map[string]struct{}, len(c.Transactions))
	for _, tx := range c.Transactions {
		set[tx.Signature] = struct{}{}
	}
	return set
}

// appendNote appends a classifier finding to a description
func appendNote(description, note string) string {
	if description == "" {
		return note
	}
	if strings.Contains(description, note) {
		return description
	}
	return description + " " + note
}
