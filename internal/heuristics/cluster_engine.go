package heuristics

import (
	"sort"
	"time"

	"github.com/rawblock/txflow-engine/pkg/models"
)

// Transaction Clustering Engine
//
// Runs the full clustering pipeline over one wallet's history:
//
//   group (temporal, amount, pattern) → merge (Jaccard ≥ threshold) → classify
//
// The engine is stateless between runs; every call sees only the
// transactions it is handed. Wallet-level entity grouping across clusters is
// a separate weighted Union-Find (EntityGraph) that callers can build from
// any set of clusters.

// ClusterEngine runs the grouping, merging and classification stages
type ClusterEngine struct {
	cfg Config
	now func() time.Time
}

// NewClusterEngine creates an engine with the given parameters
func NewClusterEngine(cfg Config) *ClusterEngine {
	return &ClusterEngine{cfg: cfg, now: time.Now}
}

// WithClock replaces the timestamp source used for CreatedAt/UpdatedAt
func (e *ClusterEngine) WithClock(now func() time.Time) *ClusterEngine {
	e.now = now
	return e
}

// Config returns the engine parameters
func (e *ClusterEngine) Config() Config {
	return e.cfg
}

// Cluster groups, merges and classifies txs relative to subject. Always
// returns a non-nil slice.
func (e *ClusterEngine) Cluster(subject string, txs []models.Transaction) []models.Cluster {
	now := e.now().UTC()

	candidates := GroupTransactions(txs, e.cfg.Grouping, now)
	if len(candidates) == 0 {
		return []models.Cluster{}
	}
	merged := MergeClusters(candidates, e.cfg.Merge)
	return ClassifyClusters(merged, subject, e.cfg.Anomaly)
}

// Associations scores counterparties across clusters containing subject
func (e *ClusterEngine) Associations(subject string, clusters []models.Cluster) []models.AssociationScore {
	return ScoreAssociations(clusters, subject, e.cfg.Association)
}

// ActivityPatterns derives the behavioral tags of walletID
func (e *ClusterEngine) ActivityPatterns(walletID, subject string, txs []models.Transaction, clusters []models.Cluster) []models.ActivityPattern {
	return DetectActivityPatterns(walletID, subject, txs, clusters, e.cfg.Grouping, e.now().UTC())
}

// EntityGraph implements weighted Union-Find over wallet addresses. Two
// wallets end up in the same entity when some cluster contains both.
type EntityGraph struct {
	parent map[string]string
	rank   map[string]int
	size   map[string]int
}

// NewEntityGraph creates an empty graph
func NewEntityGraph() *EntityGraph {
	return &EntityGraph{
		parent: make(map[string]string),
		rank:   make(map[string]int),
		size:   make(map[string]int),
	}
}

// BuildEntityGraph links every wallet of each cluster to the cluster's first wallet
func BuildEntityGraph(clusters []models.Cluster) *EntityGraph {
	g := NewEntityGraph()
	for _, c := range clusters {
		if len(c.Wallets) == 0 {
			continue
		}
		first := c.Wallets[0]
		g.Find(first)
		for _, w := range c.Wallets[1:] {
			g.Union(first, w)
		}
	}
	return g
}

// Find returns the root representative of addr's entity, with path compression
func (g *EntityGraph) Find(addr string) string {
	if _, exists := g.parent[addr]; !exists {
		g.parent[addr] = addr
		g.rank[addr] = 0
		g.size[addr] = 1
	}
	if g.parent[addr] != addr {
		g.parent[addr] = g.Find(g.parent[addr])
	}
	return g.parent[addr]
}

// Union merges the entities of a and b. Returns true if a merge occurred.
func (g *EntityGraph) Union(a, b string) bool {
	rootA := g.Find(a)
	rootB := g.Find(b)
	if rootA == rootB {
		return false
	}

	// Union by rank
	switch {
	case g.rank[rootA] < g.rank[rootB]:
		g.parent[rootA] = rootB
		g.size[rootB] += g.size[rootA]
	case g.rank[rootA] > g.rank[rootB]:
		g.parent[rootB] = rootA
		g.size[rootA] += g.size[rootB]
	default:
		g.parent[rootB] = rootA
		g.size[rootA] += g.size[rootB]
		g.rank[rootA]++
	}
	return true
}

// Members returns the sorted addresses sharing addr's entity
func (g *EntityGraph) Members(addr string) []string {
	root := g.Find(addr)
	var members []string
	for a := range g.parent {
		if g.Find(a) == root {
			members = append(members, a)
		}
	}
	sort.Strings(members)
	return members
}

// Size returns the number of addresses in addr's entity
func (g *EntityGraph) Size(addr string) int {
	return g.size[g.Find(addr)]
}

// TotalEntities returns the number of distinct entities
func (g *EntityGraph) TotalEntities() int {
	roots := make(map[string]bool)
	for a := range g.parent {
		roots[g.Find(a)] = true
	}
	return len(roots)
}
