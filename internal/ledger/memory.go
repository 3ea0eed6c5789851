package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rawblock/txflow-engine/pkg/models"
)

// MemoryLedger is a concurrency-safe in-process Ledger. It backs tests and
// runs without a database.
type MemoryLedger struct {
	mu       sync.RWMutex
	txs      map[string]models.Transaction // by signature
	order    []string                      // insertion order of signatures
	wallets  map[string]models.Wallet      // by address
	sources  map[sourceKey]models.FundingSource
	patterns map[patternKey]models.ActivityPattern
	clusters map[string]models.Cluster // by cluster ID
	now      func() time.Time
}

type sourceKey struct{ wallet, source, path string }

type patternKey struct{ walletID, pattern string }

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		txs:      make(map[string]models.Transaction),
		wallets:  make(map[string]models.Wallet),
		sources:  make(map[sourceKey]models.FundingSource),
		patterns: make(map[patternKey]models.ActivityPattern),
		clusters: make(map[string]models.Cluster),
		now:      time.Now,
	}
}

func (m *MemoryLedger) ListTransactions(_ context.Context, address string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = DefaultTransactionLimit
	}

	m.mu.RLock()
	var out []models.Transaction
	for _, sig := range m.order {
		if tx := m.txs[sig]; tx.Involves(address) {
			out = append(out, tx)
		}
	}
	m.mu.RUnlock()

	SortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryLedger) SaveTransactions(_ context.Context, txs []models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tx := range txs {
		if _, exists := m.txs[tx.Signature]; exists {
			continue
		}
		m.txs[tx.Signature] = tx
		m.order = append(m.order, tx.Signature)
	}
	return nil
}

func (m *MemoryLedger) GetWallet(_ context.Context, address string) (*models.Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.wallets[address]
	if !ok {
		return nil, ErrNotFound
	}
	return &w, nil
}

func (m *MemoryLedger) EnsureWallet(_ context.Context, address, userID string) (*models.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.wallets[address]; ok {
		return &w, nil
	}
	w := models.Wallet{
		ID:        uuid.NewString(),
		Address:   address,
		UserID:    userID,
		CreatedAt: m.now().UTC(),
	}
	m.wallets[address] = w
	return &w, nil
}

func (m *MemoryLedger) UpsertFundingSources(_ context.Context, sources []models.FundingSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, fs := range sources {
		key := sourceKey{fs.WalletAddress, fs.SourceAddress, FundingPathKey(fs)}
		if stored, ok := m.sources[key]; ok {
			m.sources[key] = MergeFundingSource(stored, fs)
			continue
		}
		fs.ID = uuid.NewString()
		fs.Path = append([]string(nil), fs.Path...)
		m.sources[key] = fs
	}
	return nil
}

func (m *MemoryLedger) ListFundingSources(_ context.Context, walletAddress string) ([]models.FundingSource, error) {
	m.mu.RLock()
	out := make([]models.FundingSource, 0)
	for key, fs := range m.sources {
		if key.wallet == walletAddress {
			fs.Path = append([]string(nil), fs.Path...)
			out = append(out, fs)
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		if out[i].SourceAddress != out[j].SourceAddress {
			return out[i].SourceAddress < out[j].SourceAddress
		}
		if len(out[i].Path) != len(out[j].Path) {
			return len(out[i].Path) < len(out[j].Path)
		}
		return FundingPathKey(out[i]) < FundingPathKey(out[j])
	})
	return out, nil
}

func (m *MemoryLedger) UpsertActivityPatterns(_ context.Context, patterns []models.ActivityPattern) ([]models.ActivityPattern, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ActivityPattern, 0, len(patterns))
	for _, p := range patterns {
		key := patternKey{p.WalletID, p.Pattern}
		if stored, ok := m.patterns[key]; ok {
			p = MergeActivityPattern(stored, p)
		} else {
			p.ID = uuid.NewString()
		}
		m.patterns[key] = p
		out = append(out, p)
	}
	return out, nil
}

func (m *MemoryLedger) SaveClusters(_ context.Context, _ string, clusters []models.Cluster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range clusters {
		m.clusters[c.ID] = c
	}
	return nil
}

// Cluster returns a stored cluster by ID
func (m *MemoryLedger) Cluster(id string) (models.Cluster, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clusters[id]
	return c, ok
}

// SortNewestFirst orders txs by block time descending; untimed transactions
// go last and keep their relative order.
func SortNewestFirst(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		ti, tj := txs[i].HasTime(), txs[j].HasTime()
		if ti && tj {
			return txs[i].BlockTime.After(*txs[j].BlockTime)
		}
		return ti && !tj
	})
}
