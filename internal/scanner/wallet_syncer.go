package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rawblock/txflow-engine/internal/address"
	"github.com/rawblock/txflow-engine/internal/heuristics"
	"github.com/rawblock/txflow-engine/internal/ledger"
	"github.com/rawblock/txflow-engine/internal/metrics"
	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/rs/zerolog"
)

// MaxSyncLimit caps the number of signatures pulled per wallet
const MaxSyncLimit = 1000

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrSyncInProgress = errors.New("sync already in progress")
)

// ChainSource supplies a wallet's most recent transactions, newest first
type ChainSource interface {
	RecentTransactions(ctx context.Context, address string, limit int) ([]models.Transaction, error)
}

// Locker serializes syncs of the same wallet across engine instances
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// WalletSyncer pulls wallet histories from the chain into the ledger and
// measures how much each sync changed the wallet's clustering.
type WalletSyncer struct {
	source  ChainSource
	ledger  ledger.Ledger
	engine  *heuristics.ClusterEngine
	limit   int
	locker  Locker
	lockTTL time.Duration
	metrics *metrics.Recorder
	log     zerolog.Logger

	// Batch progress (atomic for safe concurrent reads)
	isRunning     atomic.Bool
	totalWallets  atomic.Int64
	walletsSynced atomic.Int64
	txsStored     atomic.Int64
	failures      atomic.Int64
}

// SyncResult summarizes one wallet sync
type SyncResult struct {
	Address    string    `json:"address"`
	Fetched    int       `json:"fetched"`
	Stored     int       `json:"stored"` // not previously in the ledger
	Clusters   int       `json:"clusters"`
	Drift      float64   `json:"clusterAgreement"`  // adjusted Rand index, 1 = unchanged
	Divergence float64   `json:"clusterDivergence"` // variation of information in bits, 0 = unchanged
	SyncedAt   time.Time `json:"syncedAt"`
}

// SyncProgress represents the batch sync state for the API
type SyncProgress struct {
	IsRunning     bool  `json:"isRunning"`
	TotalWallets  int64 `json:"totalWallets"`
	WalletsSynced int64 `json:"walletsSynced"`
	TxsStored     int64 `json:"txsStored"`
	Failures      int64 `json:"failures"`
}

type Option func(*WalletSyncer)

// WithLocker guards each wallet sync with a lock held for at most ttl
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(s *WalletSyncer) {
		s.locker = l
		s.lockTTL = ttl
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *WalletSyncer) { s.metrics = rec }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *WalletSyncer) { s.log = log }
}

// WithLimit sets the default number of signatures pulled per sync
func WithLimit(n int) Option {
	return func(s *WalletSyncer) { s.limit = clampLimit(n, s.limit) }
}

func NewWalletSyncer(source ChainSource, l ledger.Ledger, engine *heuristics.ClusterEngine, opts ...Option) *WalletSyncer {
	s := &WalletSyncer{
		source:  source,
		ledger:  l,
		engine:  engine,
		limit:   ledger.DefaultTransactionLimit,
		lockTTL: time.Minute,
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func clampLimit(n, fallback int) int {
	switch {
	case n <= 0:
		return fallback
	case n > MaxSyncLimit:
		return MaxSyncLimit
	}
	return n
}

// GetProgress returns the batch sync progress (thread-safe)
func (s *WalletSyncer) GetProgress() SyncProgress {
	return SyncProgress{
		IsRunning:     s.isRunning.Load(),
		TotalWallets:  s.totalWallets.Load(),
		WalletsSynced: s.walletsSynced.Load(),
		TxsStored:     s.txsStored.Load(),
		Failures:      s.failures.Load(),
	}
}

// Sync pulls up to limit recent transactions of addr into the ledger. A
// non-positive limit uses the configured default.
func (s *WalletSyncer) Sync(ctx context.Context, addr string, limit int) (*SyncResult, error) {
	if err := address.Validate(addr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	limit = clampLimit(limit, s.limit)

	if s.locker != nil {
		key := "sync:" + addr
		acquired, err := s.locker.TryLock(ctx, key, s.lockTTL)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Str("address", addr).Msg("sync lock unavailable, continuing unlocked")
		case !acquired:
			return nil, ErrSyncInProgress
		default:
			defer func() {
				if err := s.locker.Unlock(context.WithoutCancel(ctx), key); err != nil {
					s.log.Warn().Err(err).Str("address", addr).Msg("sync unlock failed")
				}
			}()
		}
	}

	started := time.Now()
	res, err := s.sync(ctx, addr, limit)
	s.metrics.ObserveOperation("wallet_sync", started, err)
	return res, err
}

func (s *WalletSyncer) sync(ctx context.Context, addr string, limit int) (*SyncResult, error) {
	window := s.limit
	before, err := s.ledger.ListTransactions(ctx, addr, window)
	if err != nil {
		return nil, err
	}

	fetched, err := s.source.RecentTransactions(ctx, addr, limit)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(before))
	for _, tx := range before {
		known[tx.Signature] = true
	}
	stored := 0
	for _, tx := range fetched {
		if !known[tx.Signature] {
			stored++
		}
	}

	if err := s.ledger.SaveTransactions(ctx, fetched); err != nil {
		return nil, err
	}
	if _, err := s.ledger.EnsureWallet(ctx, addr, ""); err != nil {
		return nil, err
	}

	after, err := s.ledger.ListTransactions(ctx, addr, window)
	if err != nil {
		return nil, err
	}

	beforeClusters := s.engine.Cluster(addr, before)
	afterClusters := s.engine.Cluster(addr, after)
	drift := metrics.ClusterAgreement(beforeClusters, afterClusters)
	divergence := metrics.ClusterDivergence(beforeClusters, afterClusters)
	s.metrics.RecordSync(stored, drift)

	s.log.Info().Str("address", addr).Int("fetched", len(fetched)).Int("stored", stored).
		Float64("clusterAgreement", drift).Float64("clusterDivergence", divergence).Msg("wallet synced")

	return &SyncResult{
		Address:    addr,
		Fetched:    len(fetched),
		Stored:     stored,
		Clusters:   len(afterClusters),
		Drift:      drift,
		Divergence: divergence,
		SyncedAt:   time.Now().UTC(),
	}, nil
}

// SyncAll syncs every address in the background, one at a time. Returns
// ErrSyncInProgress if a batch is already running.
func (s *WalletSyncer) SyncAll(ctx context.Context, addresses []string) error {
	if !s.isRunning.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	s.totalWallets.Store(int64(len(addresses)))
	s.walletsSynced.Store(0)
	s.txsStored.Store(0)
	s.failures.Store(0)

	go func() {
		defer s.isRunning.Store(false)
		s.log.Info().Int("wallets", len(addresses)).Msg("starting batch sync")

		for _, addr := range addresses {
			if ctx.Err() != nil {
				s.log.Info().Int64("synced", s.walletsSynced.Load()).Msg("batch sync cancelled")
				return
			}
			res, err := s.Sync(ctx, addr, 0)
			if err != nil {
				s.failures.Add(1)
				s.log.Warn().Err(err).Str("address", addr).Msg("wallet sync failed")
				continue
			}
			s.walletsSynced.Add(1)
			s.txsStored.Add(int64(res.Stored))
		}

		s.log.Info().Int64("synced", s.walletsSynced.Load()).Int64("stored", s.txsStored.Load()).
			Int64("failures", s.failures.Load()).Msg("batch sync complete")
	}()
	return nil
}
