package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rawblock/txflow-engine/internal/address"
	"github.com/rawblock/txflow-engine/internal/heuristics"
	"github.com/rawblock/txflow-engine/internal/ledger"
	"github.com/rawblock/txflow-engine/internal/metrics"
	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidInput is returned for malformed addresses and out-of-range options
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when the wallet is not tracked by the ledger
	ErrNotFound = errors.New("not found")
)

// Alerter is notified of every suspicious cluster found for a wallet
type Alerter interface {
	AlertSuspiciousCluster(address string, cluster models.Cluster)
}

// ClusterOptions overrides the engine defaults for a single clustering run.
// Zero fields keep the configured value.
type ClusterOptions struct {
	TimeWindowHours     int
	MinTransactions     int
	SimilarityThreshold float64
}

// Service runs the analysis engine against wallet histories held in a ledger
type Service struct {
	ledger  ledger.Ledger
	cfg     heuristics.Config
	limit   int
	now     func() time.Time
	metrics *metrics.Recorder
	alerts  Alerter
	log     zerolog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithMetrics records operation latency and results in rec
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = rec }
}

// WithAlerter sends suspicious clusters to a
func WithAlerter(a Alerter) Option {
	return func(s *Service) { s.alerts = a }
}

// WithLogger sets the service logger
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithTransactionLimit caps how many recent transactions are analyzed per wallet
func WithTransactionLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithClock replaces the time source used for cluster and pattern timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an analysis service over l
func NewService(l ledger.Ledger, cfg heuristics.Config, opts ...Option) *Service {
	s := &Service{
		ledger: l,
		cfg:    cfg,
		limit:  ledger.DefaultTransactionLimit,
		now:    time.Now,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the engine parameters the service runs with
func (s *Service) Config() heuristics.Config {
	return s.cfg
}

func (s *Service) engine(cfg heuristics.Config) *heuristics.ClusterEngine {
	return heuristics.NewClusterEngine(cfg).WithClock(s.now)
}

func validateAddress(addr string) error {
	if err := address.Validate(addr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// configFor applies opts on top of the service configuration
func (s *Service) configFor(opts ClusterOptions) (heuristics.Config, error) {
	cfg := s.cfg
	if opts.TimeWindowHours < 0 || opts.MinTransactions < 0 {
		return cfg, fmt.Errorf("%w: negative cluster option", ErrInvalidInput)
	}
	if opts.SimilarityThreshold < 0 || opts.SimilarityThreshold > 1 {
		return cfg, fmt.Errorf("%w: similarity threshold %v outside [0,1]", ErrInvalidInput, opts.SimilarityThreshold)
	}
	if opts.TimeWindowHours > 0 {
		cfg.Grouping.TimeWindow = time.Duration(opts.TimeWindowHours) * time.Hour
	}
	if opts.MinTransactions > 0 {
		cfg.Grouping.MinTransactions = opts.MinTransactions
	}
	if opts.SimilarityThreshold > 0 {
		cfg.Merge.SimilarityThreshold = opts.SimilarityThreshold
	}
	return cfg, nil
}

// ClusterTransactions groups the wallet's recent history into classified
// clusters, persists them and alerts on every suspicious one. Returns an
// empty slice when the wallet has fewer than MinTransactions transactions.
func (s *Service) ClusterTransactions(ctx context.Context, addr string, opts ClusterOptions) (clusters []models.Cluster, err error) {
	defer func(started time.Time) { s.metrics.ObserveOperation("cluster_transactions", started, err) }(time.Now())

	if err := validateAddress(addr); err != nil {
		return nil, err
	}
	cfg, err := s.configFor(opts)
	if err != nil {
		return nil, err
	}

	clusters, err = s.cluster(ctx, addr, cfg)
	if err != nil {
		return nil, err
	}
	if len(clusters) == 0 {
		return clusters, nil
	}

	if err := s.ledger.SaveClusters(ctx, addr, clusters); err != nil {
		return nil, err
	}
	s.metrics.RecordClusters(clusters)
	s.alertSuspicious(addr, clusters)

	s.log.Debug().Str("address", addr).Int("clusters", len(clusters)).Msg("clustered wallet history")
	return clusters, nil
}

func (s *Service) cluster(ctx context.Context, addr string, cfg heuristics.Config) ([]models.Cluster, error) {
	txs, err := s.ledger.ListTransactions(ctx, addr, s.limit)
	if err != nil {
		return nil, err
	}
	if len(txs) < cfg.Grouping.MinTransactions {
		return []models.Cluster{}, nil
	}
	return s.engine(cfg).Cluster(addr, txs), nil
}

func (s *Service) alertSuspicious(addr string, clusters []models.Cluster) {
	if s.alerts == nil {
		return
	}
	for _, c := range clusters {
		if c.Type != models.ClusterSuspicious {
			continue
		}
		s.alerts.AlertSuspiciousCluster(addr, c)
		s.metrics.RecordAlert()
		s.log.Info().Str("address", addr).Str("cluster", c.ID).Float64("score", c.Score).Msg("suspicious cluster")
	}
}

// GetAssociatedWallets scores every counterparty sharing a cluster with the
// wallet, strongest first. Clusters are recomputed and not persisted.
func (s *Service) GetAssociatedWallets(ctx context.Context, addr string) (scores []models.AssociationScore, err error) {
	defer func(started time.Time) { s.metrics.ObserveOperation("associated_wallets", started, err) }(time.Now())

	if err := validateAddress(addr); err != nil {
		return nil, err
	}
	clusters, err := s.cluster(ctx, addr, s.cfg)
	if err != nil {
		return nil, err
	}
	return s.engine(s.cfg).Associations(addr, clusters), nil
}

// TrackFundingSources aggregates and stores the wallet's direct funding sources
func (s *Service) TrackFundingSources(ctx context.Context, addr, userID string) (sources []models.FundingSource, err error) {
	defer func(started time.Time) { s.metrics.ObserveOperation("track_funding_sources", started, err) }(time.Now())

	if err := validateAddress(addr); err != nil {
		return nil, err
	}
	return s.trackDirect(ctx, addr, userID)
}

func (s *Service) trackDirect(ctx context.Context, addr, userID string) ([]models.FundingSource, error) {
	if _, err := s.ledger.EnsureWallet(ctx, addr, userID); err != nil {
		return nil, err
	}
	txs, err := s.ledger.ListTransactions(ctx, addr, s.limit)
	if err != nil {
		return nil, err
	}
	sources := heuristics.AggregateDirectSources(addr, txs)
	if err := s.ledger.UpsertFundingSources(ctx, sources); err != nil {
		return nil, err
	}
	return sources, nil
}

// TraceFundOrigins walks funding sources backwards from the wallet up to
// depth hops, clamped to the configured bounds. Every visited intermediary
// has its direct sources tracked, and the indirect results are stored
// against the subject wallet.
func (s *Service) TraceFundOrigins(ctx context.Context, addr, userID string, depth int) (sources []models.FundingSource, err error) {
	defer func(started time.Time) { s.metrics.ObserveOperation("trace_fund_origins", started, err) }(time.Now())

	if err := validateAddress(addr); err != nil {
		return nil, err
	}
	if _, err := s.ledger.EnsureWallet(ctx, addr, userID); err != nil {
		return nil, err
	}

	lookup := func(ctx context.Context, wallet string) ([]models.FundingSource, error) {
		return s.trackDirect(ctx, wallet, userID)
	}
	sources, err = heuristics.NewProvenanceTracer(s.cfg.Trace, lookup).Trace(ctx, addr, depth)
	if err != nil {
		return nil, err
	}

	var indirect []models.FundingSource
	for _, fs := range sources {
		if !fs.IsDirectSource {
			indirect = append(indirect, fs)
		}
	}
	if len(indirect) > 0 {
		if err := s.ledger.UpsertFundingSources(ctx, indirect); err != nil {
			return nil, err
		}
	}

	s.metrics.RecordTrace(len(sources))
	s.log.Debug().Str("address", addr).Int("depth", s.cfg.Trace.ClampDepth(depth)).
		Int("sources", len(sources)).Msg("traced fund origins")
	return sources, nil
}

// FundingSources returns the stored funding sources of a tracked wallet
func (s *Service) FundingSources(ctx context.Context, addr string) ([]models.FundingSource, error) {
	if err := validateAddress(addr); err != nil {
		return nil, err
	}
	if _, err := s.ledger.GetWallet(ctx, addr); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("%w: wallet %s", ErrNotFound, addr)
		}
		return nil, err
	}
	return s.ledger.ListFundingSources(ctx, addr)
}

// AnalyzeActivityPatterns detects behavioral tags for the wallet and returns
// them as stored, with confidence reinforced for tags seen before.
func (s *Service) AnalyzeActivityPatterns(ctx context.Context, addr string) (patterns []models.ActivityPattern, err error) {
	defer func(started time.Time) { s.metrics.ObserveOperation("activity_patterns", started, err) }(time.Now())

	if err := validateAddress(addr); err != nil {
		return nil, err
	}
	wallet, err := s.ledger.EnsureWallet(ctx, addr, "")
	if err != nil {
		return nil, err
	}
	txs, err := s.ledger.ListTransactions(ctx, addr, s.limit)
	if err != nil {
		return nil, err
	}

	engine := s.engine(s.cfg)
	var clusters []models.Cluster
	if len(txs) >= s.cfg.Grouping.MinTransactions {
		clusters = engine.Cluster(addr, txs)
	}
	detected := engine.ActivityPatterns(wallet.ID, addr, txs, clusters)
	if len(detected) == 0 {
		return []models.ActivityPattern{}, nil
	}
	return s.ledger.UpsertActivityPatterns(ctx, detected)
}
