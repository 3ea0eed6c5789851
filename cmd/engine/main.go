package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rawblock/txflow-engine/internal/analysis"
	"github.com/rawblock/txflow-engine/internal/api"
	"github.com/rawblock/txflow-engine/internal/cache"
	"github.com/rawblock/txflow-engine/internal/chain"
	"github.com/rawblock/txflow-engine/internal/config"
	"github.com/rawblock/txflow-engine/internal/db"
	"github.com/rawblock/txflow-engine/internal/heuristics"
	"github.com/rawblock/txflow-engine/internal/ledger"
	"github.com/rawblock/txflow-engine/internal/logging"
	"github.com/rawblock/txflow-engine/internal/metrics"
	"github.com/rawblock/txflow-engine/internal/scanner"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "txflow-engine: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return err
	}
	log.Info().Str("port", cfg.Server.Port).Msg("starting transaction-flow analysis engine")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	// ─── Ledger ─────────────────────────────────────────────────────────
	// Postgres when DATABASE_URL is set, otherwise an in-memory ledger
	// that lives as long as the process.
	// ────────────────────────────────────────────────────────────────────
	var store ledger.Ledger
	var ping func(context.Context) error
	if cfg.Database.URL != "" {
		pg, err := db.Connect(ctx, cfg.Database.URL, db.PoolOptions{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
		}, logging.Component(log, "db"))
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.InitSchema(ctx); err != nil {
			return err
		}
		metrics.RegisterPoolStats(reg, pg.Stat)
		store, ping = pg, pg.Ping
	} else {
		log.Warn().Msg("DATABASE_URL not set, using in-memory ledger; data is lost on restart")
		store = ledger.NewMemoryLedger()
	}

	var locker scanner.Locker
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, continuing without transaction cache")
		} else {
			defer rc.Close()
			store = cache.NewCachedLedger(store, rc, cfg.Redis.TTL, logging.Component(log, "cache"))
			locker = rc
		}
	}

	wsHub := api.NewHub(logging.Component(log, "stream"))
	go wsHub.Run()
	defer wsHub.Close()

	hcfg := cfg.Heuristics()
	service := analysis.NewService(store, hcfg,
		analysis.WithMetrics(rec),
		analysis.WithAlerter(wsHub),
		analysis.WithLogger(logging.Component(log, "analysis")),
		analysis.WithTransactionLimit(cfg.Engine.TransactionLimit),
	)

	syncer, err := newSyncer(ctx, cfg, store, hcfg, locker, rec, log)
	if err != nil {
		log.Warn().Err(err).Msg("chain provider unavailable, wallet sync disabled")
	} else if len(cfg.Chain.WatchAddresses) > 0 {
		watcher := scanner.NewWatcher(syncer, cfg.Chain.WatchAddresses, cfg.Chain.PollInterval,
			func(ctx context.Context, addr string) error {
				_, err := service.ClusterTransactions(ctx, addr, analysis.ClusterOptions{})
				return err
			})
		go watcher.Run(ctx)
	}

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.SetupRouter(service, syncer, wsHub, api.Options{
		AuthToken:      cfg.Server.AuthToken,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RateLimit:      cfg.Server.RateLimit.RequestsPerSecond,
		Burst:          cfg.Server.RateLimit.Burst,
		RequestTimeout: cfg.Server.RequestTimeout,
		Metrics:        rec,
		Gatherer:       reg,
		Ping:           ping,
		Background:     ctx,
		Log:            logging.Component(log, "api"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("engine listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newSyncer connects to the chain node; a nil syncer disables /sync
func newSyncer(ctx context.Context, cfg *config.Config, store ledger.Ledger, hcfg heuristics.Config,
	locker scanner.Locker, rec *metrics.Recorder, log zerolog.Logger) (*scanner.WalletSyncer, error) {
	client, err := chain.NewClient(ctx, chain.Config{
		RPCURL:     cfg.Chain.RPCURL,
		Commitment: cfg.Chain.Commitment,
		Fetches:    cfg.Chain.FetchConcurrency,
	}, logging.Component(log, "chain"))
	if err != nil {
		return nil, err
	}

	opts := []scanner.Option{
		scanner.WithLimit(cfg.Chain.SyncLimit),
		scanner.WithMetrics(rec),
		scanner.WithLogger(logging.Component(log, "scanner")),
	}
	if locker != nil {
		opts = append(opts, scanner.WithLocker(locker, time.Minute))
	}
	engine := heuristics.NewClusterEngine(hcfg)
	return scanner.NewWalletSyncer(client, store, engine, opts...), nil
}
