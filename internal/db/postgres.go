package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/txflow-engine/internal/ledger"
	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// schemaSQL is compiled into the binary at build time so schema init works
// from any working directory.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore is the durable Ledger implementation
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

var _ ledger.Ledger = (*PostgresStore)(nil)

// PoolOptions tunes the pgx connection pool
type PoolOptions struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(ctx context.Context, connStr string, opts PoolOptions, log zerolog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	log.Info().Int32("max_conns", cfg.MaxConns).Msg("connected to PostgreSQL")
	return &PostgresStore{pool: pool, log: log}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks database reachability for /health
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Stat exposes pool statistics for the metrics collector
func (s *PostgresStore) Stat() *pgxpool.Stat {
	return s.pool.Stat()
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	s.log.Info().Msg("schema initialized")
	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, address string, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = ledger.DefaultTransactionLimit
	}

	sql := `
		SELECT signature, block_time, source_address, destination_address, amount::text, tx_type
		FROM transactions
		WHERE source_address = $1 OR destination_address = $1
		ORDER BY block_time DESC NULLS LAST, signature
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, sql, address, limit)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	txs := make([]models.Transaction, 0)
	for rows.Next() {
		var tx models.Transaction
		var amount *string
		var txType string
		if err := rows.Scan(&tx.Signature, &tx.BlockTime, &tx.SourceAddress, &tx.DestinationAddress, &amount, &txType); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		if amount != nil {
			d, err := decimal.NewFromString(*amount)
			if err != nil {
				return nil, fmt.Errorf("parse amount of %s: %w", tx.Signature, err)
			}
			tx.Amount = decimal.NewNullDecimal(d)
		}
		tx.Type = models.ParseTxType(txType)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return txs, nil
}

func (s *PostgresStore) SaveTransactions(ctx context.Context, txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	sql := `
		INSERT INTO transactions (signature, block_time, source_address, destination_address, amount, tx_type)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		ON CONFLICT (signature) DO NOTHING
	`
	batch := &pgx.Batch{}
	for _, tx := range txs {
		batch.Queue(sql, tx.Signature, tx.BlockTime, tx.SourceAddress, tx.DestinationAddress,
			nullableAmount(tx.Amount), string(tx.Type))
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range txs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetWallet(ctx context.Context, address string) (*models.Wallet, error) {
	sql := `SELECT id, address, COALESCE(user_id, ''), created_at FROM wallets WHERE address = $1`
	var w models.Wallet
	err := s.pool.QueryRow(ctx, sql, address).Scan(&w.ID, &w.Address, &w.UserID, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &w, nil
}

func (s *PostgresStore) EnsureWallet(ctx context.Context, address, userID string) (*models.Wallet, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	sql := `
		INSERT INTO wallets (id, address, user_id)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		RETURNING id, address, COALESCE(user_id, ''), created_at
	`
	var w models.Wallet
	err := s.pool.QueryRow(ctx, sql, uuid.NewString(), address, userID).
		Scan(&w.ID, &w.Address, &w.UserID, &w.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure wallet: %w", err)
	}
	return &w, nil
}

func (s *PostgresStore) UpsertFundingSources(ctx context.Context, sources []models.FundingSource) error {
	if len(sources) == 0 {
		return nil
	}

	sql := `
		INSERT INTO funding_sources
			(id, wallet_address, source_address, first_tx_signature, first_tx_date,
			 last_tx_signature, last_tx_date, total_amount, transaction_count,
			 is_direct_source, confidence, path, path_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11, $12, $13)
		ON CONFLICT (wallet_address, source_address, path_key) DO UPDATE SET
			total_amount = CASE WHEN EXCLUDED.is_direct_source
				THEN funding_sources.total_amount + EXCLUDED.total_amount ELSE EXCLUDED.total_amount END,
			transaction_count = CASE WHEN EXCLUDED.is_direct_source
				THEN funding_sources.transaction_count + EXCLUDED.transaction_count ELSE EXCLUDED.transaction_count END,
			confidence = CASE WHEN EXCLUDED.is_direct_source
				THEN ROUND(LEAST(1.0, GREATEST(funding_sources.confidence, EXCLUDED.confidence) + 0.05)::numeric, 3)::float8
				ELSE EXCLUDED.confidence END,
			first_tx_signature = CASE
				WHEN NOT EXCLUDED.is_direct_source OR (EXCLUDED.first_tx_date IS NOT NULL AND (funding_sources.first_tx_date IS NULL OR EXCLUDED.first_tx_date < funding_sources.first_tx_date))
				THEN EXCLUDED.first_tx_signature ELSE funding_sources.first_tx_signature END,
			first_tx_date = CASE
				WHEN NOT EXCLUDED.is_direct_source OR (EXCLUDED.first_tx_date IS NOT NULL AND (funding_sources.first_tx_date IS NULL OR EXCLUDED.first_tx_date < funding_sources.first_tx_date))
				THEN EXCLUDED.first_tx_date ELSE funding_sources.first_tx_date END,
			last_tx_signature = CASE
				WHEN NOT EXCLUDED.is_direct_source OR (EXCLUDED.last_tx_date IS NOT NULL AND (funding_sources.last_tx_date IS NULL OR EXCLUDED.last_tx_date > funding_sources.last_tx_date))
				THEN EXCLUDED.last_tx_signature ELSE funding_sources.last_tx_signature END,
			last_tx_date = CASE
				WHEN NOT EXCLUDED.is_direct_source OR (EXCLUDED.last_tx_date IS NOT NULL AND (funding_sources.last_tx_date IS NULL OR EXCLUDED.last_tx_date > funding_sources.last_tx_date))
				THEN EXCLUDED.last_tx_date ELSE funding_sources.last_tx_date END,
			updated_at = NOW()
	`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin funding source upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, fs := range sources {
		path := fs.Path
		if path == nil {
			path = []string{}
		}
		_, err := tx.Exec(ctx, sql,
			uuid.NewString(),
			fs.WalletAddress,
			fs.SourceAddress,
			fs.FirstTxSignature,
			fs.FirstTxDate,
			fs.LastTxSignature,
			fs.LastTxDate,
			fs.TotalAmount.String(),
			fs.TransactionCount,
			fs.IsDirectSource,
			fs.Confidence,
			path,
			ledger.FundingPathKey(fs),
		)
		if err != nil {
			return fmt.Errorf("upsert funding source %s->%s: %w", fs.SourceAddress, fs.WalletAddress, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit funding sources: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFundingSources(ctx context.Context, walletAddress string) ([]models.FundingSource, error) {
	sql := `
		SELECT id, wallet_address, source_address, first_tx_signature, first_tx_date,
		       last_tx_signature, last_tx_date, total_amount::text, transaction_count,
		       is_direct_source, confidence, path
		FROM funding_sources
		WHERE wallet_address = $1
		ORDER BY confidence DESC, source_address, cardinality(path), path_key
	`
	rows, err := s.pool.Query(ctx, sql, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("query funding sources: %w", err)
	}
	defer rows.Close()

	sources := make([]models.FundingSource, 0)
	for rows.Next() {
		var fs models.FundingSource
		var total string
		err := rows.Scan(&fs.ID, &fs.WalletAddress, &fs.SourceAddress, &fs.FirstTxSignature, &fs.FirstTxDate,
			&fs.LastTxSignature, &fs.LastTxDate, &total, &fs.TransactionCount,
			&fs.IsDirectSource, &fs.Confidence, &fs.Path)
		if err != nil {
			return nil, fmt.Errorf("scan funding source: %w", err)
		}
		if fs.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total amount: %w", err)
		}
		sources = append(sources, fs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate funding sources: %w", err)
	}
	return sources, nil
}

func (s *PostgresStore) UpsertActivityPatterns(ctx context.Context, patterns []models.ActivityPattern) ([]models.ActivityPattern, error) {
	sql := `
		INSERT INTO activity_patterns (id, wallet_id, pattern, frequency, confidence, description, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (wallet_id, pattern) DO UPDATE SET
			confidence = ROUND(LEAST(1.0, activity_patterns.confidence + 0.1)::numeric, 2)::float8,
			frequency = COALESCE(EXCLUDED.frequency, activity_patterns.frequency),
			description = EXCLUDED.description,
			updated_at = EXCLUDED.updated_at
		RETURNING id, wallet_id, pattern, frequency, confidence, description, updated_at
	`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin activity pattern upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stored := make([]models.ActivityPattern, 0, len(patterns))
	for _, p := range patterns {
		var row models.ActivityPattern
		err := tx.QueryRow(ctx, sql, uuid.NewString(), p.WalletID, p.Pattern, p.Frequency,
			p.Confidence, p.Description, p.UpdatedAt).
			Scan(&row.ID, &row.WalletID, &row.Pattern, &row.Frequency, &row.Confidence, &row.Description, &row.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("upsert activity pattern %s: %w", p.Pattern, err)
		}
		stored = append(stored, row)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit activity patterns: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) SaveClusters(ctx context.Context, walletAddress string, clusters []models.Cluster) error {
	if len(clusters) == 0 {
		return nil
	}

	clusterSQL := `
		INSERT INTO clusters (id, wallet_address, score, cluster_type, description, wallets, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			score = EXCLUDED.score,
			cluster_type = EXCLUDED.cluster_type,
			description = EXCLUDED.description,
			wallets = EXCLUDED.wallets
	`
	memberSQL := `
		INSERT INTO cluster_transactions (cluster_id, signature)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cluster save: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range clusters {
		_, err := tx.Exec(ctx, clusterSQL, c.ID, walletAddress, c.Score, string(c.Type), c.Description, c.Wallets, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert cluster: %w", err)
		}
		for _, member := range c.Transactions {
			if _, err := tx.Exec(ctx, memberSQL, c.ID, member.Signature); err != nil {
				return fmt.Errorf("failed to insert cluster member: %w", err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit clusters: %w", err)
	}
	return nil
}

// nullableAmount maps a missing amount to SQL NULL
func nullableAmount(a decimal.NullDecimal) *string {
	if !a.Valid {
		return nil
	}
	s := a.Decimal.String()
	return &s
}
