package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rawblock/txflow-engine/pkg/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MaxSignatures is the node's cap on getSignaturesForAddress
const MaxSignatures = 1000

type Config struct {
	RPCURL     string
	Commitment string // processed, confirmed or finalized
	// Fetches is the number of concurrent getTransaction calls (default: 4)
	Fetches int
}

// Client pulls wallet histories from a Solana JSON-RPC node
type Client struct {
	rpc        *rpc.Client
	commitment rpc.CommitmentType
	fetches    int
	log        zerolog.Logger
}

// NewClient connects to the node and verifies it answers
func NewClient(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	c := &Client{
		rpc:        rpc.New(cfg.RPCURL),
		commitment: rpc.CommitmentType(cfg.Commitment),
		fetches:    cfg.Fetches,
		log:        log,
	}
	if c.commitment == "" {
		c.commitment = rpc.CommitmentConfirmed
	}
	if c.fetches <= 0 {
		c.fetches = 4
	}

	slot, err := c.rpc.GetSlot(ctx, c.commitment)
	if err != nil {
		return nil, fmt.Errorf("chain: connect %s: %w", cfg.RPCURL, err)
	}
	log.Info().Str("rpc", cfg.RPCURL).Uint64("slot", slot).Msg("connected to Solana node")
	return c, nil
}

// RecentTransactions returns up to limit of the address's most recent
// successful transactions, newest first, converted relative to the address
func (c *Client) RecentTransactions(ctx context.Context, address string, limit int) ([]models.Transaction, error) {
	subject, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("chain: parse address: %w", err)
	}
	if limit <= 0 || limit > MaxSignatures {
		limit = MaxSignatures
	}

	sigs, err := c.rpc.GetSignaturesForAddressWithOpts(ctx, subject, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("chain: signatures for %s: %w", address, err)
	}

	results := make([]*models.Transaction, len(sigs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.fetches)
	for i, sig := range sigs {
		if sig.Err != nil {
			continue
		}
		g.Go(func() error {
			obs, err := c.fetch(gctx, sig.Signature)
			if err != nil {
				return fmt.Errorf("chain: transaction %s: %w", sig.Signature, err)
			}
			if obs == nil {
				return nil
			}
			if tx, ok := Convert(subject, *obs); ok {
				results[i] = &tx
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	txs := make([]models.Transaction, 0, len(results))
	for _, tx := range results {
		if tx != nil {
			txs = append(txs, *tx)
		}
	}
	c.log.Debug().Str("address", address).Int("signatures", len(sigs)).Int("transactions", len(txs)).Msg("fetched history")
	return txs, nil
}

// fetch returns nil when the node no longer has the transaction
func (c *Client) fetch(ctx context.Context, sig solana.Signature) (*Observed, error) {
	maxVersion := uint64(0)
	res, err := c.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if res == nil || res.Meta == nil || res.Transaction == nil {
		return nil, nil
	}

	decoded, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	accounts := make([]solana.PublicKey, 0, len(decoded.Message.AccountKeys))
	accounts = append(accounts, decoded.Message.AccountKeys...)
	accounts = append(accounts, res.Meta.LoadedAddresses.Writable...)
	accounts = append(accounts, res.Meta.LoadedAddresses.ReadOnly...)

	programs := make([]solana.PublicKey, 0, len(decoded.Message.Instructions))
	for _, inst := range decoded.Message.Instructions {
		if idx := int(inst.ProgramIDIndex); idx < len(accounts) {
			programs = append(programs, accounts[idx])
		}
	}

	obs := &Observed{
		Signature:    sig.String(),
		Accounts:     accounts,
		PreBalances:  res.Meta.PreBalances,
		PostBalances: res.Meta.PostBalances,
		Fee:          res.Meta.Fee,
		Programs:     programs,
		Failed:       res.Meta.Err != nil,
	}
	if res.BlockTime != nil {
		t := res.BlockTime.Time().UTC()
		obs.BlockTime = &t
	}
	return obs, nil
}
