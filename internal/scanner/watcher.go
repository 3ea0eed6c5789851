package scanner

import (
	"context"
	"time"
)

// Watcher periodically syncs a fixed set of wallets and hands every wallet
// that received new transactions to onNew (typically re-clustering, which
// raises suspicious-cluster alerts).
type Watcher struct {
	syncer    *WalletSyncer
	addresses []string
	interval  time.Duration
	onNew     func(ctx context.Context, address string) error
}

func NewWatcher(syncer *WalletSyncer, addresses []string, interval time.Duration,
	onNew func(ctx context.Context, address string) error) *Watcher {
	return &Watcher{
		syncer:    syncer,
		addresses: append([]string(nil), addresses...),
		interval:  interval,
		onNew:     onNew,
	}
}

// Run polls until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) {
	if len(w.addresses) == 0 {
		return
	}
	w.syncer.log.Info().Int("wallets", len(w.addresses)).Dur("interval", w.interval).Msg("starting wallet watcher")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			w.syncer.log.Info().Msg("stopping wallet watcher")
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

// Poll runs one pass over the watched wallets and returns how many had new
// transactions
func (w *Watcher) Poll(ctx context.Context) int {
	updated := 0
	for _, addr := range w.addresses {
		if ctx.Err() != nil {
			return updated
		}
		res, err := w.syncer.Sync(ctx, addr, 0)
		if err != nil {
			w.syncer.log.Warn().Err(err).Str("address", addr).Msg("watcher sync failed")
			continue
		}
		if res.Stored == 0 {
			continue
		}
		updated++
		if w.onNew == nil {
			continue
		}
		if err := w.onNew(ctx, addr); err != nil {
			w.syncer.log.Warn().Err(err).Str("address", addr).Msg("watcher analysis failed")
		}
	}
	return updated
}
