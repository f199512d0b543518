package searcher

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flashbots/searcher-client/metrics"
	"go.uber.org/zap"
)

// Block is the part of a chain block the poller needs. Number is nil for pending blocks.
type Block struct {
	Number       *uint64
	Transactions []common.Hash
}

// BlockSource is the chain access used by the coordinator and the poller.
// BlockByNumber returns (nil, nil) when the block does not exist yet.
type BlockSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*Block, error)
}

type pollState int

const (
	stateWaitingForInterval pollState = iota
	stateFetchingTargetBlock
	stateCompleted
)

func (s pollState) String() string {
	switch s {
	case stateWaitingForInterval:
		return "waiting_for_interval"
	case stateFetchingTargetBlock:
		return "fetching_target_block"
	case stateCompleted:
		return "completed"
	}
	return "unknown"
}

// PendingBundle tracks a submitted bundle until its target block is available.
type PendingBundle struct {
	// BundleHash is the hash reported by the relay, nil if the relay did not report one.
	BundleHash   *common.Hash
	Block        uint64
	Transactions []common.Hash
	// Relay is the url of the relay that acknowledged the bundle.
	Relay string

	log        *zap.Logger
	source     BlockSource
	interval   time.Duration
	onComplete func(ctx context.Context, p *PendingBundle, included bool)

	mu    sync.Mutex
	state pollState
}

type PendingBundleOption func(*PendingBundle)

// WithPollInterval sets the time between block fetches. Non-positive values select DefaultPollInterval.
func WithPollInterval(interval time.Duration) PendingBundleOption {
	return func(p *PendingBundle) {
		p.interval = interval
	}
}

func WithPendingBundleLogger(log *zap.Logger) PendingBundleOption {
	return func(p *PendingBundle) {
		p.log = log
	}
}

// WithCompletionHook registers fn to run once when the poller reaches a verdict.
func WithCompletionHook(fn func(ctx context.Context, p *PendingBundle, included bool)) PendingBundleOption {
	return func(p *PendingBundle) {
		p.onComplete = fn
	}
}

func withRelayURL(url string) PendingBundleOption {
	return func(p *PendingBundle) {
		p.Relay = url
	}
}

func NewPendingBundle(bundleHash *common.Hash, block uint64, txs []common.Hash, source BlockSource, opts ...PendingBundleOption) *PendingBundle {
	p := &PendingBundle{
		BundleHash:   bundleHash,
		Block:        block,
		Transactions: txs,
		log:          zap.NewNop(),
		source:       source,
		interval:     DefaultPollInterval,
		state:        stateWaitingForInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	p.log = p.log.With(zap.Uint64("block", block), zap.String("relay", p.Relay))
	return p
}

// Wait polls the block source until the target block exists and reports whether every
// transaction of the bundle is in it. It returns the bundle hash on inclusion and
// ErrBundleNotIncluded otherwise. Cancelling ctx returns ctx.Err() and Wait may be called again.
// Calling Wait after it returned a verdict panics.
func (p *PendingBundle) Wait(ctx context.Context) (*common.Hash, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateCompleted {
		panic("searcher: PendingBundle.Wait called after completion")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		switch p.state {
		case stateWaitingForInterval:
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
				p.state = stateFetchingTargetBlock
			}
		case stateFetchingTargetBlock:
			block, err := p.source.BlockByNumber(ctx, p.Block)
			p.state = stateWaitingForInterval
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				metrics.IncBlockFetchFailures()
				p.log.Debug("Failed to fetch target block", zap.Error(err))
				continue
			}
			if block == nil || block.Number == nil {
				continue
			}

			p.state = stateCompleted
			included := containsAll(block.Transactions, p.Transactions)
			p.complete(ctx, included)
			if !included {
				return nil, ErrBundleNotIncluded
			}
			return p.BundleHash, nil
		}
	}
}

func (p *PendingBundle) complete(ctx context.Context, included bool) {
	if included {
		metrics.IncBundlesIncluded()
	} else {
		metrics.IncBundlesNotIncluded()
	}
	p.log.Debug("Bundle inclusion checked", zap.Bool("included", included))
	if p.onComplete != nil {
		p.onComplete(ctx, p, included)
	}
}

func containsAll(blockTxs, txs []common.Hash) bool {
	set := make(map[common.Hash]struct{}, len(blockTxs))
	for _, h := range blockTxs {
		set[h] = struct{}{}
	}
	for _, h := range txs {
		if _, ok := set[h]; !ok {
			return false
		}
	}
	return true
}
