package searcher

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/flashbots/searcher-client/metrics"
	"go.uber.org/zap"
)

// Client simulates and submits bundles to a single relay.
type Client struct {
	log          *zap.Logger
	relay        *Relay
	source       BlockSource
	journal      Journal
	pollInterval time.Duration
}

type ClientOption func(*Client)

// WithJournal records every acknowledged submission and its outcome.
func WithJournal(journal Journal) ClientOption {
	return func(c *Client) {
		c.journal = journal
	}
}

// WithClientPollInterval sets the poll interval of the pending bundles created by the client.
func WithClientPollInterval(interval time.Duration) ClientOption {
	return func(c *Client) {
		c.pollInterval = interval
	}
}

func NewClient(log *zap.Logger, relay *Relay, source BlockSource, opts ...ClientOption) *Client {
	c := &Client{
		log:          log.Named("client").With(zap.String("relay", relay.URL())),
		relay:        relay,
		source:       source,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Relay() *Relay {
	return c.relay
}

// SimulateBundle runs eth_callBundle. The bundle must have a target block, a simulation block
// and a simulation timestamp.
func (c *Client) SimulateBundle(ctx context.Context, bundle BundleRequest) (*SimulatedBundle, error) {
	if err := validateSimulation(bundle); err != nil {
		return nil, err
	}
	res, err := Request[SimulatedBundle](ctx, c.relay, CallBundleMethod, bundle)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrNoSimulation
	}
	metrics.IncBundlesSimulated()
	return res, nil
}

// SendBundle submits the bundle with eth_sendBundle and returns a tracker for its inclusion.
// The bundle must have at least one transaction and a target block; min and max timestamp
// must be set together.
func (c *Client) SendBundle(ctx context.Context, bundle BundleRequest) (*PendingBundle, error) {
	if err := validateSubmission(bundle); err != nil {
		return nil, err
	}
	res, err := Request[SendBundleResponse](ctx, c.relay, SendBundleMethod, bundle)
	if err != nil {
		return nil, err
	}
	metrics.IncBundlesSent()

	var bundleHash *common.Hash
	if res != nil {
		bundleHash = res.BundleHash
	}
	return c.track(ctx, bundle, bundleHash), nil
}

func (c *Client) track(ctx context.Context, bundle BundleRequest, bundleHash *common.Hash) *PendingBundle {
	block, _ := bundle.Block()
	txs := bundle.TransactionHashes()

	opts := []PendingBundleOption{
		WithPollInterval(c.pollInterval),
		WithPendingBundleLogger(c.log),
		withRelayURL(c.relay.URL()),
	}

	if c.journal != nil {
		record := SubmissionRecord{
			Relay:        c.relay.URL(),
			Block:        block,
			Transactions: txs,
			SubmittedAt:  time.Now(),
		}
		if bundleHash != nil {
			record.BundleHash = *bundleHash
		} else {
			record.BundleHash = bundle.BundleHash()
		}
		if signer := c.relay.Signer(); signer != nil {
			record.Signer = signer.Address()
		}

		if err := c.journal.RecordSubmission(ctx, record); err != nil {
			metrics.IncJournalFailures()
			c.log.Warn("Failed to journal bundle submission", zap.Error(err))
		}
		opts = append(opts, WithCompletionHook(func(ctx context.Context, _ *PendingBundle, included bool) {
			if err := c.journal.RecordOutcome(ctx, record, included); err != nil {
				metrics.IncJournalFailures()
				c.log.Warn("Failed to journal bundle outcome", zap.Error(err))
			}
		}))
	}

	return NewPendingBundle(bundleHash, block, txs, c.source, opts...)
}

// GetBundleStats returns relay statistics for a bundle submitted for the given block.
func (c *Client) GetBundleStats(ctx context.Context, bundleHash common.Hash, block uint64) (*BundleStats, error) {
	res, err := Request[BundleStats](ctx, c.relay, GetBundleStatsMethod, GetBundleStatsParams{
		BundleHash:  bundleHash,
		BlockNumber: hexutil.Uint64(block),
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrNoBundleStats
	}
	return res, nil
}

// GetUserStats returns relay statistics of the signer as of the current block.
func (c *Client) GetUserStats(ctx context.Context) (*UserStats, error) {
	block, err := c.source.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	res, err := Request[UserStats](ctx, c.relay, GetUserStatsMethod, GetUserStatsParams{
		BlockNumber: hexutil.Uint64(block),
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrNoUserStats
	}
	return res, nil
}

// SendRawTransaction submits a single transaction as a bundle for the next block.
func (c *Client) SendRawTransaction(ctx context.Context, tx Transaction) (*PendingBundle, error) {
	block, err := c.source.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	return c.SendBundle(ctx, NewBundleRequest(tx).SetBlock(block+1))
}

func validateSubmission(bundle BundleRequest) error {
	if len(bundle.txs) == 0 {
		return missing("transactions")
	}
	if bundle.block == nil {
		return missing("block")
	}
	if (bundle.minTimestamp == nil) != (bundle.maxTimestamp == nil) {
		return missing("min and max timestamp must be set together")
	}
	return nil
}

func validateSimulation(bundle BundleRequest) error {
	if bundle.block == nil {
		return missing("block")
	}
	if bundle.simulationBlock == nil {
		return missing("simulation block")
	}
	if bundle.simulationTimestamp == nil {
		return missing("simulation timestamp")
	}
	return nil
}
