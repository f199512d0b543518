package chain

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/flashbots/searcher-client/searcher"
)

const DefaultBlockNumberTTL = 5 * time.Second

// CachingBlockSource caches the head block number for a ttl. Block lookups go straight to the
// underlying source.
type CachingBlockSource struct {
	source     searcher.BlockSource
	ttl        time.Duration
	newBackOff func() backoff.BackOff

	mu          sync.RWMutex
	blockNumber uint64
	lastUpdate  time.Time
}

func NewCachingBlockSource(source searcher.BlockSource, ttl time.Duration) *CachingBlockSource {
	if ttl <= 0 {
		ttl = DefaultBlockNumberTTL
	}
	return &CachingBlockSource{
		source: source,
		ttl:    ttl,
		newBackOff: func() backoff.BackOff {
			back := backoff.NewExponentialBackOff()
			back.InitialInterval = 100 * time.Millisecond
			back.MaxInterval = time.Second
			back.MaxElapsedTime = 3 * time.Second
			return back
		},
	}
}

// BlockNumber returns the most recent block number, refreshing it with retries once the ttl passed.
func (c *CachingBlockSource) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	if !c.lastUpdate.IsZero() && time.Since(c.lastUpdate) < c.ttl {
		c.mu.RUnlock()
		return c.blockNumber, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// refreshed while we were waiting for the lock
	if !c.lastUpdate.IsZero() && time.Since(c.lastUpdate) < c.ttl {
		return c.blockNumber, nil
	}

	var blockNumber uint64
	err := backoff.Retry(func() error {
		var err error
		blockNumber, err = c.source.BlockNumber(ctx)
		return err
	}, backoff.WithContext(c.newBackOff(), ctx))
	if err != nil {
		return 0, err
	}

	c.blockNumber = blockNumber
	c.lastUpdate = time.Now()
	return blockNumber, nil
}

func (c *CachingBlockSource) BlockByNumber(ctx context.Context, number uint64) (*searcher.Block, error) {
	return c.source.BlockByNumber(ctx, number)
}
