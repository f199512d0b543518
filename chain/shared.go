package chain

import (
	"context"
	"time"

	"github.com/flashbots/searcher-client/searcher"
	"github.com/flashbots/searcher-client/spike"
)

const (
	DefaultBlockCacheTime = time.Minute
	blockFetchTimeout     = 10 * time.Second
)

// SharedBlockSource lets many pending bundles poll the same target block with one request per block.
// Only blocks that exist and carry a number are cached.
type SharedBlockSource struct {
	source  searcher.BlockSource
	manager *spike.Manager[uint64, *searcher.Block]
}

func NewSharedBlockSource(source searcher.BlockSource, cacheTime time.Duration) *SharedBlockSource {
	if cacheTime <= 0 {
		cacheTime = DefaultBlockCacheTime
	}
	fetch := func(ctx context.Context, number uint64) (*searcher.Block, error) {
		ctx, cancel := context.WithTimeout(ctx, blockFetchTimeout)
		defer cancel()
		return source.BlockByNumber(ctx, number)
	}
	keep := func(b *searcher.Block) bool {
		return b != nil && b.Number != nil
	}
	return &SharedBlockSource{
		source:  source,
		manager: spike.NewCustomManager(spike.GoCacheHandler(fetch, cacheTime, keep)),
	}
}

func (s *SharedBlockSource) BlockNumber(ctx context.Context) (uint64, error) {
	return s.source.BlockNumber(ctx)
}

func (s *SharedBlockSource) BlockByNumber(ctx context.Context, number uint64) (*searcher.Block, error) {
	return s.manager.GetResult(ctx, number)
}
