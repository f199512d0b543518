package chain

import (
	"context"
	"sync"

	"github.com/flashbots/searcher-client/searcher"
)

type fakeSource struct {
	mu           sync.Mutex
	numbers      []uint64
	numberErrs   []error
	numberCalls  int
	blocks       map[uint64]*searcher.Block
	blockCalls   int
	blockRelease chan struct{}
}

func (f *fakeSource) BlockNumber(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.numberCalls
	f.numberCalls++
	if idx < len(f.numberErrs) && f.numberErrs[idx] != nil {
		return 0, f.numberErrs[idx]
	}
	if idx >= len(f.numbers) {
		idx = len(f.numbers) - 1
	}
	return f.numbers[idx], nil
}

func (f *fakeSource) BlockByNumber(_ context.Context, number uint64) (*searcher.Block, error) {
	if f.blockRelease != nil {
		<-f.blockRelease
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockCalls++
	return f.blocks[number], nil
}

func (f *fakeSource) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.numberCalls, f.blockCalls
}

func block(number uint64) *searcher.Block {
	return &searcher.Block{Number: &number}
}
