// Package chain provides searcher.BlockSource implementations backed by an Ethereum node.
package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/flashbots/searcher-client/searcher"
)

// EthBlockSource reads blocks from an execution client. Blocks are requested with
// transaction hashes only.
type EthBlockSource struct {
	rpc *rpc.Client
	eth *ethclient.Client
}

func NewEthBlockSource(client *rpc.Client) *EthBlockSource {
	return &EthBlockSource{
		rpc: client,
		eth: ethclient.NewClient(client),
	}
}

func DialEthBlockSource(ctx context.Context, url string) (*EthBlockSource, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewEthBlockSource(client), nil
}

func (s *EthBlockSource) BlockNumber(ctx context.Context) (uint64, error) {
	return s.eth.BlockNumber(ctx)
}

type rpcBlock struct {
	Number       *hexutil.Uint64 `json:"number"`
	Transactions []common.Hash   `json:"transactions"`
}

func (s *EthBlockSource) BlockByNumber(ctx context.Context, number uint64) (*searcher.Block, error) {
	var raw json.RawMessage
	err := s.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var block rpcBlock
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, fmt.Errorf("decode block %d: %w", number, err)
	}
	res := &searcher.Block{Transactions: block.Transactions}
	if block.Number != nil {
		n := uint64(*block.Number)
		res.Number = &n
	}
	return res, nil
}

func (s *EthBlockSource) Close() {
	s.rpc.Close()
}
