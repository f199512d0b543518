package chain

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/flashbots/searcher-client/relaytest"
	"github.com/stretchr/testify/require"
)

type testBlock struct {
	Number       *hexutil.Uint64 `json:"number"`
	Hash         common.Hash     `json:"hash"`
	Transactions []common.Hash   `json:"transactions"`
}

func newTestNode(t *testing.T) (*EthBlockSource, *relaytest.Handler) {
	t.Helper()
	head := hexutil.Uint64(0x10)
	srv, handler := relaytest.NewServer(t, relaytest.Methods{
		"eth_blockNumber": func(ctx context.Context) (hexutil.Uint64, error) {
			return head, nil
		},
		"eth_getBlockByNumber": func(ctx context.Context, number hexutil.Uint64, fullTxs bool) (*testBlock, error) {
			if fullTxs {
				return nil, &relaytest.Error{Code: -32602, Message: "full transactions not supported"}
			}
			if number > head {
				return nil, nil
			}
			return &testBlock{
				Number:       &number,
				Hash:         common.Hash{0xb},
				Transactions: []common.Hash{{0x1}, {0x2}},
			}, nil
		},
	})

	source, err := DialEthBlockSource(context.Background(), srv.URL)
	require.NoError(t, err)
	t.Cleanup(source.Close)
	return source, handler
}

func TestEthBlockSource(t *testing.T) {
	source, handler := newTestNode(t)
	ctx := context.Background()

	number, err := source.BlockNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0x10), number)

	block, err := source.BlockByNumber(ctx, 0x10)
	require.NoError(t, err)
	require.NotNil(t, block)
	require.NotNil(t, block.Number)
	require.Equal(t, uint64(0x10), *block.Number)
	require.Equal(t, []common.Hash{{0x1}, {0x2}}, block.Transactions)

	requests := handler.Requests()
	require.Len(t, requests, 2)
	require.Equal(t, "eth_getBlockByNumber", requests[1].Method)
	require.JSONEq(t, `"0x10"`, string(requests[1].Params[0]))
	require.JSONEq(t, `false`, string(requests[1].Params[1]))
}

func TestEthBlockSource_NotFound(t *testing.T) {
	source, _ := newTestNode(t)

	block, err := source.BlockByNumber(context.Background(), 0x11)
	require.NoError(t, err)
	require.Nil(t, block)
}
