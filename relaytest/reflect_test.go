package relaytest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/require"
)

type ctxKey string

func rawParams(t *testing.T, raw string) []json.RawMessage {
	t.Helper()
	var params []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &params))
	return params
}

type dummyStruct struct {
	Field int `json:"field"`
}

type statsParams struct {
	BundleHash  common.Hash    `json:"bundleHash"`
	BlockNumber hexutil.Uint64 `json:"blockNumber"`
}

type customError struct{}

func (customError) Error() string { return "custom" }

func TestNewMethod(t *testing.T) {
	valid := map[string]any{
		"bundle":   func(ctx context.Context, bundle json.RawMessage) (*dummyStruct, error) { return nil, nil },
		"no args":  func(ctx context.Context) error { return nil },
		"two args": func(ctx context.Context, number hexutil.Uint64, full bool) (any, error) { return nil, nil },
	}
	for name, fn := range valid {
		_, err := newMethod(name, fn)
		require.NoError(t, err, name)
	}

	invalid := map[string]any{
		"not a function":      "eth_sendBundle",
		"nil":                 nil,
		"no context":          func(number hexutil.Uint64) error { return nil },
		"no error":            func(ctx context.Context) *dummyStruct { return nil },
		"three results":       func(ctx context.Context) (int, int, error) { return 0, 0, nil },
		"error not last":      func(ctx context.Context) (error, int) { return nil, 0 }, //nolint:stylecheck
		"no results":          func(ctx context.Context) {},
		"concrete error type": func(ctx context.Context) customError { return customError{} },
	}
	for name, fn := range invalid {
		_, err := newMethod(name, fn)
		require.ErrorIs(t, err, ErrInvalidMethod, name)
		require.Contains(t, err.Error(), name)
	}
}

func TestMethod_InvokeParams(t *testing.T) {
	var got []any
	m, err := newMethod("stats", func(ctx context.Context, params statsParams, number hexutil.Uint64, full bool) error {
		got = []any{params, number, full}
		return nil
	})
	require.NoError(t, err)

	hash := common.HexToHash("0x73b1e258c7a42fd0230b2fd05529c5d4b6fcb66c227783f8bece8aeacdd1db2e")
	_, err = m.invoke(context.Background(), rawParams(t, `[{"bundleHash":"`+hash.Hex()+`","blockNumber":"0x20"}, "0x10", true]`))
	require.NoError(t, err)
	require.Equal(t, []any{statsParams{BundleHash: hash, BlockNumber: 0x20}, hexutil.Uint64(0x10), true}, got)

	// missing trailing params are zero values
	_, err = m.invoke(context.Background(), rawParams(t, `[{}]`))
	require.NoError(t, err)
	require.Equal(t, []any{statsParams{}, hexutil.Uint64(0), false}, got)

	var rpcErr *Error
	_, err = m.invoke(context.Background(), rawParams(t, `[{}, "0x1", false, 1]`))
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, CodeInvalidParams, rpcErr.Code)

	_, err = m.invoke(context.Background(), rawParams(t, `[{}, 16]`))
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, CodeInvalidParams, rpcErr.Code)
	require.Contains(t, rpcErr.Message, "param 1")
}

func TestMethod_Invoke(t *testing.T) {
	errRejected := errors.New("bundle rejected") //nolint:goerr113
	ctx := context.WithValue(context.Background(), ctxKey("relay"), "test")

	send := func(ctx context.Context, bundle json.RawMessage) (map[string]string, error) {
		require.Equal(t, "test", ctx.Value(ctxKey("relay")))
		if string(bundle) == `{}` {
			return nil, errRejected
		}
		return map[string]string{"bundleHash": "0x01"}, nil
	}
	cancel := func(ctx context.Context, hash common.Hash) error {
		if hash == (common.Hash{}) {
			return errRejected
		}
		return nil
	}
	stats := func(ctx context.Context, params statsParams) (*dummyStruct, error) {
		return nil, nil
	}

	testCases := map[string]struct {
		function      any
		params        string
		expectedValue any
		expectedError error
	}{
		"result": {
			function:      send,
			params:        `[{"txs":["0x01"]}]`,
			expectedValue: map[string]string{"bundleHash": "0x01"},
		},
		"result error": {
			function:      send,
			params:        `[{}]`,
			expectedValue: map[string]string(nil),
			expectedError: errRejected,
		},
		"error only": {
			function: cancel,
			params:   `["0x0000000000000000000000000000000000000000000000000000000000000001"]`,
		},
		"error only failing": {
			function:      cancel,
			params:        `[]`,
			expectedError: errRejected,
		},
		"nil pointer result": {
			function:      stats,
			params:        `[{"blockNumber":"0x1"}]`,
			expectedValue: (*dummyStruct)(nil),
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			m, err := newMethod(name, tc.function)
			require.NoError(t, err)

			value, err := m.invoke(ctx, rawParams(t, tc.params))
			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tc.expectedValue, value)
		})
	}
}
