package relaytest

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flashbots/searcher-client/searcher"
	"github.com/stretchr/testify/require"
)

func TestHandler_ServeHTTP(t *testing.T) {
	var (
		errorArg = -1
		errorOut = errors.New("custom error") //nolint:goerr113
	)
	handler, err := NewHandler(Methods{
		"function": func(ctx context.Context, arg1 int) (dummyStruct, error) {
			if arg1 == errorArg {
				return dummyStruct{}, errorOut
			}
			return dummyStruct{arg1}, nil
		},
		"coded": func(ctx context.Context) error {
			return &Error{Code: -32602, Message: "bad bundle"}
		},
		"null": func(ctx context.Context) (*dummyStruct, error) {
			return nil, nil
		},
	})
	require.NoError(t, err)

	testCases := map[string]struct {
		requestBody      string
		expectedResponse string
	}{
		"success": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[1]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"result":{"field":1}}`,
		},
		"error": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[-1]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"custom error"}}`,
		},
		"coded error": {
			requestBody:      `{"jsonrpc":"2.0","id":2,"method":"coded","params":[]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":2,"error":{"code":-32602,"message":"bad bundle"}}`,
		},
		"null result": {
			requestBody:      `{"jsonrpc":"2.0","id":3,"method":"null","params":[]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":3,"result":null}`,
		},
		"invalid json": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[1]`,
			expectedResponse: `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"unexpected end of JSON input"}}`,
		},
		"method not found": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"not_found","params":[1]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`,
		},
		"invalid params": {
			requestBody:      `{"jsonrpc":"2.0","id":1,"method":"function","params":[1,2]}`,
			expectedResponse: `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"expected at most 1 params, got 2"}}`,
		},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			body := bytes.NewReader([]byte(testCase.requestBody))
			request, err := http.NewRequest(http.MethodPost, "/", body)
			require.NoError(t, err)

			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, request)
			require.Equal(t, http.StatusOK, rr.Code)

			require.JSONEq(t, testCase.expectedResponse, rr.Body.String())
		})
	}
}

func TestHandler_Signature(t *testing.T) {
	signer, err := searcher.RandomSigner()
	require.NoError(t, err)

	var seen common.Address
	handler, err := NewHandler(Methods{
		"whoami": func(ctx context.Context) (common.Address, error) {
			seen = GetSigner(ctx)
			return seen, nil
		},
	}, RequireSignature())
	require.NoError(t, err)

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"whoami","params":[]}`)

	// unsigned
	request, err := http.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, request)
	require.Equal(t, http.StatusForbidden, rr.Code)

	// signed
	header, err := searcher.SignatureHeader(context.Background(), signer, body)
	require.NoError(t, err)
	request, err = http.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	require.NoError(t, err)
	request.Header.Set(searcher.FlashbotsSignatureHeader, header)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, request)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, signer.Address(), seen)

	requests := handler.Requests()
	require.Len(t, requests, 2)
	require.ErrorIs(t, requests[0].SignatureErr, ErrMissingSignature)
	require.NoError(t, requests[1].SignatureErr)
	require.Equal(t, signer.Address(), requests[1].Signer)
	require.Equal(t, "whoami", requests[1].Method)
	require.Equal(t, body, requests[1].Body)
}

func TestVerifySignature(t *testing.T) {
	signer, err := searcher.RandomSigner()
	require.NoError(t, err)
	other, err := searcher.RandomSigner()
	require.NoError(t, err)

	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"eth_sendBundle","params":[{}]}`)
	header, err := searcher.SignatureHeader(context.Background(), signer, body)
	require.NoError(t, err)

	address, err := VerifySignature(header, body)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), address)

	// tampered body
	_, err = VerifySignature(header, append(body, ' '))
	require.ErrorIs(t, err, ErrSignatureMismatch)

	// claimed address differs from the key that signed
	forged := other.Address().Hex() + header[len(signer.Address().Hex()):]
	_, err = VerifySignature(forged, body)
	require.ErrorIs(t, err, ErrSignatureMismatch)

	_, err = VerifySignature("not-a-header", body)
	require.ErrorIs(t, err, ErrInvalidSignatureHeader)
	_, err = VerifySignature(signer.Address().Hex()+":0x1234", body)
	require.ErrorIs(t, err, ErrInvalidSignatureHeader)
}
