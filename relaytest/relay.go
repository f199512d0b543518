// Package relaytest runs an in-process JSON-RPC endpoint for tests.
// Methods are plain functions like:
// func Foo(context, int) (int, error)
// Every request is recorded together with the signer recovered from X-Flashbots-Signature.
package relaytest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeCustomError    = -32000
)

var (
	ErrMissingSignature       = errors.New("missing x-flashbots-signature header")
	ErrInvalidSignatureHeader = errors.New("invalid x-flashbots-signature header")
	ErrSignatureMismatch      = errors.New("signature does not match signer")
)

type signerKey struct{}

type jsonrpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      any               `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type jsonrpcResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      any              `json:"id"`
	Result  *json.RawMessage `json:"result,omitempty"`
	Error   *Error           `json:"error,omitempty"`
}

// Error is returned to the client as a JSON-RPC error when a method returns it.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    *any   `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// Request is a recorded call.
type Request struct {
	Method string
	ID     any
	Params []json.RawMessage
	Body   []byte
	// Signer is the verified signer, zero if the request was not signed.
	Signer       common.Address
	SignatureErr error
}

type Methods map[string]any

type Handler struct {
	methods          map[string]method
	requireSignature bool

	mu       sync.Mutex
	requests []Request
}

type Option func(*Handler)

// RequireSignature rejects unsigned or badly signed requests with 403.
func RequireSignature() Option {
	return func(h *Handler) {
		h.requireSignature = true
	}
}

// NewHandler creates a JSON-RPC http.Handler from the map of method names to functions.
// Each function must take context.Context first, return error last and have JSON compatible
// arguments and results.
func NewHandler(methods Methods, opts ...Option) (*Handler, error) {
	m := make(map[string]method)
	for name, fn := range methods {
		handler, err := newMethod(name, fn)
		if err != nil {
			return nil, err
		}
		m[name] = handler
	}
	h := &Handler{methods: m}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// NewServer starts an httptest server for the methods. It is closed when the test ends.
func NewServer(t testing.TB, methods Methods, opts ...Option) (*httptest.Server, *Handler) {
	t.Helper()
	h, err := NewHandler(methods, opts...)
	if err != nil {
		t.Fatalf("relaytest: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, h
}

// Requests returns a copy of all recorded requests in arrival order.
func (h *Handler) Requests() []Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Request(nil), h.requests...)
}

func writeJSONRPCError(w http.ResponseWriter, id any, code int, msg string) {
	res := jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &Error{
			Code:    code,
			Message: msg,
		},
	}
	if err := json.NewEncoder(w).Encode(res); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req jsonrpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONRPCError(w, nil, CodeParseError, err.Error())
		return
	}

	recorded := Request{Method: req.Method, ID: req.ID, Params: req.Params, Body: body}
	if header := r.Header.Get("x-flashbots-signature"); header != "" {
		recorded.Signer, recorded.SignatureErr = VerifySignature(header, body)
	} else {
		recorded.SignatureErr = ErrMissingSignature
	}
	h.mu.Lock()
	h.requests = append(h.requests, recorded)
	h.mu.Unlock()

	if h.requireSignature && recorded.SignatureErr != nil {
		http.Error(w, recorded.SignatureErr.Error(), http.StatusForbidden)
		return
	}

	if req.JSONRPC != "2.0" {
		writeJSONRPCError(w, req.ID, CodeParseError, "invalid jsonrpc version")
		return
	}

	handler, ok := h.methods[req.Method]
	if !ok {
		writeJSONRPCError(w, req.ID, CodeMethodNotFound, "method not found")
		return
	}

	ctx := context.WithValue(r.Context(), signerKey{}, recorded.Signer)
	result, err := handler.invoke(ctx, req.Params)
	if err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) {
			writeJSONRPCError(w, req.ID, rpcErr.Code, rpcErr.Message)
			return
		}
		writeJSONRPCError(w, req.ID, CodeCustomError, err.Error())
		return
	}

	marshaledResult, err := json.Marshal(result)
	if err != nil {
		writeJSONRPCError(w, req.ID, CodeInternalError, err.Error())
		return
	}

	rawMessageResult := json.RawMessage(marshaledResult)
	res := jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  &rawMessageResult,
	}
	if err := json.NewEncoder(w).Encode(res); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

// GetSigner returns the verified signer of the request being served.
func GetSigner(ctx context.Context) common.Address {
	value, ok := ctx.Value(signerKey{}).(common.Address)
	if !ok {
		return common.Address{}
	}
	return value
}

// VerifySignature checks an X-Flashbots-Signature value against the request body and returns the signer.
func VerifySignature(header string, body []byte) (common.Address, error) {
	addrHex, sigHex, ok := strings.Cut(header, ":")
	if !ok || !common.IsHexAddress(addrHex) {
		return common.Address{}, ErrInvalidSignatureHeader
	}
	sig, err := hexutil.Decode(sigHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, ErrInvalidSignatureHeader
	}
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash([]byte(crypto.Keccak256Hash(body).Hex()))
	pub, err := crypto.SigToPub(hash, sig)
	if err != nil {
		return common.Address{}, ErrInvalidSignatureHeader
	}
	signer := crypto.PubkeyToAddress(*pub)
	if signer != common.HexToAddress(addrHex) {
		return common.Address{}, ErrSignatureMismatch
	}
	return signer, nil
}
