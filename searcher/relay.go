package searcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/flashbots/searcher-client/metrics"
	"github.com/go-resty/resty/v2"
	"github.com/ybbus/jsonrpc/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultRelayTimeout = 10 * time.Second

// Relay is a JSON-RPC client for a single relay endpoint. Request ids are counted per instance.
type Relay struct {
	log     *zap.Logger
	url     string
	client  *resty.Client
	signer  Signer
	limiter *rate.Limiter

	id atomic.Uint64
}

type RelayOption func(*Relay)

// WithHTTPClient makes the relay use the given client. Relays created with the same client share its transport.
func WithHTTPClient(client *http.Client) RelayOption {
	return func(r *Relay) {
		r.client = resty.NewWithClient(client)
	}
}

// WithRateLimit limits the relay to rps requests per second. Zero disables the limit.
func WithRateLimit(rps float64) RelayOption {
	return func(r *Relay) {
		if rps <= 0 {
			r.limiter = nil
			return
		}
		r.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

func WithRelayLogger(log *zap.Logger) RelayOption {
	return func(r *Relay) {
		r.log = log
	}
}

// NewRelay creates a relay client. signer may be nil for endpoints that do not require authentication.
func NewRelay(url string, signer Signer, opts ...RelayOption) *Relay {
	r := &Relay{
		log:    zap.NewNop(),
		url:    url,
		signer: signer,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = resty.New().SetTimeout(defaultRelayTimeout)
	}
	r.log = r.log.With(zap.String("relay", url))
	return r
}

// Clone returns a relay sharing transport, signer and rate limit but with its own id counter starting at zero.
func (r *Relay) Clone() *Relay {
	return &Relay{
		log:     r.log,
		url:     r.url,
		client:  r.client,
		signer:  r.signer,
		limiter: r.limiter,
	}
}

func (r *Relay) URL() string {
	return r.url
}

func (r *Relay) Signer() Signer {
	return r.signer
}

type rpcResponse struct {
	Result json.RawMessage   `json:"result"`
	Error  *jsonrpc.RPCError `json:"error"`
}

// Request performs a JSON-RPC call with a single positional parameter.
// A null result returns (nil, nil).
func Request[R any](ctx context.Context, r *Relay, method string, param any) (*R, error) {
	raw, err := r.call(ctx, method, param)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var result R
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &DecodeError{Err: err, Body: string(raw)}
	}
	return &result, nil
}

func (r *Relay) call(ctx context.Context, method string, param any) (result json.RawMessage, err error) {
	startAt := time.Now()
	defer func() {
		metrics.RecordRelayCallDuration(r.url, method, time.Since(startAt).Milliseconds())
		if err != nil {
			metrics.IncRelayCallFailure(r.url, method)
		}
	}()

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := r.id.Add(1)
	body, err := json.Marshal(jsonrpc.RPCRequest{
		Method:  method,
		Params:  []any{param},
		ID:      int(id),
		JSONRPC: "2.0",
	})
	if err != nil {
		return nil, err
	}

	req := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if r.signer != nil {
		header, err := SignatureHeader(ctx, r.signer, body)
		if err != nil {
			return nil, err
		}
		req.SetHeader(FlashbotsSignatureHeader, header)
	}

	log := r.log.With(zap.String("method", method), zap.Uint64("id", id))
	log.Debug("Sending relay request")

	resp, err := req.Post(r.url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &TransportError{Err: err}
	}

	status := resp.StatusCode()
	switch {
	case status >= 400 && status < 500:
		metrics.IncRelayRejection(r.url, status)
		log.Debug("Relay rejected request", zap.Int("status", status))
		return nil, &ClientError{StatusCode: status, Body: resp.String()}
	case status < 200 || status >= 300:
		return nil, &TransportError{StatusCode: status, Err: errors.New(resp.String())}
	}

	var envelope rpcResponse
	if err := json.Unmarshal(resp.Body(), &envelope); err != nil {
		return nil, &DecodeError{Err: err, Body: resp.String()}
	}
	if envelope.Error != nil {
		return nil, envelope.Error
	}
	if len(envelope.Result) == 0 {
		return nil, ErrInvalidResponse
	}
	if string(envelope.Result) == "null" {
		return nil, nil
	}
	return envelope.Result, nil
}
