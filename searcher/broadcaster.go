package searcher

import (
	"context"
	"time"

	"github.com/flashbots/searcher-client/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BroadcastResult is the outcome of a submission to one relay. Exactly one of Pending and Err is set.
type BroadcastResult struct {
	Relay   string
	Pending *PendingBundle
	Err     error
}

type broadcasterConfig struct {
	simulation     *Relay
	maxConcurrency int
	clientOpts     []ClientOption
}

type BroadcasterOption func(*broadcasterConfig)

// WithSimulationRelay sets the relay used for eth_callBundle. Defaults to the first submission relay.
func WithSimulationRelay(relay *Relay) BroadcasterOption {
	return func(c *broadcasterConfig) {
		c.simulation = relay
	}
}

// WithMaxConcurrency caps the number of relays contacted at the same time. Zero means no cap.
func WithMaxConcurrency(n int) BroadcasterOption {
	return func(c *broadcasterConfig) {
		c.maxConcurrency = n
	}
}

func WithClientOptions(opts ...ClientOption) BroadcasterOption {
	return func(c *broadcasterConfig) {
		c.clientOpts = append(c.clientOpts, opts...)
	}
}

// Broadcaster submits the same bundle to several relays concurrently.
type Broadcaster struct {
	log            *zap.Logger
	clients        []*Client
	simulation     *Client
	maxConcurrency int
}

// NewRelays creates relays for urls that all authenticate with the same signer.
func NewRelays(urls []string, signer Signer, opts ...RelayOption) []*Relay {
	relays := make([]*Relay, 0, len(urls))
	for _, url := range urls {
		relays = append(relays, NewRelay(url, signer, opts...))
	}
	return relays
}

func NewBroadcaster(log *zap.Logger, source BlockSource, relays []*Relay, opts ...BroadcasterOption) (*Broadcaster, error) {
	if len(relays) == 0 {
		return nil, ErrNoRelays
	}
	var cfg broadcasterConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	log = log.Named("broadcaster")
	clients := make([]*Client, 0, len(relays))
	for _, relay := range relays {
		clients = append(clients, NewClient(log, relay, source, cfg.clientOpts...))
	}

	simulation := clients[0]
	if cfg.simulation != nil {
		simulation = NewClient(log, cfg.simulation, source, cfg.clientOpts...)
	}

	return &Broadcaster{
		log:            log,
		clients:        clients,
		simulation:     simulation,
		maxConcurrency: cfg.maxConcurrency,
	}, nil
}

func (b *Broadcaster) Clients() []*Client {
	return b.clients
}

// SimulationClient returns the client used for simulation and stats calls.
func (b *Broadcaster) SimulationClient() *Client {
	return b.simulation
}

func (b *Broadcaster) SimulateBundle(ctx context.Context, bundle BundleRequest) (*SimulatedBundle, error) {
	return b.simulation.SimulateBundle(ctx, bundle)
}

// SendBundle submits the bundle to every relay in parallel and returns one result per relay
// in relay order. A failing relay does not affect the others. The returned error is only set
// when the bundle itself is invalid.
func (b *Broadcaster) SendBundle(ctx context.Context, bundle BundleRequest) ([]BroadcastResult, error) {
	if err := validateSubmission(bundle); err != nil {
		return nil, err
	}

	results := make([]BroadcastResult, len(b.clients))
	var g errgroup.Group
	if b.maxConcurrency > 0 {
		g.SetLimit(b.maxConcurrency)
	}
	for idx, client := range b.clients {
		idx, client := idx, client
		g.Go(func() error {
			start := time.Now()
			pending, err := client.SendBundle(ctx, bundle)
			b.log.Debug("Sent bundle to relay", zap.String("relay", client.relay.URL()), zap.Duration("duration", time.Since(start)), zap.Error(err))
			if err != nil {
				b.log.Warn("Failed to send bundle to relay", zap.Error(err), zap.String("relay", client.relay.URL()))
			}
			results[idx] = BroadcastResult{
				Relay:   client.relay.URL(),
				Pending: pending,
				Err:     err,
			}
			return nil
		})
	}
	_ = g.Wait()

	sent := false
	for _, res := range results {
		if res.Err == nil {
			sent = true
			break
		}
	}
	if !sent {
		metrics.IncBroadcastsRejected()
		b.log.Error("Failed to send bundle to any of the relays")
	}
	return results, nil
}
