package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/flashbots/go-utils/cli"
	redisjournal "github.com/flashbots/searcher-client/adapters/redis"
	"github.com/flashbots/searcher-client/chain"
	"github.com/flashbots/searcher-client/searcher"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redisJournalExpiry = 24 * time.Hour

var errInvalidPollInterval = errors.New("poll interval must be positive")

type options struct {
	debug          bool
	logProd        bool
	logService     string
	ethEndpoint    string
	relayEndpoints string
	simRelay       string
	relaysConfig   string
	signingKey     string
	postgresDSN    string
	redisEndpoint  string
	metricsPort    string
	pollIntervalMs string
	maxConcurrency int

	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "searcher",
		Short:        "Simulate, send and track Flashbots bundles",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts.log = newLogger(opts)
			if opts.metricsPort != "" {
				startMetricsServer(opts.log, opts.metricsPort)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = opts.log.Sync()
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVar(&opts.debug, "debug", os.Getenv("DEBUG") == "1", "print debug output")
	flags.BoolVar(&opts.logProd, "log-prod", os.Getenv("LOG_PROD") == "1", "log in production mode (json)")
	flags.StringVar(&opts.logService, "log-service", os.Getenv("LOG_SERVICE"), "'service' tag to logs")
	flags.StringVar(&opts.ethEndpoint, "eth", cli.GetEnv("ETH_ENDPOINT", "http://127.0.0.1:8545"), "eth endpoint")
	flags.StringVar(&opts.relayEndpoints, "relays", cli.GetEnv("RELAY_ENDPOINTS", "https://relay.flashbots.net"), "relay endpoints (comma separated)")
	flags.StringVar(&opts.simRelay, "sim-relay", cli.GetEnv("SIM_RELAY_ENDPOINT", ""), "relay used for eth_callBundle, defaults to the first relay")
	flags.StringVar(&opts.relaysConfig, "relays-config", cli.GetEnv("RELAYS_CONFIG", ""), "relays config file, overrides --relays")
	flags.StringVar(&opts.signingKey, "signing-key", cli.GetEnv("SIGNING_KEY", ""), "hex private key used to sign relay requests, random if empty")
	flags.StringVar(&opts.postgresDSN, "postgres-dsn", cli.GetEnv("POSTGRES_DSN", ""), "postgres dsn of the submission journal")
	flags.StringVar(&opts.redisEndpoint, "redis", cli.GetEnv("REDIS_ENDPOINT", ""), "redis url of the submission journal, used when no postgres dsn is set")
	flags.StringVar(&opts.metricsPort, "metrics-port", cli.GetEnv("METRICS_PORT", ""), "port of the metrics and pprof server, disabled if empty")
	flags.StringVar(&opts.pollIntervalMs, "poll-interval-ms", cli.GetEnv("POLL_INTERVAL_MS", strconv.FormatInt(searcher.DefaultPollInterval.Milliseconds(), 10)), "inclusion poll interval in milliseconds")
	flags.IntVar(&opts.maxConcurrency, "max-concurrency", 0, "max relays contacted at once, 0 for no limit")

	root.AddCommand(
		newSimulateCmd(opts),
		newSendCmd(opts),
		newBundleStatsCmd(opts),
		newUserStatsCmd(opts),
	)
	return root
}

func newLogger(opts *options) *zap.Logger {
	logger, _ := zap.NewDevelopment()
	if opts.logProd {
		atom := zap.NewAtomicLevel()
		if opts.debug {
			atom.SetLevel(zap.DebugLevel)
		}

		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		logger = zap.New(zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderCfg),
			zapcore.Lock(os.Stderr),
			atom,
		))
	}
	if opts.logService != "" {
		logger = logger.With(zap.String("service", opts.logService))
	}
	return logger
}

func startMetricsServer(log *zap.Logger, port string) {
	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	metricsMux.Handle("/debug/pprof/", http.HandlerFunc(pprof.Index))
	metricsMux.Handle("/debug/pprof/cmdline", http.HandlerFunc(pprof.Cmdline))
	metricsMux.Handle("/debug/pprof/profile", http.HandlerFunc(pprof.Profile))
	metricsMux.Handle("/debug/pprof/symbol", http.HandlerFunc(pprof.Symbol))
	metricsMux.Handle("/debug/pprof/trace", http.HandlerFunc(pprof.Trace))

	go func() {
		metricsServer := &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%s", port),
			ReadHeaderTimeout: 5 * time.Second,
			Handler:           metricsMux,
		}
		if err := metricsServer.ListenAndServe(); err != nil {
			log.Error("Metrics server stopped", zap.Error(err))
		}
	}()
}

// env holds everything a subcommand talks to.
type env struct {
	log         *zap.Logger
	source      searcher.BlockSource
	broadcaster *searcher.Broadcaster
	closers     []func()
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func (o *options) setup(ctx context.Context) (*env, error) {
	e := &env{log: o.log}
	ok := false
	defer func() {
		if !ok {
			e.close()
		}
	}()

	signer, err := o.signer()
	if err != nil {
		return nil, err
	}
	e.log = e.log.With(zap.String("signer", signer.Address().Hex()))

	eth, err := chain.DialEthBlockSource(ctx, o.ethEndpoint)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, eth.Close)
	e.source = chain.NewSharedBlockSource(chain.NewCachingBlockSource(eth, 0), 0)

	relays, simulation, err := o.relays(signer)
	if err != nil {
		return nil, err
	}

	pollInterval, err := strconv.ParseInt(o.pollIntervalMs, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse poll interval: %w", err)
	}
	if pollInterval <= 0 {
		return nil, fmt.Errorf("%w: %d", errInvalidPollInterval, pollInterval)
	}
	clientOpts := []searcher.ClientOption{searcher.WithClientPollInterval(time.Duration(pollInterval) * time.Millisecond)}

	journal, err := o.journal(e)
	if err != nil {
		return nil, err
	}
	if journal != nil {
		clientOpts = append(clientOpts, searcher.WithJournal(journal))
	}

	broadcasterOpts := []searcher.BroadcasterOption{
		searcher.WithClientOptions(clientOpts...),
		searcher.WithMaxConcurrency(o.maxConcurrency),
	}
	if simulation != nil {
		broadcasterOpts = append(broadcasterOpts, searcher.WithSimulationRelay(simulation))
	}
	e.broadcaster, err = searcher.NewBroadcaster(e.log, e.source, relays, broadcasterOpts...)
	if err != nil {
		return nil, err
	}

	ok = true
	return e, nil
}

func (o *options) signer() (searcher.Signer, error) {
	if o.signingKey == "" {
		o.log.Warn("No signing key set, using a random reputation key")
		return searcher.RandomSigner()
	}
	return searcher.NewPrivateKeySignerFromHex(o.signingKey)
}

func (o *options) relays(signer searcher.Signer) ([]*searcher.Relay, *searcher.Relay, error) {
	relayOpts := []searcher.RelayOption{searcher.WithRelayLogger(o.log)}

	var (
		relays     []*searcher.Relay
		simulation *searcher.Relay
	)
	if o.relaysConfig != "" {
		config, err := searcher.LoadRelayConfig(o.relaysConfig)
		if err != nil {
			return nil, nil, err
		}
		relays, simulation = config.Build(signer, relayOpts...)
	} else {
		relays = searcher.NewRelays(splitEndpoints(o.relayEndpoints), signer, relayOpts...)
	}
	if o.simRelay != "" {
		simulation = searcher.NewRelay(o.simRelay, signer, relayOpts...)
	}
	return relays, simulation, nil
}

func (o *options) journal(e *env) (searcher.Journal, error) {
	switch {
	case o.postgresDSN != "":
		journal, err := searcher.NewDBJournal(o.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres journal: %w", err)
		}
		e.closers = append(e.closers, func() { _ = journal.Close() })
		return journal, nil
	case o.redisEndpoint != "":
		redisOpts, err := redis.ParseURL(o.redisEndpoint)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		e.closers = append(e.closers, func() { _ = client.Close() })
		return redisjournal.NewJournal(client, redisJournalExpiry, ""), nil
	}
	return nil, nil
}

func splitEndpoints(s string) []string {
	var res []string
	for _, endpoint := range strings.Split(s, ",") {
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			res = append(res, endpoint)
		}
	}
	return res
}
