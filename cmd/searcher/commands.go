package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/flashbots/searcher-client/searcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var errNoRelayAccepted = errors.New("no relay accepted the bundle")

func loadBundle(file string) (searcher.BundleRequest, error) {
	var bundle searcher.BundleRequest
	data, err := os.ReadFile(file)
	if err != nil {
		return bundle, err
	}
	if err := json.Unmarshal(data, &bundle); err != nil {
		return bundle, fmt.Errorf("decode bundle %s: %w", file, err)
	}
	return bundle, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSimulateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <bundle.json>",
		Short: "Simulate a bundle with eth_callBundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bundle, err := loadBundle(args[0])
			if err != nil {
				return err
			}
			e, err := opts.setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			if _, ok := bundle.SimulationBlock(); !ok {
				number, err := e.source.BlockNumber(ctx)
				if err != nil {
					return err
				}
				bundle = bundle.SetSimulationBlock(number)
			}
			if _, ok := bundle.Block(); !ok {
				simBlock, _ := bundle.SimulationBlock()
				bundle = bundle.SetBlock(simBlock + 1)
			}
			if _, ok := bundle.SimulationTimestamp(); !ok {
				bundle = bundle.SetSimulationTimestamp(uint64(time.Now().Unix()))
			}

			sim, err := e.broadcaster.SimulateBundle(ctx, bundle)
			if err != nil {
				return err
			}
			e.log.Info("Bundle simulated",
				zap.String("bundleHash", sim.Hash.Hex()),
				zap.Int("reverted", len(sim.Reverted())),
				zap.String("coinbaseDiffEth", searcher.FormatUnits(sim.CoinbaseDiff.ToBig(), "eth")),
				zap.String("effectiveGasPriceGwei", searcher.FormatUnits(sim.EffectiveGasPrice().ToBig(), "gwei")),
			)
			return printJSON(cmd.OutOrStdout(), sim)
		},
	}
}

type sendResult struct {
	Relay      string       `json:"relay"`
	BundleHash *common.Hash `json:"bundleHash,omitempty"`
	Block      uint64       `json:"block,omitempty"`
	Error      string       `json:"error,omitempty"`
	Included   *bool        `json:"included,omitempty"`
}

func newSendCmd(opts *options) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "send <bundle.json>",
		Short: "Send a bundle to every configured relay",
		Long: `Sends the bundle with eth_sendBundle to every configured relay. The target block
defaults to the next block. With --wait the command polls the chain until the target block
exists and reports whether the bundle landed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			bundle, err := loadBundle(args[0])
			if err != nil {
				return err
			}
			e, err := opts.setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			if _, ok := bundle.Block(); !ok {
				number, err := e.source.BlockNumber(ctx)
				if err != nil {
					return err
				}
				bundle = bundle.SetBlock(number + 1)
			}

			results, err := e.broadcaster.SendBundle(ctx, bundle)
			if err != nil {
				return err
			}

			out := make([]sendResult, len(results))
			accepted := 0
			for i, res := range results {
				out[i].Relay = res.Relay
				if res.Err != nil {
					out[i].Error = res.Err.Error()
					continue
				}
				accepted++
				out[i].BundleHash = res.Pending.BundleHash
				out[i].Block = res.Pending.Block
			}

			if wait && accepted > 0 {
				g, gctx := errgroup.WithContext(ctx)
				for i, res := range results {
					if res.Pending == nil {
						continue
					}
					i, pending := i, res.Pending
					g.Go(func() error {
						_, err := pending.Wait(gctx)
						included := err == nil
						if err != nil && !errors.Is(err, searcher.ErrBundleNotIncluded) {
							return err
						}
						out[i].Included = &included
						return nil
					})
				}
				if err := g.Wait(); err != nil {
					return err
				}
			}

			if err := printJSON(cmd.OutOrStdout(), out); err != nil {
				return err
			}
			if accepted == 0 {
				return errNoRelayAccepted
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the target block and report inclusion")
	return cmd
}

func newBundleStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "bundle-stats <bundle-hash> <block>",
		Short: "Get relay stats of a submitted bundle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			var bundleHash common.Hash
			if err := bundleHash.UnmarshalText([]byte(args[0])); err != nil {
				return fmt.Errorf("invalid bundle hash: %w", err)
			}
			block, err := parseBlock(args[1])
			if err != nil {
				return err
			}

			e, err := opts.setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			stats, err := e.broadcaster.SimulationClient().GetBundleStats(ctx, bundleHash, block)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

func newUserStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "user-stats",
		Short: "Get relay stats of the signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := opts.setup(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			stats, err := e.broadcaster.SimulationClient().GetUserStats(ctx)
			if err != nil {
				return err
			}
			e.log.Info("User stats",
				zap.Bool("isHighPriority", stats.IsHighPriority),
				zap.String("allTimeValidatorPaymentsEth", searcher.FormatUnits(stats.AllTimeValidatorPayments.ToBig(), "eth")),
			)
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
}

// parseBlock accepts a decimal or 0x-prefixed block number.
func parseBlock(s string) (uint64, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok || !n.IsUint64() {
		return 0, fmt.Errorf("invalid block number %q", s)
	}
	return n.Uint64(), nil
}
