package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/powmint/internal/issuance"
	"github.com/Klingon-tech/powmint/internal/miner"
	"github.com/Klingon-tech/powmint/internal/rpcclient"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// remoteIssuer lets the local miner work against a node over RPC.
type remoteIssuer struct {
	c *rpcclient.Client
}

func (r remoteIssuer) Work() (issuance.Work, error) {
	w, err := r.c.Work()
	if err != nil {
		return issuance.Work{}, err
	}
	return *w, nil
}

func (r remoteIssuer) Submit(ctx context.Context, candidate types.Nonce, submitter types.Address) (*issuance.RewardEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.c.Submit(candidate, submitter)
}

func submitCmd(g *globals) *cobra.Command {
	var submitter string

	cmd := &cobra.Command{
		Use:   "submit <candidate>",
		Short: "Submit a solved candidate nonce",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			candidate, err := types.HexToNonce(args[0])
			if err != nil {
				return fmt.Errorf("candidate: %w", err)
			}
			addr, err := types.ParseAddress(submitter)
			if err != nil {
				return fmt.Errorf("submitter: %w", err)
			}
			ev, err := g.client().Submit(candidate, addr)
			if err != nil {
				return fmt.Errorf("issuance_submit: %w", err)
			}
			printEvent(ev)
			return nil
		},
	}
	cmd.Flags().StringVar(&submitter, "submitter", "", "Address credited with the miner reward (required)")
	cmd.MarkFlagRequired("submitter")
	return cmd
}

func mineCmd(g *globals) *cobra.Command {
	var coinbase string
	var threads, count int

	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Solve and submit proofs against the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := types.ParseAddress(coinbase)
			if err != nil {
				return fmt.Errorf("coinbase: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := miner.New(remoteIssuer{c: g.client()}, addr, threads)
			for mined := 0; count <= 0 || mined < count; {
				ev, err := m.MineOne(ctx)
				switch {
				case err == nil:
					mined++
					printEvent(ev)
				case ctx.Err() != nil:
					return nil
				case errors.Is(err, miner.ErrStaleWork), errors.Is(err, issuance.ErrReentrantCall):
					// Another submission landed first; fetch fresh work.
				default:
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&coinbase, "coinbase", "", "Address credited with the miner reward (required)")
	cmd.Flags().IntVar(&threads, "threads", 1, "Solver goroutines")
	cmd.Flags().IntVar(&count, "count", 1, "Proofs to mine (0 = until interrupted)")
	cmd.MarkFlagRequired("coinbase")
	return cmd
}

func printEvent(ev *issuance.RewardEvent) {
	fmt.Printf("Accepted height %d\n", ev.Height)
	fmt.Printf("  Candidate: %s\n", ev.Candidate)
	fmt.Printf("  Miner:     %s -> %s\n", formatAmount(ev.MinerReward), ev.Submitter)
	if ev.PoolReward > 0 {
		fmt.Printf("  Pool:      %s -> %s\n", formatAmount(ev.PoolReward), ev.Pool)
	}
	if ev.Advanced {
		fmt.Println("  Governance advanced")
	}
}
