package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/powmint/pkg/types"
)

func statusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the issuance state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := g.client().State()
			if err != nil {
				return fmt.Errorf("issuance_getState: %w", err)
			}
			fmt.Printf("Chain:      %s\n", st.ChainID)
			fmt.Printf("Height:     %d\n", st.Height)
			fmt.Printf("Target:     %s\n", st.Target)
			fmt.Printf("Last nonce: %s\n", st.LastNonce)
			if st.LastAcceptedTime > 0 {
				fmt.Printf("Last proof: %s\n", formatTime(st.LastAcceptedTime))
			}
			fmt.Printf("Operator:   %s\n", st.Operator)
			fmt.Printf("Pool:       %s\n", orUnset(st.LiquidityPool))
			fmt.Printf("Governance: %s\n", orUnset(st.Governance))
			fmt.Printf("Paused:     %t\n", st.Paused)
			return nil
		},
	}
}

func targetCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "target",
		Short: "Show the target the next proof must meet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := g.client().NextTarget()
			if err != nil {
				return fmt.Errorf("issuance_nextTarget: %w", err)
			}
			fmt.Println(t)
			return nil
		},
	}
}

func rewardCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "reward",
		Short: "Show the reward split for the next proof",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := g.client().CurrentReward()
			if err != nil {
				return fmt.Errorf("issuance_currentReward: %w", err)
			}
			fmt.Printf("Height: %d\n", r.Height)
			fmt.Printf("Miner:  %s\n", formatAmount(r.MinerReward))
			fmt.Printf("Pool:   %s\n", formatAmount(r.PoolReward))
			return nil
		},
	}
}

func eventsCmd(g *globals) *cobra.Command {
	var from uint64
	var limit int

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List accepted submissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := g.client().Events(from, limit)
			if err != nil {
				return fmt.Errorf("issuance_getEvents: %w", err)
			}
			if len(events) == 0 {
				fmt.Println("No events.")
				return nil
			}
			fmt.Printf("%-8s  %-42s  %18s  %18s  %s\n", "HEIGHT", "SUBMITTER", "MINER", "POOL", "TIME")
			for _, ev := range events {
				fmt.Printf("%-8d  %-42s  %18s  %18s  %s\n",
					ev.Height, ev.Submitter, formatAmount(ev.MinerReward), formatAmount(ev.PoolReward), formatTime(ev.Time))
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 1, "First height")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of events")
	return cmd
}

func balanceCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address>",
		Short: "Show the ledger balance of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := types.ParseAddress(args[0])
			if err != nil {
				return err
			}
			bal, err := g.client().Balance(addr)
			if err != nil {
				return fmt.Errorf("ledger_getBalance: %w", err)
			}
			fmt.Println(strings.TrimSpace(formatAmount(bal) + " " + symbol(g)))
			return nil
		},
	}
}

func supplyCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "supply",
		Short: "Show the total and maximum supply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.client().Supply()
			if err != nil {
				return fmt.Errorf("ledger_getSupply: %w", err)
			}
			fmt.Printf("Supply:     %s\n", formatAmount(s.Supply))
			if s.MaxSupply == 0 {
				fmt.Println("Max supply: unlimited")
			} else {
				fmt.Printf("Max supply: %s\n", formatAmount(s.MaxSupply))
			}
			return nil
		},
	}
}

func epochCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "epoch",
		Short: "Show the governance epoch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.client().Epoch()
			if err != nil {
				return fmt.Errorf("governance_getEpoch: %w", err)
			}
			fmt.Printf("Epoch:    %d\n", e.Epoch)
			if e.AdvancedAt > 0 {
				fmt.Printf("Advanced: %s\n", formatTime(e.AdvancedAt))
			}
			return nil
		},
	}
}

func peersCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "peers",
		Short: "Show the node's network identity and peers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := g.client().NodeInfo()
			if err != nil {
				return fmt.Errorf("net_getNodeInfo: %w", err)
			}
			fmt.Printf("Version:       %s\n", info.Version)
			if info.ID == "" {
				fmt.Println("P2P:           disabled")
				return nil
			}
			fmt.Printf("ID:            %s\n", info.ID)
			fmt.Printf("Peers:         %d\n", info.Peers)
			fmt.Printf("Remote height: %d\n", info.RemoteHeight)
			if len(info.Addrs) > 0 {
				fmt.Printf("Addrs:\n  %s\n", strings.Join(info.Addrs, "\n  "))
			}
			return nil
		},
	}
}

func formatTime(unix uint64) string {
	return time.Unix(int64(unix), 0).UTC().Format(time.RFC3339)
}

func orUnset(a types.Address) string {
	if a.IsZero() {
		return "(unset)"
	}
	return a.String()
}

// symbol returns the chain's ticker, or an empty string if the node does
// not answer.
func symbol(g *globals) string {
	r, err := g.client().Rules()
	if err != nil {
		return ""
	}
	return r.Symbol
}
