package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/powmint/internal/rpc"
	"github.com/Klingon-tech/powmint/internal/rpcclient"
	"github.com/Klingon-tech/powmint/pkg/crypto"
	"github.com/Klingon-tech/powmint/pkg/types"
)

// adminFunc performs one signed operator call.
type adminFunc func(c *rpcclient.Client, key *crypto.PrivateKey, args []string) (*rpc.AdminResult, error)

func adminCmd(g *globals) *cobra.Command {
	var keyName string

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator controls, signed with a stored key",
	}
	cmd.PersistentFlags().StringVar(&keyName, "key", "operator", "Name of the operator key in the keystore")

	sub := func(use, short string, nargs cobra.PositionalArgs, fn adminFunc) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  nargs,
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := unlockKey(g, keyName)
				if err != nil {
					return err
				}
				defer key.Zero()

				res, err := fn(g.client(), key, args)
				if err != nil {
					return err
				}
				fmt.Printf("Paused:     %t\n", res.Paused)
				fmt.Printf("Pool:       %s\n", orUnset(res.LiquidityPool))
				fmt.Printf("Governance: %s\n", orUnset(res.Governance))
				return nil
			},
		}
	}

	cmd.AddCommand(
		sub("pause", "Reject submissions until resumed", cobra.NoArgs,
			func(c *rpcclient.Client, key *crypto.PrivateKey, _ []string) (*rpc.AdminResult, error) {
				return c.Pause(key)
			}),
		sub("resume", "Accept submissions again", cobra.NoArgs,
			func(c *rpcclient.Client, key *crypto.PrivateKey, _ []string) (*rpc.AdminResult, error) {
				return c.Resume(key)
			}),
		sub("set-pool <address>", "Change the liquidity pool address", cobra.ExactArgs(1),
			func(c *rpcclient.Client, key *crypto.PrivateKey, args []string) (*rpc.AdminResult, error) {
				addr, err := types.ParseAddress(args[0])
				if err != nil {
					return nil, err
				}
				return c.SetLiquidityPool(key, addr)
			}),
		sub("set-governance <address>", "Change the governance address", cobra.ExactArgs(1),
			func(c *rpcclient.Client, key *crypto.PrivateKey, args []string) (*rpc.AdminResult, error) {
				addr, err := types.ParseAddress(args[0])
				if err != nil {
					return nil, err
				}
				return c.SetGovernance(key, addr)
			}),
	)
	return cmd
}
