// powmint-cli is a command-line client for interacting with a powmintd node.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Klingon-tech/powmint/config"
	"github.com/Klingon-tech/powmint/internal/rpcclient"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	rpcURL  string
	dataDir string
	network string
}

// nodeConfig returns the default config of the selected network rooted at
// the selected data directory.
func (g *globals) nodeConfig() *config.Config {
	network := config.Mainnet
	if strings.ToLower(g.network) == string(config.Testnet) {
		network = config.Testnet
	}
	cfg := config.Default(network)
	if g.dataDir != "" {
		cfg.DataDir = g.dataDir
	}
	return cfg
}

// client returns an RPC client for --rpc, or for the network's default
// local endpoint when --rpc is unset.
func (g *globals) client() *rpcclient.Client {
	url := g.rpcURL
	if url == "" {
		cfg := g.nodeConfig()
		url = "http://" + net.JoinHostPort(cfg.RPC.Addr, strconv.Itoa(cfg.RPC.Port))
	}
	return rpcclient.New(url)
}

func (g *globals) keystoreDir() string {
	return g.nodeConfig().KeystoreDir()
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "powmint-cli",
		Short:         "Command-line client for a powmintd node",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.rpcURL, "rpc", "", "RPC endpoint (default: local node of --network)")
	rootCmd.PersistentFlags().StringVar(&g.dataDir, "datadir", config.DefaultDataDir(), "Data directory")
	rootCmd.PersistentFlags().StringVar(&g.network, "network", string(config.Mainnet), "mainnet or testnet")

	rootCmd.AddCommand(
		statusCmd(g),
		targetCmd(g),
		rewardCmd(g),
		eventsCmd(g),
		balanceCmd(g),
		supplyCmd(g),
		epochCmd(g),
		peersCmd(g),
		submitCmd(g),
		mineCmd(g),
		keysCmd(g),
		adminCmd(g),
	)

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// formatAmount renders base units as a decimal coin amount.
func formatAmount(units uint64) string {
	whole := units / config.Coin
	frac := units % config.Coin
	return fmt.Sprintf("%d.%0*d", whole, config.Decimals, frac)
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}
