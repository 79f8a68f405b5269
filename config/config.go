// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Issuance rules: Defined in genesis, immutable, must match across all nodes
//   - Node settings: Runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
// These settings can vary between nodes without changing issuance.
type Config struct {
	// Core
	Network     NetworkType `conf:"network"`
	DataDir     string      `conf:"datadir"`
	GenesisFile string      `conf:"genesis"` // Custom genesis JSON (empty = built-in)

	// P2P networking
	P2P P2PConfig

	// RPC server
	RPC RPCConfig

	// Embedded miner (operational, not issuance rules)
	Mining MiningConfig

	// Logging
	Log LogConfig
}

// P2PConfig holds peer-to-peer network settings.
type P2PConfig struct {
	Enabled    bool     `conf:"p2p.enabled"`
	ListenAddr string   `conf:"p2p.listen"`
	Port       int      `conf:"p2p.port"`
	Seeds      []string `conf:"p2p.seeds"`
	MaxPeers   int      `conf:"p2p.maxpeers"`
	NoDiscover bool     `conf:"p2p.nodiscover"`
	DHTServer  bool     `conf:"p2p.dhtserver"` // Run DHT in server mode (for seeds)
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// MiningConfig holds embedded miner settings.
type MiningConfig struct {
	Enabled  bool   `conf:"mining.enabled"`
	Coinbase string `conf:"mining.coinbase"` // Submitter address credited with miner rewards
	Threads  int    `conf:"mining.threads"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.powmint
//	macOS:   ~/Library/Application Support/Powmint
//	Windows: %APPDATA%\Powmint
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".powmint"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Powmint")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Powmint")
		}
		return filepath.Join(home, "AppData", "Roaming", "Powmint")
	default:
		return filepath.Join(home, ".powmint")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DBDir returns the issuance database directory.
func (c *Config) DBDir() string {
	return filepath.Join(c.ChainDataDir(), "db")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.ChainDataDir(), "keystore")
}

// NodeKeyFile returns the path of the persistent P2P identity.
func (c *Config) NodeKeyFile() string {
	return filepath.Join(c.ChainDataDir(), "node.key")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "powmint.conf")
}

// Genesis returns the genesis for this node: the custom file when one is
// configured, the built-in network genesis otherwise.
func (c *Config) Genesis() (*Genesis, error) {
	if c.GenesisFile != "" {
		return LoadGenesis(c.GenesisFile)
	}
	g := GenesisFor(c.Network)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}
