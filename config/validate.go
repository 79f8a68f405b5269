package config

import (
	"fmt"

	"github.com/Klingon-tech/powmint/pkg/types"
)

// MaxMiningThreads caps the embedded miner's goroutines.
const MaxMiningThreads = 256

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p.port must be in range [0, 65535]")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.P2P.MaxPeers < 0 {
		return fmt.Errorf("p2p.maxpeers must not be negative")
	}

	if cfg.Mining.Threads < 0 || cfg.Mining.Threads > MaxMiningThreads {
		return fmt.Errorf("mining.threads must be in range [0, %d]", MaxMiningThreads)
	}
	if cfg.Mining.Enabled {
		if cfg.Mining.Coinbase == "" {
			return fmt.Errorf("mining.enabled requires mining.coinbase")
		}
		addr, err := types.ParseAddress(cfg.Mining.Coinbase)
		if err != nil {
			return fmt.Errorf("mining.coinbase: %w", err)
		}
		if addr.IsZero() {
			return fmt.Errorf("mining.coinbase must not be the zero address")
		}
	}

	switch cfg.Log.Level {
	case "", "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}

	return nil
}
