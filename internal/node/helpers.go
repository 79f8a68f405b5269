package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/powmint/pkg/types"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// resolveCoinbase parses the address credited with locally mined rewards.
func resolveCoinbase(coinbaseStr string) (types.Address, error) {
	if coinbaseStr == "" {
		return types.Address{}, fmt.Errorf("mining requires a coinbase address")
	}
	addr, err := types.ParseAddress(coinbaseStr)
	if err != nil {
		return types.Address{}, fmt.Errorf("invalid coinbase address: %w", err)
	}
	if addr.IsZero() {
		return types.Address{}, fmt.Errorf("coinbase must not be the zero address")
	}
	return addr, nil
}
