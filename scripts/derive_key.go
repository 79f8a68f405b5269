// derive_key.go prints the pubkey, private key and address derived from a
// BIP-39 mnemonic at m/44'/8888'/0'/0/<index>.
// Usage: go run scripts/derive_key.go [index] < mnemonic.txt
//
// With no input on stdin it uses the well-known testnet mnemonic.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Klingon-tech/powmint/config"
	"github.com/Klingon-tech/powmint/internal/keys"
)

func main() {
	var index uint32
	if len(os.Args) > 1 {
		n, err := strconv.ParseUint(os.Args[1], 10, 32)
		if err != nil {
			fmt.Fprintln(os.Stderr, "usage: derive_key [index] < mnemonic")
			os.Exit(1)
		}
		index = uint32(n)
	}

	mnemonic := config.TestnetMnemonic
	if st, err := os.Stdin.Stat(); err == nil && st.Mode()&os.ModeCharDevice == 0 {
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if s := strings.TrimSpace(line); s != "" {
			mnemonic = s
		}
	}

	key, err := keys.FromMnemonic(mnemonic, "", 0, index)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer key.Zero()

	fmt.Printf("pubkey=%s\n", hex.EncodeToString(key.PublicKey()))
	fmt.Printf("privkey=%s\n", hex.EncodeToString(key.Serialize()))
	fmt.Printf("address=%s\n", key.Address())
}
