package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Klingon-tech/powmint/internal/keys"
	"github.com/Klingon-tech/powmint/pkg/crypto"
)

func keysCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage encrypted signing keys",
	}
	cmd.AddCommand(
		keysNewCmd(g),
		keysImportCmd(g),
		keysAddressCmd(g),
		keysListCmd(g),
	)
	return cmd
}

func keysNewCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "new <name>",
		Short: "Generate a mnemonic and store its first key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mnemonic, err := keys.NewMnemonic()
			if err != nil {
				return err
			}
			fmt.Println("Mnemonic (write this down!):")
			fmt.Printf("  %s\n\n", mnemonic)
			return storeKey(g, args[0], mnemonic)
		},
	}
}

func keysImportCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "import <name>",
		Short: "Store the first key of an existing mnemonic read from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(os.Stderr, "Mnemonic: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read mnemonic: %w", err)
			}
			mnemonic := strings.TrimSpace(line)
			if !keys.ValidMnemonic(mnemonic) {
				return keys.ErrInvalidMnemonic
			}
			return storeKey(g, args[0], mnemonic)
		},
	}
}

// storeKey derives m/44'/8888'/0'/0/0 from mnemonic and saves it encrypted
// under a password read twice from the terminal.
func storeKey(g *globals, name, mnemonic string) error {
	key, err := keys.FromMnemonic(mnemonic, "", 0, 0)
	if err != nil {
		return err
	}
	defer key.Zero()

	password, err := readPassword("Enter password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	if string(password) != string(confirm) {
		return fmt.Errorf("passwords do not match")
	}

	path := keys.KeyPath(g.keystoreDir(), name)
	if err := keys.SaveKey(path, key, password, keys.DefaultKDF()); err != nil {
		return err
	}
	fmt.Printf("Key saved: %s\n", path)
	fmt.Printf("Address:   %s\n", key.Address())
	return nil
}

func keysAddressCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "address <name>",
		Short: "Show the address and public key of a stored key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kf, err := keys.ReadKeyfile(keys.KeyPath(g.keystoreDir(), args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("Address:    %s\n", kf.Address)
			fmt.Printf("Public key: %s\n", kf.PublicKey)
			return nil
		},
	}
}

func keysListCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := filepath.Glob(filepath.Join(g.keystoreDir(), "*.key"))
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				fmt.Println("No keys.")
				return nil
			}
			for _, p := range paths {
				kf, err := keys.ReadKeyfile(p)
				if err != nil {
					fmt.Fprintf(os.Stderr, "skip %s: %v\n", p, err)
					continue
				}
				fmt.Printf("%-20s  %s\n", strings.TrimSuffix(filepath.Base(p), ".key"), kf.Address)
			}
			return nil
		},
	}
}

// unlockKey prompts for the password of a stored key and decrypts it.
func unlockKey(g *globals, name string) (*crypto.PrivateKey, error) {
	password, err := readPassword(fmt.Sprintf("Password for %s: ", name))
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return keys.LoadKey(keys.KeyPath(g.keystoreDir(), name), password)
}
