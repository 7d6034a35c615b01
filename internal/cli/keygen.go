package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alicommit-malp/rtun/internal/config"
	"github.com/alicommit-malp/rtun/internal/reversessh"
)

var keygenOutput string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 key pair for --key-path",
	RunE:  runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenOutput, "out", "", "private key output path (default: config dir/id_ed25519)")
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	priv, pub, err := reversessh.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	out := keygenOutput
	if out == "" {
		if err := os.MkdirAll(config.Dir(), 0700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
		out = config.Dir() + "/id_ed25519"
	}

	if err := os.WriteFile(out, priv, 0600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := os.WriteFile(out+".pub", pub, 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	fmt.Printf("wrote %s and %s.pub\n", out, out)
	fmt.Printf("public key: %s", pub)
	return nil
}
