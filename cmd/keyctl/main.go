package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "keyctl",
		Short: "keygate administration tool",
		Long: `keyctl manages referral tokens, reseller balances and license keys
directly against the configured store, and checks keys against a running
gRPC verification server.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newTokensCommand(),
		newResellersCommand(),
		newKeysCommand(),
		newVerifyCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
