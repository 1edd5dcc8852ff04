// Command gamewire runs a game server on the gamewire stack and inspects
// its wire codecs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gamewire: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:   "gamewire",
		Short: "Game server on typed binary codecs",
		Long: `gamewire serves game clients over framed TCP. Message bodies use
compiled binary codecs by default, with JSON and CBOR available per frame.

The config file is taken from --config or $GAMEWIRE_CONFIG.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file")

	root.AddCommand(
		serveCmd(&configPath),
		codecsCmd(&configPath),
		versionCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gamewire %s (%s)\n", version, commit)
		},
	}
}
