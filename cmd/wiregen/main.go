// Command wiregen writes MarshalWire/UnmarshalWire methods for the structs
// in a Go file that carry a //wire:generate comment. It is meant to run
// from go:generate:
//
//	//go:generate go run gamewire/cmd/wiregen --in game.go --out message_wire.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gamewire/internal/wiregen"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "wiregen: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		in         string
		out        string
		wireImport string
	)
	cmd := &cobra.Command{
		Use:           "wiregen",
		Short:         "Generate wire codecs for marked structs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in == "" {
				in = os.Getenv("GOFILE")
			}
			if in == "" {
				return fmt.Errorf("no input file, pass --in or run from go:generate")
			}
			if out == "" {
				out = strings.TrimSuffix(in, ".go") + "_wire.go"
			}

			src, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			code, err := wiregen.Generate(in, src, wireImport)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, code, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "Go source file to scan (default $GOFILE)")
	cmd.Flags().StringVar(&out, "out", "", "output file (default <in>_wire.go)")
	cmd.Flags().StringVar(&wireImport, "wire", wiregen.DefaultWireImport, "import path of the wire runtime")
	return cmd
}
