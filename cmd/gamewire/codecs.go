package main

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gamewire/config"
	"gamewire/message"
	"gamewire/wire"
)

func codecsCmd(configPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "codecs",
		Short: "Compile every catalog message and list the codecs",
		Long: `Compiles a codec for every message in the game catalog, the same way
serve does at startup, and prints the strategy chosen for each type.
A type the wire format cannot carry makes the command fail.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			reg := newWireRegistry(cfg.Wire, nil)
			catalog := message.GameCatalog()
			if err := reg.Preload(catalog.Descriptors()...); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				type row struct {
					Type     string `json:"type"`
					Shape    string `json:"shape"`
					Strategy string `json:"strategy"`
				}
				var rows []row
				for _, e := range reg.Entries() {
					rows = append(rows, row{e.Descriptor.String(), e.Shape.String(), e.Strategy})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "OPCODE\tMESSAGE")
			for _, op := range catalog.Opcodes() {
				fmt.Fprintf(tw, "%s\t%s\n", op, catalog.Name(op))
			}
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "TYPE\tSHAPE\tSTRATEGY")
			for _, e := range reg.Entries() {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Descriptor, e.Shape, e.Strategy)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print codecs as JSON")
	return cmd
}

func byteOrder(name string) wire.ByteOrder {
	if name == "little" {
		return binary.LittleEndian
	}
	return binary.BigEndian
}
