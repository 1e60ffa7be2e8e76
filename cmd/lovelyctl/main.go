// Command lovelyctl inspects hook targets offline: exported symbols of a
// module, the patch plan for a function prologue, and the shim's effective
// configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "lovelyctl",
		Short:             "Inspect lovely hook targets.",
		SilenceUsage:      true,
		DisableAutoGenTag: true,
	}
	root.AddCommand(newSymbolsCmd(), newPlanCmd(), newResolveCmd(), newConfigCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "lovelyctl", version)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
