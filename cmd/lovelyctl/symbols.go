package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lovely-injector/lovely/internal/objsymbols"
)

func newSymbolsCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "symbols <file>",
		Short: "List the symbols of an ELF, Mach-O or PE file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			syms, err := objsymbols.ReadSymbols(args[0])
			if err != nil {
				return err
			}
			names := make([]string, 0, len(syms))
			for name := range syms {
				if filter == "" || strings.Contains(name, filter) {
					names = append(names, name)
				}
			}
			sort.Strings(names)
			out := cmd.OutOrStdout()
			for _, name := range names {
				fmt.Fprintf(out, "%#010x %s\n", syms[name], name)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "only names containing this text")
	return cmd
}
