package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lovely-injector/lovely/internal/config"
	"github.com/lovely-injector/lovely/internal/resolver"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve [module] [symbol]",
		Short: "Resolve an exported function in this process, loading the module where possible.",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			def := config.DefaultConfig().Target
			module, symbol := def.Module, def.Symbol
			if len(args) > 0 {
				module = args[0]
			}
			if len(args) > 1 {
				symbol = args[1]
			}
			t, err := resolver.System{}.Resolve(module, symbol)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s!%s = %#x\n", t.Module, t.Symbol, t.Addr)
			return nil
		},
	}
}
