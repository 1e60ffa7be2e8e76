package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lovely-injector/lovely"
	"github.com/lovely-injector/lovely/internal/objsymbols"
)

// bytes read from a file for planning
const planWindow = 32

func newPlanCmd() *cobra.Command {
	var (
		file   string
		symbol string
		mode   int
		at     uint64
		to     uint64
	)
	cmd := &cobra.Command{
		Use:   "plan [hex bytes]",
		Short: "Show which instructions a detour steals and how they relocate.",
		Long: "Decode a function prologue, given as hex bytes or read from --file at --symbol,\n" +
			"and print the instructions covered by each patch size.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var code []byte
			switch {
			case file != "" && len(args) == 0:
				if symbol == "" {
					return errors.New("--file needs --symbol")
				}
				c, addr, err := objsymbols.ReadCode(file, symbol, planWindow)
				if err != nil {
					return err
				}
				code = c
				if !cmd.Flags().Changed("at") {
					at = uint64(addr)
				}
			case file == "" && len(args) == 1:
				c, err := hex.DecodeString(strings.Join(strings.Fields(args[0]), ""))
				if err != nil {
					return errors.Wrap(err, "parse hex")
				}
				code = c
			default:
				return errors.New("give either hex bytes or --file")
			}
			return printPlans(cmd, code, uintptr(at), uintptr(to), mode)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "object file to read the prologue from")
	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol in --file")
	cmd.Flags().IntVar(&mode, "mode", 64, "decode mode, 32 or 64")
	cmd.Flags().Uint64Var(&at, "at", 0x140001000, "address of the prologue")
	cmd.Flags().Uint64Var(&to, "to", 0x140100000, "address of the trampoline")
	return cmd
}

func printPlans(cmd *cobra.Command, code []byte, at, to uintptr, mode int) error {
	out := cmd.OutOrStdout()
	for _, n := range lovely.PatchLengths {
		if mode == 32 && n > 5 {
			continue
		}
		fmt.Fprintf(out, "patch %d bytes at %#x:\n", n, at)
		p, err := lovely.PlanPatch(code, at, to, n, mode)
		if err != nil {
			fmt.Fprintf(out, "  cannot patch: %v\n", err)
			continue
		}
		for _, s := range p.Steps {
			fmt.Fprintf(out, "  +%-3d %-30s %-9s %s\n", s.Offset, hex.EncodeToString(s.Raw), s.Fixup, s.Text)
		}
		if p.Err != nil {
			fmt.Fprintf(out, "  steals %d bytes, not relocatable: %v\n", p.Stolen, p.Err)
			continue
		}
		fmt.Fprintf(out, "  steals %d bytes, trampoline body %s\n", p.Stolen, hex.EncodeToString(p.Relocated))
	}
	return nil
}
