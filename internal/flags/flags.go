// Package flags recognises the shim's switches among the host process's
// launch arguments. Everything else on the command line belongs to the host
// and is ignored.
package flags

import (
	"io"

	"github.com/spf13/pflag"
)

const (
	DisableMods      = "disable-mods"
	DisableModsShort = "d"
	DisableConsole   = "disable-console"
	DumpAll          = "dump-all"
)

// Flags are the launch switches.
type Flags struct {
	DisableMods    bool
	DisableConsole bool
	DumpAll        bool
}

// Parse reads args, the full argument vector including the program name.
// A switch is set when it appears as an exact token, or in pflag's
// --name=value form. The short -d only counts on its own: hosts pass
// single-dash words such as -dx11 that pflag would read as a bundle.
func Parse(args []string) Flags {
	f := scan(args)
	if p, ok := parse(args); ok {
		f.DisableMods = f.DisableMods || p.DisableMods
		f.DisableConsole = f.DisableConsole || p.DisableConsole
		f.DumpAll = f.DumpAll || p.DumpAll
	}
	return f
}

func parse(args []string) (Flags, bool) {
	var f Flags
	if len(args) < 2 {
		return f, true
	}
	fs := pflag.NewFlagSet("lovely", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.BoolVar(&f.DisableMods, DisableMods, false, "start the host without mods")
	fs.BoolVar(&f.DisableConsole, DisableConsole, false, "do not open a log console")
	fs.BoolVar(&f.DumpAll, DumpAll, false, "write every loaded chunk to the dump directory")
	if err := fs.Parse(args[1:]); err != nil {
		return Flags{}, false
	}
	return f, true
}

func scan(args []string) Flags {
	var f Flags
	for _, a := range args {
		switch a {
		case "--" + DisableMods, "-" + DisableModsShort:
			f.DisableMods = true
		case "--" + DisableConsole:
			f.DisableConsole = true
		case "--" + DumpAll:
			f.DumpAll = true
		}
	}
	return f
}
