// Command lovely is the injected shim, built as a shared library:
//
//	go build -buildmode=c-shared -o version.dll ./cmd/lovely
//
// Loading it into a host process intercepts luaL_loadbufferx and routes
// every chunk through the mod runtime. Pass --disable-mods (-d) to the host
// to start it untouched.
package main

import (
	"os"

	"github.com/pkg/errors"

	"github.com/lovely-injector/lovely"
	"github.com/lovely-injector/lovely/internal/config"
	"github.com/lovely-injector/lovely/internal/console"
	"github.com/lovely-injector/lovely/internal/crash"
	"github.com/lovely-injector/lovely/internal/guard"
	"github.com/lovely-injector/lovely/internal/log"
	"github.com/lovely-injector/lovely/internal/resolver"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

var reporter = crash.New("Lovely " + version)

var shim = &guard.Guard{
	Args: os.Args,
	Setup: func() (*config.Config, *log.Logger, error) {
		cfg, logger, err := guard.FileSetup(config.Path())()
		if err != nil {
			return nil, nil, err
		}
		cfg.Version = version
		reporter.Title = cfg.Title()
		return cfg, logger, nil
	},
	Crash:     reporter,
	Console:   console.New(),
	NewEngine: guard.LovelyEngine,
	Resolver:  resolver.System{},
	Installer: guard.InstallFunc(func(target, replacement uintptr) (guard.Hook, error) {
		d, err := lovely.Install(target, replacement)
		if err != nil {
			return nil, err
		}
		return d, nil
	}),
	Bridge: native,
}

// attach runs the guard and turns a fatal error or a panic into a reported
// crash.
func attach(reason uint32) {
	defer reporter.Recover()
	if err := shim.Attach(reason); err != nil {
		panic(errors.Wrap(err, "attach"))
	}
}

func main() {}
