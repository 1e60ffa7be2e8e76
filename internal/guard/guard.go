// Package guard runs the shim's one-time setup when the host process
// notifies it of attach: opt-out check, crash handler, console, runtime
// handle, target resolution and detour installation.
package guard

import (
	"io"
	"sync"
	"time"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/lovely-injector/lovely/internal/config"
	"github.com/lovely-injector/lovely/internal/engine"
	"github.com/lovely-injector/lovely/internal/flags"
	"github.com/lovely-injector/lovely/internal/log"
	"github.com/lovely-injector/lovely/internal/resolver"
)

// Notification reasons, as delivered to a DLL entry point.
const (
	ProcessDetach uint32 = 0
	ProcessAttach uint32 = 1
	ThreadAttach  uint32 = 2
	ThreadDetach  uint32 = 3
)

// State is where the guard is in its lifecycle. Inert, Active and Failed
// are terminal.
type State int32

const (
	Unattached State = iota
	Inert
	Active
	Failed
)

func (s State) String() string {
	switch s {
	case Unattached:
		return "unattached"
	case Inert:
		return "inert"
	case Active:
		return "active"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// ErrAlreadyAttached means a second process-attach reached the guard.
var ErrAlreadyAttached = errors.New("already attached")

type Console interface {
	Alloc() (io.Writer, error)
	SetTitle(title string) error
}

type CrashHandler interface {
	Configure(logger *log.Logger, crashLog string) error
	Install() error
}

type Resolver interface {
	Resolve(module, symbol string) (resolver.Target, error)
}

// Hook is an installed, not yet enabled detour.
type Hook interface {
	Enable() error
	Trampoline() uintptr
}

type Installer interface {
	Install(target, replacement uintptr) (Hook, error)
}

// InstallFunc adapts a function to Installer.
type InstallFunc func(target, replacement uintptr) (Hook, error)

func (f InstallFunc) Install(target, replacement uintptr) (Hook, error) {
	return f(target, replacement)
}

// Bridge is the replacement side of the detour.
type Bridge interface {
	// Address is the replacement function.
	Address() uintptr
	// Bind stores the runtime handle intercepted calls go to.
	Bind(h engine.Handle) error
	// BindOriginal makes CallOriginal reach the trampoline.
	BindOriginal(trampoline uintptr) error
	CallOriginal(state unsafe.Pointer, buf *byte, size int, name, mode *byte) uint32
}

// Setup loads configuration and opens the log.
type Setup func() (*config.Config, *log.Logger, error)

// EngineFactory creates the runtime handle.
type EngineFactory func(cfg *config.Config, f flags.Flags, callOriginal engine.LoadBufferX, logger *log.Logger) (engine.Handle, error)

// Guard owns the attach sequence. All collaborators must be set.
type Guard struct {
	Args      []string
	Setup     Setup
	Crash     CrashHandler
	Console   Console
	NewEngine EngineFactory
	Resolver  Resolver
	Installer Installer
	Bridge    Bridge

	mu     sync.Mutex
	state  State
	flags  flags.Flags
	target resolver.Target
	logger *log.Logger
}

// Attach handles one loader notification. Anything but process-attach is a
// no-op. An error is fatal: the hook may be half installed.
func (g *Guard) Attach(reason uint32) error {
	if reason != ProcessAttach {
		if reason == ProcessDetach {
			g.detach()
		}
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Unattached {
		return errors.Wrapf(ErrAlreadyAttached, "guard is %s", g.state)
	}

	g.flags = flags.Parse(g.Args)
	if g.flags.DisableMods {
		g.state = Inert
		return nil
	}

	if err := g.activate(); err != nil {
		g.state = Failed
		if g.logger != nil {
			g.logger.Error("attach failed", log.Err(err))
			_ = g.logger.Sync()
		}
		return err
	}
	g.state = Active
	return nil
}

func (g *Guard) activate() error {
	// first, so that anything below that panics is reported
	if err := g.Crash.Install(); err != nil {
		return errors.Wrap(err, "install crash handler")
	}

	cfg, logger, err := g.Setup()
	if err != nil {
		return errors.Wrap(err, "setup")
	}
	g.logger = logger
	if err := g.Crash.Configure(logger, cfg.CrashLog); err != nil {
		logger.Warn("crash log unavailable", log.Err(err))
	}

	if !g.flags.DisableConsole {
		w, err := g.Console.Alloc()
		if err != nil {
			logger.Warn("console unavailable", log.Err(err))
		} else {
			g.logger = logger.AttachConsole(w)
		}
		if err := g.Console.SetTitle(cfg.Title()); err != nil {
			return errors.Wrap(err, "set console title")
		}
	}
	log.SetDefault(g.logger)
	g.logger.Info("attaching", log.String("version", cfg.Version), log.Bool("dump_all", g.flags.DumpAll))

	h, err := g.NewEngine(cfg, g.flags, g.Bridge.CallOriginal, g.logger)
	if err != nil {
		return errors.Wrap(err, "create runtime")
	}
	if err := g.Bridge.Bind(h); err != nil {
		return errors.Wrap(err, "store runtime")
	}

	target, err := g.Resolver.Resolve(cfg.Target.Module, cfg.Target.Symbol)
	if err != nil {
		return errors.Wrap(err, "resolve target")
	}
	g.target = target
	g.logger.Debug("resolved target",
		log.String("module", target.Module),
		log.String("symbol", target.Symbol),
		log.Uintptr("addr", target.Addr))

	hook, err := g.Installer.Install(target.Addr, g.Bridge.Address())
	if err != nil {
		return errors.Wrap(err, "install detour")
	}
	// calls may arrive as soon as the jump is written
	if err := g.Bridge.BindOriginal(hook.Trampoline()); err != nil {
		return errors.Wrap(err, "bind original")
	}
	if err := hook.Enable(); err != nil {
		return errors.Wrap(err, "enable detour")
	}
	g.logger.Info("detour enabled", log.String("symbol", target.Symbol), log.Uintptr("trampoline", hook.Trampoline()))
	return nil
}

func (g *Guard) detach() {
	g.mu.Lock()
	logger := g.logger
	g.mu.Unlock()
	if logger != nil {
		_ = logger.Sync()
	}
}

// State returns the current lifecycle state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Flags returns the parsed launch flags. Zero before attach.
func (g *Guard) Flags() flags.Flags {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.flags
}

// Target returns the resolved target once attach got that far.
func (g *Guard) Target() resolver.Target {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.target
}

// FileSetup returns a Setup that reads the config at path, falling back to
// defaults when it is missing, prunes stale logs and opens a new log file.
func FileSetup(path string) Setup {
	return func() (*config.Config, *log.Logger, error) {
		cfg, err := config.LoadOrDefault(path)
		if err != nil {
			return nil, nil, err
		}
		level, err := log.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Log.KeepDays > 0 {
			_, _ = log.Prune(cfg.Log.Dir, time.Duration(cfg.Log.KeepDays)*24*time.Hour, time.Now())
		}
		logger, err := log.New(cfg.Log.Dir, level)
		if err != nil {
			return nil, nil, err
		}
		return cfg, logger, nil
	}
}

// LovelyEngine is the EngineFactory for the default runtime.
func LovelyEngine(cfg *config.Config, f flags.Flags, callOriginal engine.LoadBufferX, logger *log.Logger) (engine.Handle, error) {
	rt, err := engine.New(callOriginal, f.DumpAll,
		engine.WithModDir(cfg.Mods.Dir),
		engine.WithDumpDir(cfg.Mods.DumpDir),
		engine.WithDumpWorkers(cfg.Mods.DumpWorkers),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	return rt, nil
}
