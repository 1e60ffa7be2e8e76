// Package crash turns a panic on a native entry point into one visible
// report before the process goes down.
package crash

import (
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/lovely-injector/lovely/internal/log"
)

const messagePrefix = "lovely-injector has crashed: \n"

// Notifier shows a blocking crash message to the user.
type Notifier interface {
	Notify(title, message string)
}

// Reporter logs and displays the first panic that reaches Recover.
type Reporter struct {
	Title    string
	Notifier Notifier

	mu     sync.Mutex
	logger *log.Logger
	output *os.File
	fired  atomic.Bool
}

var installed atomic.Pointer[Reporter]

// New returns a reporter that shows a modal titled title.
func New(title string) *Reporter {
	return &Reporter{Title: title, Notifier: Modal{}}
}

// Format builds the message shown for panic value v.
func Format(v any) string {
	return messagePrefix + fmt.Sprint(v)
}

// displayable replaces NUL bytes, which native string APIs reject.
func displayable(s string) string {
	return strings.ReplaceAll(s, "\x00", `\0`)
}

// Install makes r the process-wide reporter used by Recover.
func (r *Reporter) Install() error {
	if r.Notifier == nil {
		return errors.New("crash reporter without notifier")
	}
	installed.Store(r)
	return nil
}

// Configure sets the logger crashes are written to, and when crashLog is not
// empty sends fatal runtime errors that bypass Recover to that file.
func (r *Reporter) Configure(logger *log.Logger, crashLog string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
	if crashLog == "" {
		return nil
	}
	f, err := os.OpenFile(crashLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "open crash log")
	}
	if err := debug.SetCrashOutput(f, debug.CrashOptions{}); err != nil {
		f.Close()
		return errors.Wrap(err, "set crash output")
	}
	if r.output != nil {
		r.output.Close()
	}
	r.output = f
	return nil
}

// Installed returns the process-wide reporter, or nil.
func Installed() *Reporter {
	return installed.Load()
}

// Recover is deferred at native entry points. Without an installed reporter
// the panic passes through untouched; otherwise it is reported once and
// raised again.
func Recover() {
	r := installed.Load()
	if r == nil {
		return
	}
	if v := recover(); v != nil {
		r.report(v)
		panic(v)
	}
}

// Recover reports a panic through r regardless of what is installed.
func (r *Reporter) Recover() {
	if v := recover(); v != nil {
		r.report(v)
		panic(v)
	}
}

// report runs at most once per reporter.
func (r *Reporter) report(v any) {
	if !r.fired.CompareAndSwap(false, true) {
		return
	}
	msg := Format(v)

	r.mu.Lock()
	logger := r.logger
	r.mu.Unlock()
	if logger != nil {
		logger.Error(msg, log.Stack("stack"))
		_ = logger.Sync()
	}
	r.Notifier.Notify(r.Title, msg)
}

// Fired reports whether a crash was already reported.
func (r *Reporter) Fired() bool {
	return r.fired.Load()
}
