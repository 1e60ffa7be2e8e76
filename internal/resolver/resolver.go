// Package resolver finds the runtime address of an exported native function.
package resolver

import (
	"github.com/pkg/errors"
)

var (
	// ErrModuleNotFound means the module could not be loaded or found
	ErrModuleNotFound = errors.New("module not found")
	// ErrSymbolNotFound means the module does not export the symbol
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrUnsupported means runtime resolution is not implemented here
	ErrUnsupported = errors.New("symbol resolution unsupported on this platform")
)

// Target is a resolved exported function. Addr is never zero.
type Target struct {
	Module string
	Symbol string
	Addr   uintptr
}

// System resolves against the running process.
type System struct{}

// Resolve returns the address of symbol in module, loading the module first
// where the platform allows it.
func (System) Resolve(module, symbol string) (Target, error) {
	return Resolve(module, symbol)
}

// Resolve returns the address of symbol in module.
func Resolve(module, symbol string) (Target, error) {
	addr, err := resolve(module, symbol)
	if err != nil {
		return Target{}, err
	}
	if addr == 0 {
		return Target{}, errors.Wrapf(ErrSymbolNotFound, "%s!%s resolved to null", module, symbol)
	}
	return Target{Module: module, Symbol: symbol, Addr: addr}, nil
}
