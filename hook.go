// Package lovely installs inline detours on native functions.
//
// A detour rewrites the entry of a target function so that control transfers
// to a replacement, while the instructions it overwrote are relocated into a
// trampoline that jumps back into the target. Calling the trampoline runs the
// target's original behavior.
//
// Installation is two-phase: Install prepares the trampoline and the patch
// without touching the target, Enable writes the jump.
package lovely

import (
	"sync"

	"github.com/pkg/errors"
)

var (
	// detours installed, keyed by target address
	detours = make(map[uintptr]*Detour)
	// protect the detours map and every code write
	lock sync.Mutex
)

var (
	// ErrDoubleHook means the target already carries a detour
	ErrDoubleHook = errors.New("double hook")
	// ErrHookNotFound means no detour is installed on the address
	ErrHookNotFound = errors.New("hook not found")
	// ErrAlreadyEnabled means Enable was called on an enabled detour
	ErrAlreadyEnabled = errors.New("detour already enabled")
	// ErrNotEnabled means Disable was called on a disabled detour
	ErrNotEnabled = errors.New("detour not enabled")
	// ErrRelativeAddr means a stolen instruction cannot be moved
	ErrRelativeAddr = errors.New("relative address in instruction")
	// ErrTooShort means the target returns before the patch fits
	ErrTooShort = errors.New("function too short to patch")
	// ErrNullAddress means a zero target or replacement address
	ErrNullAddress = errors.New("null address")
	// ErrUnsupported means the platform cannot host detours
	ErrUnsupported = errors.New("detours unsupported on this platform")
)

// Install prepares a detour from target to replacement. The target is left
// untouched until Enable is called. Both addresses must point to functions
// with the exact same native signature and calling convention.
func Install(target, replacement uintptr) (*Detour, error) {
	if target == 0 || replacement == 0 {
		return nil, ErrNullAddress
	}
	lock.Lock()
	defer lock.Unlock()
	if _, ok := detours[target]; ok {
		return nil, errors.Wrapf(ErrDoubleHook, "target %#x", target)
	}
	d, err := prepare(target, replacement)
	if err != nil {
		return nil, errors.Wrapf(err, "install detour at %#x", target)
	}
	detours[target] = d
	return d, nil
}

// Lookup returns the detour installed on target.
func Lookup(target uintptr) (*Detour, error) {
	lock.Lock()
	defer lock.Unlock()
	d, ok := detours[target]
	if !ok {
		return nil, ErrHookNotFound
	}
	return d, nil
}

// Uninstall restores the target if needed, releases the trampoline and forgets
// the detour. The trampoline must not be running on any thread.
func Uninstall(target uintptr) error {
	lock.Lock()
	defer lock.Unlock()
	d, ok := detours[target]
	if !ok {
		return ErrHookNotFound
	}
	if d.enabled {
		if err := writeCode(d.target, d.original); err != nil {
			return errors.Wrap(err, "restore target")
		}
		d.enabled = false
	}
	d.release()
	delete(detours, target)
	return nil
}
