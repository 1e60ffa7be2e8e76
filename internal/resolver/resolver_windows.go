package resolver

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// resolve loads module if it is not mapped yet. The module stays loaded for
// the life of the process.
func resolve(module, symbol string) (uintptr, error) {
	h, err := windows.LoadLibrary(module)
	if err != nil {
		return 0, errors.Wrapf(ErrModuleNotFound, "%s: %v", module, err)
	}
	addr, err := windows.GetProcAddress(h, symbol)
	if err != nil {
		return 0, errors.Wrapf(ErrSymbolNotFound, "%s!%s: %v", module, symbol, err)
	}
	return addr, nil
}
