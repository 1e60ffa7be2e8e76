//go:build !windows && !linux

package resolver

func resolve(module, symbol string) (uintptr, error) {
	return 0, ErrUnsupported
}
