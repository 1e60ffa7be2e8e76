// Package objsymbols reads exported symbol tables from object files on disk.
package objsymbols

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// ErrUnrecognized means the file is neither ELF, Mach-O nor PE.
var ErrUnrecognized = errors.New("unrecognized object file")

type rawFile interface {
	// Symbols maps names to addresses relative to the image's link base.
	Symbols() (map[string]uintptr, error)
	// Code reads n bytes of section data at a link address.
	Code(addr uintptr, n int) ([]byte, error)
}

// ErrNoSection means no section holds the requested address.
var ErrNoSection = errors.New("address outside any section")

var objType = []func(io.ReaderAt) (rawFile, error){
	openElf,
	openMacho,
	openPE,
}

// ReadSymbols opens the object file name and returns its symbols.
func ReadSymbols(name string) (map[string]uintptr, error) {
	r, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	syms, err := ReadSymbolsFrom(r)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	return syms, nil
}

// ReadCode returns up to n bytes stored at symbol in the object file name,
// and the symbol's link address.
func ReadCode(name, symbol string, n int) ([]byte, uintptr, error) {
	r, err := os.Open(name)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()
	raw, err := open(r)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "open %s", name)
	}
	syms, err := raw.Symbols()
	if err != nil {
		return nil, 0, errors.Wrapf(err, "symbols of %s", name)
	}
	addr, ok := syms[symbol]
	if !ok {
		return nil, 0, errors.Errorf("%s: no symbol %s", name, symbol)
	}
	code, err := raw.Code(addr, n)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "%s!%s", name, symbol)
	}
	return code, addr, nil
}

func open(r io.ReaderAt) (rawFile, error) {
	for _, try := range objType {
		if raw, err := try(r); err == nil {
			return raw, nil
		}
	}
	return nil, ErrUnrecognized
}

// readSection reads up to n bytes at off from a section of the given size,
// stopping at its end.
func readSection(r io.ReaderAt, size, off uint64, n int) ([]byte, error) {
	if off+uint64(n) > size {
		n = int(size - off)
	}
	buf := make([]byte, n)
	if _, err := r.ReadAt(buf, int64(off)); err != nil && err != io.EOF {
		return nil, err
	}
	return buf, nil
}

// ReadSymbolsFrom detects the object format of r and returns its symbols.
func ReadSymbolsFrom(r io.ReaderAt) (map[string]uintptr, error) {
	raw, err := open(r)
	if err != nil {
		return nil, err
	}
	return raw.Symbols()
}
