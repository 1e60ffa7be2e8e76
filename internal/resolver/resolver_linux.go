package resolver

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/lovely-injector/lovely/internal/objsymbols"
)

const mapsFile = "/proc/self/maps"

// mapping is where an object file is mapped in the process.
type mapping struct {
	path string
	// lowest address mapped from file offset 0
	base uintptr
}

// resolve only finds modules that are already mapped; nothing is loaded.
func resolve(module, symbol string) (uintptr, error) {
	f, err := os.Open(mapsFile)
	if err != nil {
		return 0, errors.Wrap(err, "read memory map")
	}
	m, err := findMapping(f, module)
	f.Close()
	if err != nil {
		return 0, err
	}

	syms, err := objsymbols.ReadSymbols(m.path)
	if err != nil {
		return 0, errors.Wrapf(ErrModuleNotFound, "%s: %v", m.path, err)
	}
	value, ok := syms[symbol]
	if !ok {
		return 0, errors.Wrapf(ErrSymbolNotFound, "%s!%s", module, symbol)
	}
	linkBase, err := objsymbols.ELFLoadBase(m.path)
	if err != nil {
		return 0, errors.Wrapf(ErrModuleNotFound, "%s: %v", m.path, err)
	}
	return m.base - linkBase + value, nil
}

// findMapping scans a /proc/<pid>/maps listing for module, matched either by
// full path or by base name.
func findMapping(r io.Reader, module string) (mapping, error) {
	var found mapping
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 6 {
			continue
		}
		path := strings.Join(fields[5:], " ")
		if !strings.HasPrefix(path, "/") {
			continue
		}
		if path != module && filepath.Base(path) != module {
			continue
		}
		if found.path != "" && found.path != path {
			continue
		}
		if strings.Trim(fields[2], "0") != "" {
			continue
		}
		start, _, ok := strings.Cut(fields[0], "-")
		if !ok {
			continue
		}
		addr, err := strconv.ParseUint(start, 16, 64)
		if err != nil {
			continue
		}
		if found.path == "" || uintptr(addr) < found.base {
			found = mapping{path: path, base: uintptr(addr)}
		}
	}
	if err := sc.Err(); err != nil {
		return mapping{}, errors.Wrap(err, "scan memory map")
	}
	if found.path == "" {
		return mapping{}, errors.Wrapf(ErrModuleNotFound, "%s is not mapped", module)
	}
	return found, nil
}
