package objsymbols

import (
	"io"

	"github.com/Binject/debug/pe"
)

type peFile struct {
	pe *pe.File
}

func openPE(r io.ReaderAt) (rawFile, error) {
	f, err := pe.NewFile(r)
	if err != nil {
		return nil, err
	}
	return &peFile{f}, nil
}

// Symbols returns the named entries of the export directory as name to RVA.
func (f *peFile) Symbols() (map[string]uintptr, error) {
	exports, err := f.pe.Exports()
	if err != nil {
		return nil, err
	}
	off := make(map[string]uintptr, len(exports))
	for _, e := range exports {
		if e.Name == "" {
			continue
		}
		off[e.Name] = uintptr(e.VirtualAddress)
	}
	return off, nil
}

// Code reads at an RVA.
func (f *peFile) Code(addr uintptr, n int) ([]byte, error) {
	v := uint64(addr)
	for _, s := range f.pe.Sections {
		start := uint64(s.VirtualAddress)
		if v >= start && v < start+uint64(s.Size) {
			return readSection(s, uint64(s.Size), v-start, n)
		}
	}
	return nil, ErrNoSection
}
