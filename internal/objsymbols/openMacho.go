package objsymbols

import (
	"debug/macho"
	"io"
)

type machoFile struct {
	macho *macho.File
}

func openMacho(r io.ReaderAt) (rawFile, error) {
	f, err := macho.NewFile(r)
	if err != nil {
		return nil, err
	}
	return &machoFile{f}, nil
}

func (f *machoFile) Symbols() (map[string]uintptr, error) {
	if f.macho.Symtab == nil {
		return map[string]uintptr{}, nil
	}
	off := make(map[string]uintptr, len(f.macho.Symtab.Syms))
	for _, s := range f.macho.Symtab.Syms {
		if s.Sect == 0 {
			continue
		}
		off[s.Name] = uintptr(s.Value)
	}
	return off, nil
}

func (f *machoFile) Code(addr uintptr, n int) ([]byte, error) {
	v := uint64(addr)
	for _, s := range f.macho.Sections {
		if v >= s.Addr && v < s.Addr+s.Size {
			return readSection(s, s.Size, v-s.Addr, n)
		}
	}
	return nil, ErrNoSection
}
