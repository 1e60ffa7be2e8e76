package objsymbols

import (
	"debug/elf"
	"io"
	"os"
)

type elfFile struct {
	elf *elf.File
}

func openElf(r io.ReaderAt) (rawFile, error) {
	f, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	return &elfFile{f}, nil
}

// Symbols prefers the dynamic table, which is what a loader resolves
// against, and falls back to the static one for executables without it.
func (e *elfFile) Symbols() (map[string]uintptr, error) {
	syms, err := e.elf.DynamicSymbols()
	if err == nil {
		if off := getElfOff(syms); len(off) > 0 {
			return off, nil
		}
	}
	syms, err = e.elf.Symbols()
	if err != nil {
		return nil, err
	}
	return getElfOff(syms), nil
}

func (e *elfFile) Code(addr uintptr, n int) ([]byte, error) {
	v := uint64(addr)
	for _, s := range e.elf.Sections {
		if s.Type == elf.SHT_NOBITS || s.Addr == 0 {
			continue
		}
		if v >= s.Addr && v < s.Addr+s.Size {
			return readSection(s, s.Size, v-s.Addr, n)
		}
	}
	return nil, ErrNoSection
}

func getElfOff(stab []elf.Symbol) map[string]uintptr {
	elfOff := make(map[string]uintptr, len(stab))
	for _, k := range stab {
		if k.Section == elf.SHN_UNDEF || k.Name == "" {
			continue
		}
		switch elf.ST_TYPE(k.Info) {
		case elf.STT_FUNC, elf.STT_OBJECT, elf.STT_NOTYPE:
			elfOff[k.Name] = uintptr(k.Value)
		}
	}
	return elfOff
}

// ELFLoadBase returns the lowest page-aligned virtual address of the loadable
// segments in the ELF file name. Symbol values minus this base are offsets
// from where the image is mapped.
func ELFLoadBase(name string) (uintptr, error) {
	r, err := os.Open(name)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	f, err := elf.NewFile(r)
	if err != nil {
		return 0, err
	}
	base := ^uint64(0)
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		v := p.Vaddr
		if p.Align > 1 {
			v &^= p.Align - 1
		}
		if v < base {
			base = v
		}
	}
	if base == ^uint64(0) {
		return 0, nil
	}
	return uintptr(base), nil
}
