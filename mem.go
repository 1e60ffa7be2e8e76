package lovely

import (
	"unsafe"

	"github.com/pkg/errors"
)

// execMem is a block of memory that holds generated code.
type execMem struct {
	addr uintptr
	size int
	// backing mapping on Unix, needed to unmap and reprotect
	mapping []byte
}

// fill copies code into freshly allocated memory and makes it executable.
func (m execMem) fill(code []byte) error {
	if len(code) > m.size {
		return errors.Errorf("code of %d bytes exceeds block of %d", len(code), m.size)
	}
	copy(makeSlice(m.addr, uintptr(len(code))), code)
	return sealExec(m)
}

func (m execMem) free() {
	if m.addr != 0 {
		freeExec(m)
	}
}

func makeSlice(addr, size uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}
