//go:build unix

package lovely

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

var pageSize = uintptr(unix.Getpagesize())

// calcBoundaries returns the page-aligned area covering size bytes at addr.
func calcBoundaries(addr uintptr, size int) (uintptr, uintptr) {
	start := addr &^ (pageSize - 1)
	return start, addr + uintptr(size) - start
}

func protectPages(addr uintptr, size int, prot int) error {
	start, length := calcBoundaries(addr, size)
	return unix.Mprotect(makeSlice(start, length), prot)
}

func writeCode(addr uintptr, data []byte) error {
	if err := protectPages(addr, len(data), unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC); err != nil {
		return errors.Wrap(err, "mprotect rwx")
	}
	copy(makeSlice(addr, uintptr(len(data))), data)
	if err := protectPages(addr, len(data), unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return errors.Wrap(err, "mprotect rx")
	}
	return nil
}

// allocNear maps fresh pages. Anonymous mappings take no placement hint, so
// the result may be out of rel32 reach; callers check.
func allocNear(_ uintptr, size int) (execMem, error) {
	length := (uintptr(size) + pageSize - 1) &^ (pageSize - 1)
	b, err := unix.Mmap(-1, 0, int(length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return execMem{}, errors.Wrap(err, "mmap")
	}
	return execMem{addr: uintptr(unsafe.Pointer(&b[0])), size: len(b), mapping: b}, nil
}

func sealExec(m execMem) error {
	return unix.Mprotect(m.mapping, unix.PROT_READ|unix.PROT_EXEC)
}

func freeExec(m execMem) {
	_ = unix.Munmap(m.mapping)
}
