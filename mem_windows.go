package lovely

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

var (
	modkernel32               = windows.NewLazySystemDLL("kernel32.dll")
	procGetSystemInfo         = modkernel32.NewProc("GetSystemInfo")
	procFlushInstructionCache = modkernel32.NewProc("FlushInstructionCache")
)

// rel32 reach, minus some slack for the code inside the block
const nearRange = 0x7fff0000

type systemInfo struct {
	ProcessorArchitecture     uint16
	Reserved                  uint16
	PageSize                  uint32
	MinimumApplicationAddress uintptr
	MaximumApplicationAddress uintptr
	ActiveProcessorMask       uintptr
	NumberOfProcessors        uint32
	ProcessorType             uint32
	AllocationGranularity     uint32
	ProcessorLevel            uint16
	ProcessorRevision         uint16
}

func getSystemInfo() systemInfo {
	var info systemInfo
	procGetSystemInfo.Call(uintptr(unsafe.Pointer(&info)))
	return info
}

func writeCode(addr uintptr, data []byte) error {
	var old uint32
	if err := windows.VirtualProtect(addr, uintptr(len(data)), windows.PAGE_EXECUTE_READWRITE, &old); err != nil {
		return errors.Wrap(err, "VirtualProtect rwx")
	}
	copy(makeSlice(addr, uintptr(len(data))), data)
	if err := windows.VirtualProtect(addr, uintptr(len(data)), old, &old); err != nil {
		return errors.Wrap(err, "VirtualProtect restore")
	}
	flushCode(addr, len(data))
	return nil
}

func flushCode(addr uintptr, size int) {
	procFlushInstructionCache.Call(uintptr(windows.CurrentProcess()), addr, uintptr(size))
}

// allocNear reserves a block within rel32 reach of near, walking outwards one
// allocation granule at a time. On 386 every address is reachable.
func allocNear(near uintptr, size int) (execMem, error) {
	if unsafe.Sizeof(uintptr(0)) == 4 {
		return allocAt(0, size)
	}
	info := getSystemInfo()
	gran := uintptr(info.AllocationGranularity)
	start := near &^ (gran - 1)

	lo := info.MinimumApplicationAddress
	if start > nearRange && start-nearRange > lo {
		lo = start - nearRange
	}
	hi := info.MaximumApplicationAddress
	if start+nearRange < hi {
		hi = start + nearRange
	}

	for off := gran; ; off += gran {
		tried := false
		if start+off+uintptr(size) < hi {
			tried = true
			if m, err := allocAt(start+off, size); err == nil {
				return m, nil
			}
		}
		if start > off && start-off > lo {
			tried = true
			if m, err := allocAt(start-off, size); err == nil {
				return m, nil
			}
		}
		if !tried {
			break
		}
	}
	return execMem{}, errors.Errorf("no free block within rel32 reach of %#x", near)
}

func allocAt(addr uintptr, size int) (execMem, error) {
	p, err := windows.VirtualAlloc(addr, uintptr(size), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return execMem{}, err
	}
	return execMem{addr: p, size: size}, nil
}

func sealExec(m execMem) error {
	var old uint32
	if err := windows.VirtualProtect(m.addr, uintptr(m.size), windows.PAGE_EXECUTE_READ, &old); err != nil {
		return errors.Wrap(err, "VirtualProtect rx")
	}
	flushCode(m.addr, m.size)
	return nil
}

func freeExec(m execMem) {
	_ = windows.VirtualFree(m.addr, 0, windows.MEM_RELEASE)
}
