package console

import (
	"io"
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

var (
	modkernel32          = windows.NewLazySystemDLL("kernel32.dll")
	procAllocConsole     = modkernel32.NewProc("AllocConsole")
	procSetConsoleTitleW = modkernel32.NewProc("SetConsoleTitleW")
)

// alloc creates a console for the process. A process that already has one
// keeps it.
func alloc() (io.Writer, error) {
	// fails with ERROR_ACCESS_DENIED when a console is already attached
	procAllocConsole.Call()
	f, err := os.OpenFile("CONOUT$", os.O_WRONLY, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open console output")
	}
	return f, nil
}

func setTitle(_ io.Writer, title string) error {
	p, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return err
	}
	if err := procSetConsoleTitleW.Find(); err != nil {
		return err
	}
	r, _, e := procSetConsoleTitleW.Call(uintptr(unsafe.Pointer(p)))
	if r == 0 {
		return errors.Wrap(e, "SetConsoleTitleW")
	}
	return nil
}
