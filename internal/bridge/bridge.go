// Package bridge connects the native replacement entry to the runtime
// handle, and the runtime back to the original function.
//
// The native side lives in the c-shared entry package: it exports the
// replacement symbol, which calls Dispatch, and supplies an Invoker able to
// call a C function pointer with the original signature.
package bridge

import (
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/lovely-injector/lovely/internal/engine"
)

// Invoker calls the native function at fn with the luaL_loadbufferx
// signature.
type Invoker func(fn uintptr, state unsafe.Pointer, buf *byte, size int, name, mode *byte) uint32

var (
	// ErrOriginalNotBound means the original was called before the detour
	// was enabled
	ErrOriginalNotBound = errors.New("original function not bound")
	// ErrOriginalBound means a second trampoline was bound
	ErrOriginalBound = errors.New("original function already bound")
)

var (
	current  = new(engine.Cell)
	original atomic.Uintptr
	invoker  atomic.Pointer[Invoker]
)

// SetRuntime stores the handle every intercepted call is forwarded to.
func SetRuntime(h engine.Handle) error {
	return current.Set(h)
}

// Dispatch forwards one intercepted call to the runtime and returns its
// result unchanged. It panics with engine.ErrNotInitialized when no runtime
// is set.
func Dispatch(state unsafe.Pointer, buf *byte, size int, name, mode *byte) uint32 {
	return current.MustGet().ApplyBufferPatches(state, buf, size, name, mode)
}

func bindOriginal(fn uintptr, call Invoker) error {
	if fn == 0 || call == nil {
		return errors.New("null original")
	}
	if !invoker.CompareAndSwap(nil, &call) {
		return ErrOriginalBound
	}
	original.Store(fn)
	return nil
}

// CallOriginal runs the unpatched function through the bound trampoline.
// It has the engine.LoadBufferX shape.
func CallOriginal(state unsafe.Pointer, buf *byte, size int, name, mode *byte) uint32 {
	fn := original.Load()
	call := invoker.Load()
	if fn == 0 || call == nil {
		panic(ErrOriginalNotBound)
	}
	return (*call)(fn, state, buf, size, name, mode)
}

// Native describes the exported replacement entry.
type Native struct {
	// Entry is the address of the exported replacement function.
	Entry uintptr
	// Invoke calls a native function pointer.
	Invoke Invoker
}

// Address returns the detour replacement.
func (n Native) Address() uintptr { return n.Entry }

// Bind stores h as the process runtime.
func (n Native) Bind(h engine.Handle) error { return SetRuntime(h) }

// BindOriginal makes CallOriginal reach trampoline.
func (n Native) BindOriginal(trampoline uintptr) error {
	return bindOriginal(trampoline, n.Invoke)
}

// CallOriginal is the callOriginal given to the runtime.
func (n Native) CallOriginal(state unsafe.Pointer, buf *byte, size int, name, mode *byte) uint32 {
	return CallOriginal(state, buf, size, name, mode)
}
