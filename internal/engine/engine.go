// Package engine defines the patch runtime contract the interception bridge
// forwards to, and holds the process-wide runtime handle.
package engine

import (
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
)

// LoadBufferX has the shape of the intercepted
// luaL_loadbufferx(lua_State*, const char*, ptrdiff_t, const char*, const char*).
type LoadBufferX func(state unsafe.Pointer, buf *byte, size int, name, mode *byte) uint32

// Handle receives every intercepted call. Its result is returned to the host
// unchanged.
type Handle interface {
	ApplyBufferPatches(state unsafe.Pointer, buf *byte, size int, name, mode *byte) uint32
}

var (
	// ErrAlreadyInitialized means the handle cell was written twice
	ErrAlreadyInitialized = errors.New("runtime already initialized")
	// ErrNotInitialized means the handle was read before it was set
	ErrNotInitialized = errors.New("runtime not initialized")
	// ErrNilHandle means Set was given nil
	ErrNilHandle = errors.New("nil runtime handle")
)

const (
	cellEmpty int32 = iota
	cellInitializing
	cellReady
)

// Cell holds a Handle that is written once and read many times without
// locking.
type Cell struct {
	state  atomic.Int32
	handle Handle
}

// Set stores h. Only the first call succeeds.
func (c *Cell) Set(h Handle) error {
	if h == nil {
		return ErrNilHandle
	}
	if !c.state.CompareAndSwap(cellEmpty, cellInitializing) {
		return ErrAlreadyInitialized
	}
	c.handle = h
	c.state.Store(cellReady)
	return nil
}

// Get returns the stored handle.
func (c *Cell) Get() (Handle, error) {
	if c.state.Load() != cellReady {
		return nil, ErrNotInitialized
	}
	return c.handle, nil
}

// MustGet is Get for callers that cannot return an error.
func (c *Cell) MustGet() Handle {
	h, err := c.Get()
	if err != nil {
		panic(err)
	}
	return h
}

// Ready reports whether a handle is stored.
func (c *Cell) Ready() bool {
	return c.state.Load() == cellReady
}

// GoString copies a NUL-terminated C string. A nil pointer yields "".
func GoString(p *byte) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(p), n)) != 0 {
		n++
	}
	return string(unsafe.Slice(p, n))
}

// CString returns a NUL-terminated copy of s for passing to native code.
func CString(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return &b[0]
}
