package bridge

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lovely-injector/lovely/internal/engine"
)

func reset(t *testing.T) {
	t.Helper()
	wipe := func() {
		current = new(engine.Cell)
		original.Store(0)
		invoker.Store(nil)
	}
	wipe()
	t.Cleanup(wipe)
}

type nativeCall struct {
	fn    uintptr
	state unsafe.Pointer
	buf   *byte
	size  int
	name  *byte
	mode  *byte
}

// fakeNative stands in for the C trampoline call.
type fakeNative struct {
	calls  []nativeCall
	status uint32
}

func (f *fakeNative) invoke(fn uintptr, state unsafe.Pointer, buf *byte, size int, name, mode *byte) uint32 {
	f.calls = append(f.calls, nativeCall{fn, state, buf, size, name, mode})
	return f.status
}

type echoHandle struct {
	got []nativeCall
}

func (e *echoHandle) ApplyBufferPatches(state unsafe.Pointer, buf *byte, size int, name, mode *byte) uint32 {
	e.got = append(e.got, nativeCall{0, state, buf, size, name, mode})
	return 42
}

func TestDispatchBeforeRuntimePanics(t *testing.T) {
	reset(t)
	assert.PanicsWithValue(t, engine.ErrNotInitialized, func() {
		Dispatch(nil, nil, 0, nil, nil)
	})
}

func TestDispatchForwardsExactly(t *testing.T) {
	reset(t)
	h := &echoHandle{}
	require.NoError(t, SetRuntime(h))
	assert.ErrorIs(t, SetRuntime(h), engine.ErrAlreadyInitialized)

	var st int
	buf := engine.CString("x = 1")
	name := engine.CString("@a.lua")
	mode := engine.CString("t")
	got := Dispatch(unsafe.Pointer(&st), buf, 5, name, mode)

	assert.Equal(t, uint32(42), got)
	require.Len(t, h.got, 1)
	assert.Equal(t, nativeCall{0, unsafe.Pointer(&st), buf, 5, name, mode}, h.got[0])
}

func TestCallOriginalBeforeBindPanics(t *testing.T) {
	reset(t)
	assert.PanicsWithValue(t, ErrOriginalNotBound, func() {
		CallOriginal(nil, nil, 0, nil, nil)
	})
}

func TestBindOriginalOnce(t *testing.T) {
	reset(t)
	f := &fakeNative{}
	n := Native{Entry: 0x1000, Invoke: f.invoke}

	assert.Error(t, n.BindOriginal(0))
	require.NoError(t, n.BindOriginal(0x2000))
	assert.ErrorIs(t, n.BindOriginal(0x3000), ErrOriginalBound)

	n.CallOriginal(nil, nil, 0, nil, nil)
	require.Len(t, f.calls, 1)
	assert.Equal(t, uintptr(0x2000), f.calls[0].fn)
}

func TestRoundTripThroughLovely(t *testing.T) {
	reset(t)
	f := &fakeNative{status: 0x80000001}
	n := Native{Entry: 0x1000, Invoke: f.invoke}

	rt, err := engine.New(n.CallOriginal, false, engine.WithModDir(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, n.Bind(rt))
	require.NoError(t, n.BindOriginal(0x7ff00000))

	var st int
	state := unsafe.Pointer(&st)
	buf := engine.CString("return {}")
	name := engine.CString("@game.lua")
	mode := engine.CString("bt")

	got := Dispatch(state, buf, 9, name, mode)

	assert.Equal(t, uint32(0x80000001), got)
	require.Len(t, f.calls, 1)
	assert.Equal(t, nativeCall{0x7ff00000, state, buf, 9, name, mode}, f.calls[0])
}

func TestNativeAddress(t *testing.T) {
	assert.Equal(t, uintptr(0x1234), Native{Entry: 0x1234}.Address())
}
