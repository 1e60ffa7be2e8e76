package lovely

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// push rbp; mov rbp, rsp; sub rsp, 0x20; mov [rbp-8], rdi; mov [rbp-0x10], rsi
var longPrologue = []byte{
	0x55,
	0x48, 0x89, 0xe5,
	0x48, 0x83, 0xec, 0x20,
	0x48, 0x89, 0x7d, 0xf8,
	0x48, 0x89, 0x75, 0xf0,
	0xc9, 0xc3, // leave; ret
}

// codePage maps a page holding code followed by INT3 filler.
func codePage(t *testing.T, code []byte) uintptr {
	t.Helper()
	b, err := unix.Mmap(-1, 0, int(pageSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	require.NoError(t, err)
	for i := range b {
		b[i] = int3
	}
	copy(b, code)
	require.NoError(t, unix.Mprotect(b, unix.PROT_READ|unix.PROT_EXEC))
	t.Cleanup(func() { _ = unix.Munmap(b) })
	return uintptr(unsafe.Pointer(&b[0]))
}

func uninstallOnCleanup(t *testing.T, target uintptr) {
	t.Cleanup(func() {
		if err := Uninstall(target); err != nil && !errors.Is(err, ErrHookNotFound) {
			t.Errorf("uninstall: %v", err)
		}
	})
}

// nativeFunc returns a Go func value that runs code. The code takes its
// argument and leaves its result in RAX, the first integer register of Go's
// internal ABI, and must not touch R14 or X15.
func nativeFunc(code uintptr) func(uint64) uint64 {
	fv := &struct{ code uintptr }{code}
	return *(*func(uint64) uint64)(unsafe.Pointer(&fv))
}

// jumpDest follows a jump encoded by jumpTo.
func jumpDest(t *testing.T, at uintptr) uintptr {
	t.Helper()
	code := makeSlice(at, jmpAbs64Len)
	switch code[0] {
	case 0xe9:
		disp := int32(binary.LittleEndian.Uint32(code[1:5]))
		return uintptr(int64(at) + jmpRel32Len + int64(disp))
	case 0x49:
		require.Equal(t, []byte{0x41, 0xff, 0xe3}, code[10:13])
		return uintptr(binary.LittleEndian.Uint64(code[2:10]))
	case 0xff:
		code = makeSlice(at, jmpInd64Len)
		require.Equal(t, []byte{0xff, 0x25, 0, 0, 0, 0}, code[:6])
		return uintptr(binary.LittleEndian.Uint64(code[6:14]))
	}
	t.Fatalf("no jump at %#x: % x", at, code)
	return 0
}

func TestDetourNearReplacement(t *testing.T) {
	target := codePage(t, longPrologue)
	replacement := target + 0x800
	uninstallOnCleanup(t, target)

	d, err := Install(target, replacement)
	require.NoError(t, err)
	assert.False(t, d.Enabled())
	assert.Equal(t, longPrologue[:8], d.Stolen())
	assert.Equal(t, longPrologue, makeSlice(target, uintptr(len(longPrologue))), "install must not touch the target")

	tramp := makeSlice(d.Trampoline(), 8)
	assert.Equal(t, longPrologue[:8], tramp)
	assert.Equal(t, target+8, jumpDest(t, d.Trampoline()+8))

	require.NoError(t, d.Enable())
	assert.True(t, d.Enabled())
	patched := makeSlice(target, 8)
	assert.Equal(t, byte(0xe9), patched[0])
	assert.Equal(t, replacement, jumpDest(t, target))
	assert.Equal(t, []byte{int3, int3, int3}, patched[5:8])

	assert.True(t, errors.Is(d.Enable(), ErrAlreadyEnabled))

	require.NoError(t, d.Disable())
	assert.Equal(t, longPrologue, makeSlice(target, uintptr(len(longPrologue))))
	assert.True(t, errors.Is(d.Disable(), ErrNotEnabled))
}

func TestDetourFarReplacement(t *testing.T) {
	target := codePage(t, longPrologue)
	replacement := target ^ (1 << 44)
	uninstallOnCleanup(t, target)

	d, err := Install(target, replacement)
	require.NoError(t, err)
	require.NoError(t, d.Enable())

	patch := d.Patch()
	switch patch[0] {
	case 0xe9:
		// through a relay
		relay := jumpDest(t, target)
		assert.Equal(t, d.relay.addr, relay)
		assert.Equal(t, replacement, jumpDest(t, relay))
		assert.Len(t, d.Stolen(), 8)
	case 0x49:
		assert.Equal(t, replacement, jumpDest(t, target))
		assert.Len(t, d.Stolen(), 16)
	default:
		t.Fatalf("unexpected patch % x", patch)
	}
	assert.Equal(t, target+uintptr(len(d.Stolen())), jumpDest(t, d.Trampoline()+uintptr(len(d.Stolen()))))
}

func TestDoubleInstall(t *testing.T) {
	target := codePage(t, longPrologue)
	uninstallOnCleanup(t, target)

	_, err := Install(target, target+0x800)
	require.NoError(t, err)
	_, err = Install(target, target+0x900)
	assert.True(t, errors.Is(err, ErrDoubleHook))

	d, err := Lookup(target)
	require.NoError(t, err)
	assert.Equal(t, target+0x800, d.Replacement())
}

func TestUninstallRestores(t *testing.T) {
	target := codePage(t, longPrologue)

	d, err := Install(target, target+0x800)
	require.NoError(t, err)
	require.NoError(t, d.Enable())
	require.NoError(t, Uninstall(target))

	assert.Equal(t, longPrologue, makeSlice(target, uintptr(len(longPrologue))))
	_, err = Lookup(target)
	assert.True(t, errors.Is(err, ErrHookNotFound))
	assert.True(t, errors.Is(Uninstall(target), ErrHookNotFound))
}

func TestInstallRejectsShortFunction(t *testing.T) {
	// xor eax, eax; ret
	target := codePage(t, []byte{0x31, 0xc0, 0xc3})

	_, err := Install(target, target+0x800)
	assert.True(t, errors.Is(err, ErrTooShort))
	_, err = Lookup(target)
	assert.True(t, errors.Is(err, ErrHookNotFound))
}

func TestInstallRejectsNull(t *testing.T) {
	_, err := Install(0, 0x1000)
	assert.True(t, errors.Is(err, ErrNullAddress))
	_, err = Install(0x1000, 0)
	assert.True(t, errors.Is(err, ErrNullAddress))
}

func TestDetourRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		name     string
		code     []byte
		arg      uint64
		want     uint64
		detoured uint64
	}{
		{
			name: "frame",
			// push rbp; mov rbp, rsp; lea rax, [rax+1]; pop rbp; ret
			code: []byte{0x55, 0x48, 0x89, 0xe5, 0x48, 0x8d, 0x40, 0x01, 0x5d, 0xc3},
			arg:      5,
			want:     6,
			detoured: 16,
		},
		{
			name: "short branch",
			// test rax, rax; je +5; lea rax, [rax+1]; ret; mov rax, 42; ret
			code: []byte{
				0x48, 0x85, 0xc0,
				0x74, 0x05,
				0x48, 0x8d, 0x40, 0x01,
				0xc3,
				0x48, 0xc7, 0xc0, 0x2a, 0x00, 0x00, 0x00,
				0xc3,
			},
			arg:      0,
			want:     42,
			detoured: 11,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			target := codePage(t, tc.code)
			replacement := target + 0x800
			uninstallOnCleanup(t, target)
			call := nativeFunc(target)
			require.Equal(t, tc.want, call(tc.arg))

			d, err := Install(target, replacement)
			require.NoError(t, err)
			// add rax, 10; then on to the original
			shim := append([]byte{0x48, 0x83, 0xc0, 0x0a}, jumpTo(replacement+4, d.Trampoline(), 64)...)
			require.NoError(t, writeCode(replacement, shim))
			original := nativeFunc(d.Trampoline())
			assert.Equal(t, tc.want, call(tc.arg), "install must not redirect")

			require.NoError(t, d.Enable())
			assert.Equal(t, tc.detoured, call(tc.arg))
			assert.Equal(t, tc.want, original(tc.arg))
			assert.Equal(t, tc.detoured, original(tc.arg+10))

			require.NoError(t, d.Disable())
			assert.Equal(t, tc.want, call(tc.arg))
			assert.Equal(t, tc.want, original(tc.arg))
		})
	}
}

func TestInstallAtPageEnd(t *testing.T) {
	b, err := unix.Mmap(-1, 0, int(2*pageSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	require.NoError(t, err)
	t.Cleanup(func() { _ = unix.Munmap(b) })
	at := int(pageSize) - len(longPrologue)
	copy(b[at:], longPrologue)
	require.NoError(t, unix.Mprotect(b[:pageSize], unix.PROT_READ|unix.PROT_EXEC))
	// nothing readable after the function
	require.NoError(t, unix.Mprotect(b[pageSize:], unix.PROT_NONE))
	target := uintptr(unsafe.Pointer(&b[at]))
	uninstallOnCleanup(t, target)

	d, err := Install(target, target-0x800)
	require.NoError(t, err)
	assert.Equal(t, longPrologue[:8], d.Stolen())
}
