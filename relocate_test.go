package lovely

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// push rbp; mov rbp, rsp; sub rsp, 0x20; nop
var framePrologue = []byte{0x55, 0x48, 0x89, 0xe5, 0x48, 0x83, 0xec, 0x20, 0x90}

func TestAnalyseStopsOnInstructionBoundary(t *testing.T) {
	insts, n, err := analyse(framePrologue, jmpRel32Len, 64)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Len(t, insts, 3)
}

func TestAnalyseExactFit(t *testing.T) {
	// mov eax, 1
	code := []byte{0xb8, 0x01, 0x00, 0x00, 0x00, 0xc3}
	insts, n, err := analyse(code, jmpRel32Len, 64)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, insts, 1)
}

func TestAnalyseTooShort(t *testing.T) {
	// xor eax, eax; ret; then the next function
	code := []byte{0x31, 0xc0, 0xc3, 0x55, 0x48, 0x89, 0xe5}
	_, _, err := analyse(code, jmpRel32Len, 64)
	assert.True(t, errors.Is(err, ErrTooShort))
}

func TestAnalyseRunsOutOfCode(t *testing.T) {
	_, _, err := analyse([]byte{0x90, 0x90}, jmpRel32Len, 64)
	assert.True(t, errors.Is(err, ErrTooShort))
}

func decodeAll(t *testing.T, code []byte, mode int) []byte {
	t.Helper()
	insts, n, err := analyse(code, len(code), mode)
	require.NoError(t, err)
	require.Equal(t, len(code), n)
	out, err := relocate(code, insts, 0x1000, 0x2000, mode)
	require.NoError(t, err)
	return out
}

func TestRelocateCopiesPlainInstructions(t *testing.T) {
	out := decodeAll(t, framePrologue[:8], 64)
	assert.Equal(t, framePrologue[:8], out)
}

func TestRelocateRIPRelative(t *testing.T) {
	// mov rax, [rip+0x10]
	out := decodeAll(t, []byte{0x48, 0x8b, 0x05, 0x10, 0x00, 0x00, 0x00}, 64)
	// 0x1017 - 0x2007 = -0xff0
	assert.Equal(t, []byte{0x48, 0x8b, 0x05, 0x10, 0xf0, 0xff, 0xff}, out)
}

func TestRelocateCallRel32(t *testing.T) {
	// call +0x100
	out := decodeAll(t, []byte{0xe8, 0x00, 0x01, 0x00, 0x00}, 64)
	// 0x1105 - 0x2005 = -0xf00
	assert.Equal(t, []byte{0xe8, 0x00, 0xf1, 0xff, 0xff}, out)
}

func TestRelocateWidensShortJcc(t *testing.T) {
	// je +5
	out := decodeAll(t, []byte{0x74, 0x05}, 64)
	// 0x1007 - 0x2006 = -0xfff
	assert.Equal(t, []byte{0x0f, 0x84, 0x01, 0xf0, 0xff, 0xff}, out)
}

func TestRelocateWidensShortJmp(t *testing.T) {
	// nop; jmp +0x10
	code := []byte{0x90, 0xeb, 0x10}
	insts, _, err := analyse(code, 1, 64)
	require.NoError(t, err)
	insts2, _, err := analyse(code[1:], 2, 64)
	require.NoError(t, err)
	out, err := relocate(code, append(insts, insts2...), 0x1000, 0x2000, 64)
	require.NoError(t, err)
	// target 0x1013, jmp placed at 0x2001: 0x1013 - 0x2006 = -0xff3
	assert.Equal(t, []byte{0x90, 0xe9, 0x0d, 0xf0, 0xff, 0xff}, out)
}

func TestRelocateRejectsLoop(t *testing.T) {
	code := []byte{0xe2, 0xfe} // loop -2
	insts, _, err := analyse(code, 2, 64)
	require.NoError(t, err)
	_, err = relocate(code, insts, 0x1000, 0x2000, 64)
	assert.True(t, errors.Is(err, ErrRelativeAddr))
}

func TestRelocateRejectsFarRIPRelative(t *testing.T) {
	code := []byte{0x48, 0x8b, 0x05, 0x10, 0x00, 0x00, 0x00}
	insts, _, err := analyse(code, len(code), 64)
	require.NoError(t, err)
	_, err = relocate(code, insts, 0x1000, 0x1_0000_2000, 64)
	assert.True(t, errors.Is(err, ErrRelativeAddr))
}

func TestRelocate32BitWraps(t *testing.T) {
	// call +0x100 in 32-bit mode, moved far away still encodes
	code := []byte{0xe8, 0x00, 0x01, 0x00, 0x00}
	insts, _, err := analyse(code, len(code), 32)
	require.NoError(t, err)
	out, err := relocate(code, insts, 0x1000, 0xfff00000, 32)
	require.NoError(t, err)
	// 0x1105 - 0xfff00005 wraps to 0x00101100
	assert.Equal(t, []byte{0xe8, 0x00, 0x11, 0x10, 0x00}, out)
}
