package lovely

import (
	"encoding/binary"
	"math"
)

const (
	jmpRel32Len = 5  // JMP rel32
	jmpAbs64Len = 13 // MOV R11, imm64; JMP R11
	jmpInd64Len = 14 // JMP [RIP+0]; imm64
	int3        = 0xCC
)

// jmpRel32 encodes a relative jump placed at from. In 64-bit mode the jump
// is only possible when to is within a signed 32-bit displacement.
func jmpRel32(from, to uintptr, mode int) ([]byte, bool) {
	disp := int64(to) - int64(from+jmpRel32Len)
	if mode == 64 && (disp < math.MinInt32 || disp > math.MaxInt32) {
		return nil, false
	}
	seq := make([]byte, jmpRel32Len)
	seq[0] = 0xe9
	binary.LittleEndian.PutUint32(seq[1:], uint32(int32(disp)))
	return seq, true
}

// jmpAbs64 encodes an absolute jump through R11, which is volatile and never
// carries arguments in either the System V or the Windows x64 convention.
func jmpAbs64(to uintptr) []byte {
	seq := []byte{
		0x49, 0xbb, // MOV R11, imm64
		0, 0, 0, 0, 0, 0, 0, 0,
		0x41, 0xff, 0xe3, // JMP R11
	}
	binary.LittleEndian.PutUint64(seq[2:10], uint64(to))
	return seq
}

// jmpInd64 encodes an absolute jump through a quadword stored right after
// the instruction. No register changes, so it can resume a function whose
// prologue has already run.
func jmpInd64(to uintptr) []byte {
	seq := []byte{
		0xff, 0x25, 0, 0, 0, 0, // JMP [RIP+0]
		0, 0, 0, 0, 0, 0, 0, 0,
	}
	binary.LittleEndian.PutUint64(seq[6:], uint64(to))
	return seq
}

// jumpTo picks the shortest jump from from to to that leaves every register
// intact.
func jumpTo(from, to uintptr, mode int) []byte {
	if seq, ok := jmpRel32(from, to, mode); ok {
		return seq
	}
	return jmpInd64(to)
}

// pad fills the bytes after the jump up to size with INT3 so a stray return
// into the middle of the patch traps instead of running garbage.
func pad(seq []byte, size int) []byte {
	out := make([]byte, size)
	copy(out, seq)
	for i := len(seq); i < size; i++ {
		out[i] = int3
	}
	return out
}
