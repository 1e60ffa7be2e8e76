package lovely

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

// bytes read from the target when planning a patch: the longest patch plus
// the longest x86 instruction
const lookWindow = 32

// smallest x86 page
const minPage = 0x1000

// errCodeEnds means the bytes ran out before the patch was covered
var errCodeEnds = errors.Wrap(ErrTooShort, "code ends")

// analyse decodes whole instructions from the start of code until at least
// size bytes are covered, and returns them with the covered length.
func analyse(code []byte, size, mode int) ([]x86asm.Inst, int, error) {
	var insts []x86asm.Inst
	n := 0
	for n < size {
		if n >= len(code) {
			return nil, 0, errors.Wrapf(errCodeEnds, "need %d bytes, decoded %d", size, n)
		}
		inst, err := x86asm.Decode(code[n:], mode)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "decode at +%d", n)
		}
		insts = append(insts, inst)
		n += inst.Len
		if n < size && endsFlow(inst) {
			return nil, 0, errors.Wrapf(ErrTooShort, "%s at +%d", inst.Op, n-inst.Len)
		}
	}
	return insts, n, nil
}

func endsFlow(inst x86asm.Inst) bool {
	switch inst.Op {
	case x86asm.RET, x86asm.LRET, x86asm.JMP, x86asm.LJMP,
		x86asm.INT, x86asm.UD2, x86asm.HLT:
		return true
	}
	return false
}

func usesRIP(inst x86asm.Inst) bool {
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		if mem, ok := a.(x86asm.Mem); ok && mem.Base == x86asm.RIP {
			return true
		}
	}
	return false
}

// Fixup says how a stolen instruction is moved into the trampoline.
type Fixup int

const (
	// FixupCopy copies the instruction unchanged
	FixupCopy Fixup = iota
	// FixupRebase rewrites a 32-bit PC-relative displacement
	FixupRebase
	// FixupWiden turns a rel8 branch into its rel32 form
	FixupWiden
	// FixupNone marks an instruction that cannot be moved
	FixupNone
)

func (f Fixup) String() string {
	switch f {
	case FixupCopy:
		return "copy"
	case FixupRebase:
		return "rebase"
	case FixupWiden:
		return "widen"
	}
	return "unmovable"
}

func fixupOf(inst x86asm.Inst) Fixup {
	switch {
	case inst.PCRel == 0 && !usesRIP(inst):
		return FixupCopy
	case inst.PCRel == 4:
		return FixupRebase
	case inst.PCRel == 1:
		switch inst.Op {
		case x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE,
			x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ:
			return FixupNone
		}
		return FixupWiden
	}
	return FixupNone
}

// relocate re-encodes instructions decoded at from so that they behave the
// same when executed at to. PC-relative displacements are re-based and short
// branches are widened to rel32.
func relocate(code []byte, insts []x86asm.Inst, from, to uintptr, mode int) ([]byte, error) {
	out := make([]byte, 0, len(code)+4*len(insts))
	off := 0
	for _, inst := range insts {
		raw := code[off : off+inst.Len]
		src := from + uintptr(off)
		dst := to + uintptr(len(out))
		switch fixupOf(inst) {
		case FixupCopy:
			out = append(out, raw...)
		case FixupRebase:
			disp := int32(binary.LittleEndian.Uint32(raw[inst.PCRelOff:]))
			abs := int64(src) + int64(inst.Len) + int64(disp)
			next, err := rebase(abs, int64(dst)+int64(inst.Len), mode)
			if err != nil {
				return nil, errors.Wrapf(err, "%s at +%d", inst.Op, off)
			}
			moved := append([]byte(nil), raw...)
			binary.LittleEndian.PutUint32(moved[inst.PCRelOff:], uint32(next))
			out = append(out, moved...)
		case FixupWiden:
			wide, err := widen(raw, inst, src, dst, mode)
			if err != nil {
				return nil, errors.Wrapf(err, "%s at +%d", inst.Op, off)
			}
			out = append(out, wide...)
		default:
			return nil, errors.Wrapf(ErrRelativeAddr, "%s at +%d", inst.Op, off)
		}
		off += inst.Len
	}
	return out, nil
}

func rebase(abs, next int64, mode int) (int32, error) {
	d := abs - next
	if mode == 64 && (d < math.MinInt32 || d > math.MaxInt32) {
		return 0, ErrRelativeAddr
	}
	// 32-bit displacements wrap around the address space
	return int32(d), nil
}

// widen turns JMP rel8 and Jcc rel8 into their rel32 forms.
func widen(raw []byte, inst x86asm.Inst, src, dst uintptr, mode int) ([]byte, error) {
	if inst.PCRelOff < 1 {
		return nil, ErrRelativeAddr
	}
	abs := int64(src) + int64(inst.Len) + int64(int8(raw[inst.PCRelOff]))
	op := raw[inst.PCRelOff-1]
	seq := append([]byte(nil), raw[:inst.PCRelOff-1]...)
	switch {
	case op == 0xeb:
		seq = append(seq, 0xe9)
	case op >= 0x70 && op <= 0x7f:
		seq = append(seq, 0x0f, 0x80|(op&0x0f))
	default:
		// LOOP, JCXZ and friends have no rel32 form
		return nil, ErrRelativeAddr
	}
	next, err := rebase(abs, int64(dst)+int64(len(seq)+4), mode)
	if err != nil {
		return nil, err
	}
	seq = binary.LittleEndian.AppendUint32(seq, uint32(next))
	return seq, nil
}
