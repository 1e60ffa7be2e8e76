package lovely

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

// Step is one instruction a patch would overwrite.
type Step struct {
	Offset int
	Raw    []byte
	Text   string
	Fixup  Fixup
}

// Plan describes what patching code with a jump of patchLen bytes involves.
type Plan struct {
	Steps []Step
	// bytes overwritten, whole instructions
	Stolen int
	// trampoline body when the prologue is moved from at to to, nil when it
	// cannot be moved
	Relocated []byte
	// why Relocated is nil
	Err error
}

// PlanPatch analyses the function prologue in code, located at at, as if a
// patch of patchLen bytes were written over it and the stolen instructions
// moved to to. mode is 32 or 64. It never touches memory.
func PlanPatch(code []byte, at, to uintptr, patchLen, mode int) (Plan, error) {
	if mode != 32 && mode != 64 {
		return Plan{}, errors.Errorf("bad mode %d", mode)
	}
	insts, stolen, err := analyse(code, patchLen, mode)
	if err != nil {
		return Plan{}, err
	}
	p := Plan{Stolen: stolen}
	off := 0
	for _, inst := range insts {
		p.Steps = append(p.Steps, Step{
			Offset: off,
			Raw:    append([]byte(nil), code[off:off+inst.Len]...),
			Text:   x86asm.IntelSyntax(inst, uint64(at)+uint64(off), nil),
			Fixup:  fixupOf(inst),
		})
		off += inst.Len
	}
	p.Relocated, p.Err = relocate(code[:stolen], insts, at, to, mode)
	return p, nil
}

// PatchLengths are the jump sizes a detour may write: rel32 and the absolute
// 64-bit form.
var PatchLengths = []int{jmpRel32Len, jmpAbs64Len}
