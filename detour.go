package lovely

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

// Detour redirects one native function. It is created by Install and lives
// until Uninstall.
type Detour struct {
	target      uintptr
	replacement uintptr
	// relocated prologue followed by the jump back into the target
	trampoline execMem
	// jump stub near the target, only when the replacement is out of rel32 reach
	relay execMem
	// bytes overwritten in the target
	original []byte
	// bytes written over the target, same length as original
	patch   []byte
	enabled bool
}

// Target returns the patched function's address.
func (d *Detour) Target() uintptr { return d.target }

// Replacement returns the address calls are redirected to.
func (d *Detour) Replacement() uintptr { return d.replacement }

// Trampoline returns an address that behaves like the unpatched target. It
// stays valid while the detour is installed, enabled or not.
func (d *Detour) Trampoline() uintptr { return d.trampoline.addr }

// Stolen returns a copy of the target bytes the detour overwrites.
func (d *Detour) Stolen() []byte { return append([]byte(nil), d.original...) }

// Patch returns a copy of the bytes Enable writes over the target.
func (d *Detour) Patch() []byte { return append([]byte(nil), d.patch...) }

// Enabled reports whether the target currently jumps to the replacement.
func (d *Detour) Enabled() bool {
	lock.Lock()
	defer lock.Unlock()
	return d.enabled
}

// Enable writes the jump into the target. Every caller of the target reaches
// the replacement from then on.
func (d *Detour) Enable() error {
	lock.Lock()
	defer lock.Unlock()
	if d.enabled {
		return ErrAlreadyEnabled
	}
	if err := writeCode(d.target, d.patch); err != nil {
		return errors.Wrapf(err, "patch target %#x", d.target)
	}
	d.enabled = true
	return nil
}

// Disable restores the original bytes of the target.
func (d *Detour) Disable() error {
	lock.Lock()
	defer lock.Unlock()
	if !d.enabled {
		return ErrNotEnabled
	}
	if err := writeCode(d.target, d.original); err != nil {
		return errors.Wrapf(err, "restore target %#x", d.target)
	}
	d.enabled = false
	return nil
}

func prepare(target, replacement uintptr) (*Detour, error) {
	if decodeMode == 0 {
		return nil, ErrUnsupported
	}
	d := &Detour{target: target, replacement: replacement}
	patch, err := d.planPatch()
	if err != nil {
		return nil, err
	}

	code, insts, stolen, err := steal(target, len(patch))
	if err != nil {
		d.release()
		return nil, err
	}

	// widening may add 4 bytes per instruction
	size := stolen + 4*len(insts) + jmpInd64Len
	d.trampoline, err = allocNear(target, size)
	if err != nil {
		d.release()
		return nil, errors.Wrap(err, "allocate trampoline")
	}
	body, err := relocate(code[:stolen], insts, target, d.trampoline.addr, decodeMode)
	if err != nil {
		d.release()
		return nil, err
	}
	body = append(body, jumpTo(d.trampoline.addr+uintptr(len(body)), target+uintptr(stolen), decodeMode)...)
	if err := d.trampoline.fill(body); err != nil {
		d.release()
		return nil, errors.Wrap(err, "write trampoline")
	}

	d.original = code[:stolen]
	d.patch = pad(patch, stolen)
	return d, nil
}

// steal decodes the instructions at target that a patch of size bytes
// overwrites. The first read stops at the end of target's page, since the
// next page may be unmapped after a short function. It only reads on when the
// instructions run past that point, and execution then reaches the next page
// anyway.
func steal(target uintptr, size int) ([]byte, []x86asm.Inst, int, error) {
	n := lookWindow
	if rest := int(minPage - target%minPage); rest < n {
		n = rest
	}
	for {
		code := append([]byte(nil), makeSlice(target, uintptr(n))...)
		insts, stolen, err := analyse(code, size, decodeMode)
		if err == nil {
			return code, insts, stolen, nil
		}
		if n == lookWindow || !(errors.Is(err, errCodeEnds) || errors.Is(err, x86asm.ErrTruncated)) {
			return nil, nil, 0, err
		}
		n = lookWindow
	}
}

// planPatch chooses the jump written over the target: a direct rel32 jump,
// a rel32 jump to a nearby relay holding an absolute jump, or an absolute
// jump in place.
func (d *Detour) planPatch() ([]byte, error) {
	if seq, ok := jmpRel32(d.target, d.replacement, decodeMode); ok {
		return seq, nil
	}
	relay, err := allocNear(d.target, jmpAbs64Len)
	if err == nil {
		if seq, ok := jmpRel32(d.target, relay.addr, decodeMode); ok {
			if err := relay.fill(jmpAbs64(d.replacement)); err != nil {
				relay.free()
				return nil, errors.Wrap(err, "write relay")
			}
			d.relay = relay
			return seq, nil
		}
		relay.free()
	}
	return jmpAbs64(d.replacement), nil
}

func (d *Detour) release() {
	d.trampoline.free()
	d.relay.free()
	d.trampoline = execMem{}
	d.relay = execMem{}
}
