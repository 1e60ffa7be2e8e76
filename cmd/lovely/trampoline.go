package main

/*
#include <stdint.h>
#include <stddef.h>

typedef uint32_t (*lovely_loadbufferx_fn)(void*, const char*, ptrdiff_t, const char*, const char*);

extern uint32_t lovely_loadbufferx_detour(void*, char*, ptrdiff_t, char*, char*);

static uintptr_t lovely_detour_entry(void) {
	return (uintptr_t)&lovely_loadbufferx_detour;
}

static uint32_t lovely_call_original(uintptr_t fn, void* state, const char* buf, ptrdiff_t size, const char* name, const char* mode) {
	return ((lovely_loadbufferx_fn)fn)(state, buf, size, name, mode);
}
*/
import "C"

import (
	"unsafe"

	"github.com/lovely-injector/lovely/internal/bridge"
)

// native is the C side of the bridge: the exported replacement and a caller
// for the trampoline.
var native = bridge.Native{
	Entry:  uintptr(C.lovely_detour_entry()),
	Invoke: callNative,
}

func callNative(fn uintptr, state unsafe.Pointer, buf *byte, size int, name, mode *byte) uint32 {
	return uint32(C.lovely_call_original(
		C.uintptr_t(fn),
		state,
		(*C.char)(unsafe.Pointer(buf)),
		C.ptrdiff_t(size),
		(*C.char)(unsafe.Pointer(name)),
		(*C.char)(unsafe.Pointer(mode)),
	))
}
