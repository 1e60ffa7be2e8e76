package main

/*
#include <stdint.h>
#include <stddef.h>
*/
import "C"

import (
	"unsafe"

	"github.com/lovely-injector/lovely/internal/bridge"
	"github.com/lovely-injector/lovely/internal/crash"
	"github.com/lovely-injector/lovely/internal/guard"
)

// lovely_loadbufferx_detour replaces luaL_loadbufferx in the host.
//
//export lovely_loadbufferx_detour
func lovely_loadbufferx_detour(state unsafe.Pointer, buf *C.char, size C.ptrdiff_t, name, mode *C.char) C.uint32_t {
	defer crash.Recover()
	return C.uint32_t(bridge.Dispatch(
		state,
		(*byte)(unsafe.Pointer(buf)),
		int(size),
		(*byte)(unsafe.Pointer(name)),
		(*byte)(unsafe.Pointer(mode)),
	))
}

// lovely_notify forwards a loader notification, for injectors that relay
// DllMain reasons after the library is initialised. Returns 1 on success.
//
//export lovely_notify
func lovely_notify(reason C.uint32_t) C.int {
	defer crash.Recover()
	attach(uint32(reason))
	return 1
}

// lovely_process_attach runs process-attach. On ELF hosts a library
// constructor calls it while dlopen is still in progress, which holds the
// loader until the detour is enabled.
//
//export lovely_process_attach
func lovely_process_attach() {
	attach(guard.ProcessAttach)
}

// lovely_ready returns the guard state once package init, and with it the
// process-attach run from init, has finished. Injectors call it right after
// loading the library to wait for the detour.
//
//export lovely_ready
func lovely_ready() C.int {
	return C.int(shim.State())
}
