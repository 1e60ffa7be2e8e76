//go:build linux

package main

/*
extern void lovely_process_attach(void);

// Runs inside dlopen. Calls into Go wait for the runtime and package init,
// so dlopen returns only after attach. Only valid in a c-shared build: in an
// executable the runtime starts after constructors, so this package has no
// test binary.
__attribute__((constructor))
static void lovely_constructor(void) {
	lovely_process_attach();
}
*/
import "C"
