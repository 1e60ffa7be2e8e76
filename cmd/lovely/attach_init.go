//go:build !linux

package main

import (
	"github.com/lovely-injector/lovely/internal/guard"
)

// Package init is the process-attach notification. On Windows it runs on the
// runtime's init thread once DllMain has returned; see lovely_ready.
func init() {
	attach(guard.ProcessAttach)
}
