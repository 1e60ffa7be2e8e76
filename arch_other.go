//go:build !amd64 && !386

package lovely

// detours need an x86 instruction decoder; other architectures are refused
const decodeMode = 0
