//go:build !windows && !unix

package lovely

func writeCode(uintptr, []byte) error { return ErrUnsupported }

func allocNear(uintptr, int) (execMem, error) { return execMem{}, ErrUnsupported }

func sealExec(execMem) error { return ErrUnsupported }

func freeExec(execMem) {}
