//go:build !windows

package crash

import (
	"fmt"
	"os"
)

// Modal prints the crash to stderr; there is no dialog outside Windows.
type Modal struct{}

func (Modal) Notify(title, message string) {
	fmt.Fprintf(os.Stderr, "[%s] %s\n", title, message)
}
