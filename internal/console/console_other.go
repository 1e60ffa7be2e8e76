//go:build !windows

package console

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
)

// alloc uses the terminal the host was started from.
func alloc() (io.Writer, error) {
	return os.Stdout, nil
}

// setTitle emits the xterm window title sequence. Without an allocated
// console there is nowhere to show it.
func setTitle(out io.Writer, title string) error {
	if out == nil {
		return errors.New("no console allocated")
	}
	_, err := fmt.Fprintf(out, "\x1b]0;%s\x07", title)
	return err
}
