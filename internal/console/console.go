// Package console opens a text console for the shim's log output and sets
// its title.
package console

import (
	"io"
	"sync"
)

// Console is the process's log console.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func New() *Console {
	return &Console{}
}

// Alloc opens the console once and returns a writer to it. Later calls
// return the same writer.
func (c *Console) Alloc() (io.Writer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.out != nil {
		return c.out, nil
	}
	w, err := alloc()
	if err != nil {
		return nil, err
	}
	c.out = w
	return w, nil
}

// SetTitle sets the console window title.
func (c *Console) SetTitle(title string) error {
	c.mu.Lock()
	out := c.out
	c.mu.Unlock()
	return setTitle(out, title)
}
