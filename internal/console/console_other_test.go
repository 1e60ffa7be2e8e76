//go:build !windows

package console

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetTitleNeedsConsole(t *testing.T) {
	assert.Error(t, New().SetTitle("Lovely dev"))
}

func TestSetTitleWritesSequence(t *testing.T) {
	var buf bytes.Buffer
	c := &Console{out: &buf}
	require.NoError(t, c.SetTitle("Lovely 0.5.0"))
	assert.Equal(t, "\x1b]0;Lovely 0.5.0\x07", buf.String())
}

func TestAllocIsStable(t *testing.T) {
	c := New()
	w1, err := c.Alloc()
	require.NoError(t, err)
	w2, err := c.Alloc()
	require.NoError(t, err)
	assert.Same(t, os.Stdout, w1)
	assert.Same(t, w1, w2)
}
