//go:build unix

package lovely

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSinglePage(t *testing.T) {
	start, size := calcBoundaries(0x10, 0x10)
	assert.Equal(t, uintptr(0), start)
	assert.Equal(t, uintptr(0x20), size)
}

func TestEndOfPage(t *testing.T) {
	start, size := calcBoundaries(pageSize-0x10, 0x10)
	assert.Equal(t, uintptr(0), start)
	assert.Equal(t, pageSize, size)
}

func TestTwoPages(t *testing.T) {
	start, size := calcBoundaries(2*pageSize-0x4, 0x10)
	assert.Equal(t, pageSize, start)
	assert.Equal(t, pageSize+0x10-0x4, size)
}
