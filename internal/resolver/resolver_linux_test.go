package resolver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMaps = `55d0c0a00000-55d0c0a02000 r--p 00000000 08:01 1311 /usr/bin/host
55d0c0a02000-55d0c0a08000 r-xp 00002000 08:01 1311 /usr/bin/host
7f1a2b000000-7f1a2b004000 r--p 00000000 08:01 2201 /usr/lib/libluajit-5.1.so.2
7f1a2b004000-7f1a2b070000 r-xp 00004000 08:01 2201 /usr/lib/libluajit-5.1.so.2
7f1a2c000000-7f1a2c001000 rw-p 00000000 00:00 0
7f1a2d000000-7f1a2d002000 r--p 00000000 08:01 3301 /opt/game/My Mods/liblua.so
7ffd1c000000-7ffd1c021000 rw-p 00000000 00:00 0 [stack]
`

func TestFindMappingByBaseName(t *testing.T) {
	m, err := findMapping(strings.NewReader(sampleMaps), "libluajit-5.1.so.2")
	require.NoError(t, err)
	assert.Equal(t, "/usr/lib/libluajit-5.1.so.2", m.path)
	assert.Equal(t, uintptr(0x7f1a2b000000), m.base)
}

func TestFindMappingByPathWithSpaces(t *testing.T) {
	m, err := findMapping(strings.NewReader(sampleMaps), "/opt/game/My Mods/liblua.so")
	require.NoError(t, err)
	assert.Equal(t, uintptr(0x7f1a2d000000), m.base)
}

func TestFindMappingMissing(t *testing.T) {
	_, err := findMapping(strings.NewReader(sampleMaps), "lua51.dll")
	assert.True(t, errors.Is(err, ErrModuleNotFound))

	_, err = findMapping(strings.NewReader(sampleMaps), "[stack]")
	assert.True(t, errors.Is(err, ErrModuleNotFound), "anonymous regions are not modules")
}

func TestResolveUnmappedModule(t *testing.T) {
	_, err := Resolve("lua51.dll", "luaL_loadbufferx")
	assert.True(t, errors.Is(err, ErrModuleNotFound))
}

func TestResolveMissingSymbol(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)

	_, err = System{}.Resolve(filepath.Base(exe), "no_such_symbol_anywhere")
	assert.True(t, errors.Is(err, ErrSymbolNotFound))
}
