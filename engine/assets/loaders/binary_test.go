package loaders

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/framegraph/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesToBytecode(t *testing.T) {
	code, err := bytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []uint32{SPIRVMagic, 0x00010000}, code)

	for _, b := range [][]byte{
		nil,
		{0x03, 0x02, 0x23},
		{0x03, 0x02, 0x23, 0x07, 0x01},
		{0x07, 0x23, 0x02, 0x03},
	} {
		_, err := bytesToBytecode(b)
		assert.ErrorIs(t, err, core.ErrShaderRead, "%v", b)
	}
}

func TestBinaryLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fill.comp.spv")
	require.NoError(t, os.WriteFile(path, []byte{0x03, 0x02, 0x23, 0x07}, 0o644))

	code, err := (&BinaryLoader{}).Load(path)
	require.NoError(t, err)
	assert.Equal(t, []uint32{SPIRVMagic}, code)

	_, err = (&BinaryLoader{}).Load(filepath.Join(dir, "missing.spv"))
	assert.ErrorIs(t, err, core.ErrShaderRead)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
