package loaders

import (
	"fmt"
	"io"
	"os"

	"github.com/spaghettifunk/framegraph/engine/core"
)

// SPIRVMagic is the first word of every little-endian SPIR-V module.
const SPIRVMagic uint32 = 0x07230203

// BinaryLoader reads compiled SPIR-V modules.
type BinaryLoader struct{}

func (bl *BinaryLoader) Load(path string) ([]uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, core.ErrShaderRead, err)
	}
	defer f.Close()

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, core.ErrShaderRead, err)
	}

	code, err := bytesToBytecode(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return code, nil
}

// bytesToBytecode decodes little-endian words. The module must be a whole
// number of words and start with the SPIR-V magic number.
func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("size %d is not a positive multiple of 4: %w", len(b), core.ErrShaderRead)
	}
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}
	if byteCode[0] != SPIRVMagic {
		return nil, fmt.Errorf("bad magic %#08x: %w", byteCode[0], core.ErrShaderRead)
	}
	return byteCode, nil
}
