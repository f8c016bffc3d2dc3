package shader

import (
	"fmt"

	"github.com/gogpu/naga"
)

// CompileSPIRV compiles WGSL source to SPIR-V words with naga. It is used
// to validate assembled stages and by devices that consume SPIR-V.
func CompileSPIRV(wgsl string) ([]uint32, error) {
	spirv, err := naga.Compile(wgsl)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}

	// SPIR-V is a stream of little-endian 32-bit words.
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = uint32(spirv[i*4]) |
			uint32(spirv[i*4+1])<<8 |
			uint32(spirv[i*4+2])<<16 |
			uint32(spirv[i*4+3])<<24
	}
	return words, nil
}
