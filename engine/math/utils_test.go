package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, Clamp(9, 0, 5))
	assert.Equal(t, 0.5, Clamp(0.5, 0.0, 1.0))
	assert.Equal(t, uint32(2), Clamp(uint32(1), 2, 4))
}

func TestDivCeil(t *testing.T) {
	assert.Equal(t, 160, DivCeil(1280, 8))
	assert.Equal(t, uint32(91), DivCeil(uint32(721), 8))
	assert.Equal(t, 0, DivCeil(10, 0))
}
