package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNan(t *testing.T) {
	assert.False(t, IsNan(1.))
	assert.True(t, IsNan(math.NaN()))
	assert.False(t, IsNan([]float64{1, 2}))
	assert.True(t, IsNan([]float64{1, math.NaN()}))
	assert.True(t, IsNan([3]float64{0, 0, math.NaN()}))
	assert.False(t, IsNan("nan"))
	assert.Contains(t, GetMemUsage(), "Alloc = ")
}
