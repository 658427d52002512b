package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoise_Deterministic(t *testing.T) {
	a := NewNoise(42)
	b := NewNoise(42)

	for i := 0; i < 50; i++ {
		x := float64(i) * 0.37
		y := float64(i) * 0.11
		assert.Equal(t, a.Noise2D(x, y), b.Noise2D(x, y), "Одинаковый сид должен давать одинаковый шум")

		v := a.Noise2D(x, y)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
	assert.Equal(t, int64(42), a.Seed())
}
