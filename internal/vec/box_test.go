package vec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointSet(points []Vec3) map[Vec3]struct{} {
	set := make(map[Vec3]struct{}, len(points))
	for _, p := range points {
		set[p] = struct{}{}
	}
	return set
}

func TestBoxDifference_Slab(t *testing.T) {
	a := Box{Min: New(0, 0, 0), Max: New(2, 2, 2)}
	b := Box{Min: New(1, 0, 0), Max: New(3, 2, 2)}

	diff := a.DifferencePoints(b)
	require.Len(t, diff, 9, "A-B должно быть слоем x=0 из 9 точек")
	for _, p := range diff {
		assert.Equal(t, 0, p.X, "Точка %v должна лежать в слое x=0", p)
	}
}

func TestBoxDifference_Properties(t *testing.T) {
	cases := []struct {
		name string
		a, b Box
	}{
		{"сдвиг по x", NewBox(New(0, 0, 0), New(4, 2, 4)), NewBox(New(2, 0, 0), New(6, 2, 4))},
		{"диагональ", NewBox(New(0, 0, 0), New(5, 5, 5)), NewBox(New(3, 2, 4), New(8, 9, 7))},
		{"вложенная", NewBox(New(0, 0, 0), New(5, 5, 5)), NewBox(New(1, 1, 1), New(3, 3, 3))},
		{"без пересечения", NewBox(New(0, 0, 0), New(1, 1, 1)), NewBox(New(5, 5, 5), New(6, 6, 6))},
		{"поглощающая", NewBox(New(1, 1, 1), New(2, 2, 2)), NewBox(New(0, 0, 0), New(3, 3, 3))},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			diff := pointSet(tc.a.DifferencePoints(tc.b))
			inter := pointSet(tc.a.Intersect(tc.b).Points())

			// Разность не пересекается с B
			for p := range diff {
				assert.False(t, tc.b.Contains(p), "Точка %v не должна входить в B", p)
			}

			// Разность ∪ (A ∩ B) == A
			union := make(map[Vec3]struct{}, len(diff)+len(inter))
			for p := range diff {
				union[p] = struct{}{}
			}
			for p := range inter {
				union[p] = struct{}{}
			}
			assert.Equal(t, pointSet(tc.a.Points()), union, "Объединение должно совпасть с A")
			assert.Len(t, diff, tc.a.Volume()-len(inter), "Части разности не должны перекрываться")
		})
	}
}

func TestBoxClampAndVolume(t *testing.T) {
	box := BoxAround(New(1, 0, 98), New(3, 2, 3))
	clamped := box.Clamp(Zero, New(99, 4, 99))

	assert.Equal(t, New(0, 0, 95), clamped.Min)
	assert.Equal(t, New(4, 2, 99), clamped.Max)
	assert.Equal(t, 5*3*5, clamped.Volume())

	empty := Box{Min: New(2, 0, 0), Max: New(1, 0, 0)}
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, 0, empty.Volume())
	assert.Empty(t, empty.Points())
}

func TestVec3Math(t *testing.T) {
	a := New(1, 2, 3)
	b := New(4, -2, 3)

	assert.Equal(t, New(5, 0, 6), a.Add(b))
	assert.Equal(t, New(-3, 4, 0), a.Sub(b))
	assert.Equal(t, New(2, 4, 6), a.Scale(2))
	assert.Equal(t, 4, a.Chebyshev(b))
	assert.InDelta(t, 5.0, a.DistanceTo(b), 1e-9)
	assert.Equal(t, New(-1, 0, 1), New(-1, 63, 64).FloorDiv(64))
	assert.Equal(t, New(-1, 0, 2), Vec3F{X: -0.5, Y: 10, Z: 130}.ToChunk(64))
	assert.True(t, New(0, 4, 99).IsWithinBounds(New(100, 5, 100)))
	assert.False(t, New(0, 5, 99).IsWithinBounds(New(100, 5, 100)))
	assert.Equal(t, "1.2.3", a.SaveString())
}

func BenchmarkBoxDifference(b *testing.B) {
	oldBox := BoxAround(New(50, 2, 50), New(10, 2, 10))
	newBox := BoxAround(New(51, 2, 50), New(10, 2, 10))
	for i := 0; i < b.N; i++ {
		_ = newBox.DifferencePoints(oldBox)
	}
}
