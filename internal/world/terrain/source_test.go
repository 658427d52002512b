package terrain

import (
	"testing"

	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// columnSource источник без Filler, чтобы проверить повоксельный обход
type columnSource struct{}

func (columnSource) Seed() int64 { return 1 }
func (columnSource) Generate(global vec.Vec3) voxel.Type {
	if global.X == 5 && global.Z == 5 && global.Y < 3 {
		return Stone
	}
	return Air
}

func TestFlatPlains_Layers(t *testing.T) {
	src := NewFlatPlainsSource(7)

	assert.Equal(t, Air, src.Generate(vec.New(0, 31, 0)))
	assert.Equal(t, Grass, src.Generate(vec.New(0, 30, 0)))
	assert.Equal(t, Dirt, src.Generate(vec.New(0, 29, 0)))
	assert.Equal(t, Dirt, src.Generate(vec.New(0, 27, 0)))
	assert.Equal(t, Stone, src.Generate(vec.New(0, 26, 0)))
	assert.Equal(t, int64(5), src.VoxelsGenerated())
	assert.Equal(t, int64(7), src.Seed())
}

func TestFlatPlains_FillMatchesGenerate(t *testing.T) {
	src := NewFlatPlainsSource(1)
	bounds := vec.Splat(8)

	for _, chunkLoc := range []vec.Vec3{vec.New(0, 3, 0), vec.New(1, 4, 2), vec.New(0, 0, 0)} {
		s := voxel.NewFlatArray(bounds)
		require.NoError(t, Fill(src, chunkLoc, s))

		origin := chunkLoc.Mul(bounds)
		vec.NewBox(vec.Zero, bounds.Sub(vec.Splat(1))).ForEach(func(local vec.Vec3) {
			assert.Equal(t, src.layer(origin.Y+local.Y), voxel.MustGet(s, local), "чанк %v, воксель %v", chunkLoc, local)
		})
	}

	above := voxel.NewFlatArray(bounds)
	require.NoError(t, Fill(src, vec.New(0, 10, 0), above))
	assert.True(t, above.IsEmpty(), "Над уровнем моря только воздух")
}

func TestPerlin_FillMatchesGenerate(t *testing.T) {
	src := NewPerlinSource(99)
	src.BaseHeight = 4
	src.Amplitude = 8
	bounds := vec.Splat(8)

	for _, chunkLoc := range []vec.Vec3{vec.New(0, 0, 0), vec.New(3, 1, -2)} {
		s := voxel.NewSparse(bounds)
		require.NoError(t, Fill(src, chunkLoc, s))

		origin := chunkLoc.Mul(bounds)
		vec.NewBox(vec.Zero, bounds.Sub(vec.Splat(1))).ForEach(func(local vec.Vec3) {
			assert.Equal(t, src.Generate(origin.Add(local)), voxel.MustGet(s, local))
		})
	}
}

func TestPerlin_Deterministic(t *testing.T) {
	a := NewPerlinSource(5)
	b := NewPerlinSource(5)
	for x := 0; x < 20; x++ {
		col := vec.Vec2{X: x * 13, Y: x * 7}
		assert.Equal(t, a.Height(col), b.Height(col))
	}
}

func TestFill_GenericSource(t *testing.T) {
	s := voxel.NewJagged(vec.Splat(8))
	require.NoError(t, Fill(columnSource{}, vec.Zero, s))
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, Stone, voxel.MustGet(s, vec.New(5, 2, 5)))
}

func TestColorOf(t *testing.T) {
	assert.Equal(t, uint8(0), ColorOf(Air).A)
	assert.Equal(t, ColorOf(Placeholder), ColorOf(200), "Неизвестный тип красится как Placeholder")
	assert.Equal(t, "grass", NameOf(Grass))
}
