package mesh

import (
	"testing"

	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
	"github.com/stretchr/testify/assert"
)

// mapVolume объем на словаре, всё за его пределами считается воздухом
type mapVolume struct {
	diameter int
	voxels   map[vec.Vec3]voxel.Type
}

func (m *mapVolume) Location() vec.Vec3 { return vec.Zero }
func (m *mapVolume) Diameter() int      { return m.diameter }
func (m *mapVolume) IsEmpty() bool      { return len(m.voxels) == 0 }
func (m *mapVolume) Voxel(local vec.Vec3) voxel.Type {
	return m.voxels[local]
}

func TestFaceCuller_SingleVoxel(t *testing.T) {
	v := &mapVolume{diameter: 4, voxels: map[vec.Vec3]voxel.Type{vec.New(1, 1, 1): 2}}

	m := NewFaceCuller(nil).Generate(v)
	assert.Equal(t, 24, len(m.Vertices), "6 граней по 4 вершины")
	assert.Equal(t, 12, m.TriangleCount(), "6 граней по 2 треугольника")
	assert.Len(t, m.Colors, len(m.Vertices))
	assert.False(t, m.IsEmpty())
}

func TestFaceCuller_SharedFaceIsCulled(t *testing.T) {
	v := &mapVolume{diameter: 4, voxels: map[vec.Vec3]voxel.Type{
		vec.New(1, 1, 1): 2,
		vec.New(2, 1, 1): 2,
	}}

	m := NewFaceCuller(nil).Generate(v)
	assert.Equal(t, 10*2, m.TriangleCount(), "Общая грань двух кубов не рисуется")
}

func TestFaceCuller_NeighborOutsideChunk(t *testing.T) {
	// Воксель на границе, сосед в соседнем чанке твердый
	v := &mapVolume{diameter: 2, voxels: map[vec.Vec3]voxel.Type{
		vec.New(1, 0, 0): 2,
		vec.New(2, 0, 0): 2,
	}}

	m := NewFaceCuller(nil).Generate(v)
	assert.Equal(t, 5*2, m.TriangleCount(), "Грань к твердому соседу за границей отсекается")
}

func TestFaceCuller_EmptyVolume(t *testing.T) {
	m := NewFaceCuller(nil).Generate(&mapVolume{diameter: 4, voxels: map[vec.Vec3]voxel.Type{}})
	assert.True(t, m.IsEmpty())

	var nilMesh *Mesh
	assert.True(t, nilMesh.IsEmpty())
	assert.Equal(t, 0, nilMesh.TriangleCount())
}
