package mesh

import (
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
)

// Color цвет вершины RGBA
type Color struct {
	R, G, B, A uint8
}

// Mesh поверхность чанка, готовая к передаче рендереру
type Mesh struct {
	Vertices  []vec.Vec3F // Вершины в локальных координатах чанка
	Colors    []Color     // Цвет на каждую вершину
	Triangles []int       // Индексы вершин, по три на треугольник
}

// IsEmpty возвращает true, если в меше нет ни одного треугольника
func (m *Mesh) IsEmpty() bool {
	return m == nil || len(m.Triangles) == 0
}

// TriangleCount число треугольников
func (m *Mesh) TriangleCount() int {
	if m == nil {
		return 0
	}
	return len(m.Triangles) / 3
}

// Volume объем вокселей, который читает генератор меша.
// Voxel принимает локальные координаты, в том числе за пределами [0, Diameter):
// такие обращения обслуживают соседние чанки.
type Volume interface {
	Location() vec.Vec3
	Diameter() int
	IsEmpty() bool
	Voxel(local vec.Vec3) voxel.Type
}

// SolidVoxels объем, который умеет сам перечислить свои твердые воксели
type SolidVoxels interface {
	ForEachSolid(fn func(local vec.Vec3, t voxel.Type))
}

// Generator строит меш по чанку с двумя кольцами соседей
type Generator interface {
	Generate(v Volume) *Mesh
}

// Palette возвращает цвет для типа вокселя
type Palette func(t voxel.Type) Color

// GrayPalette палитра по умолчанию: оттенок серого по значению типа
func GrayPalette(t voxel.Type) Color {
	shade := uint8(64 + int(t)*32%192)
	return Color{R: shade, G: shade, B: shade, A: 255}
}
