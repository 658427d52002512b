package mesh

import (
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
)

// face грань куба: нормаль и четыре угла единичного куба против часовой стрелки
type face struct {
	normal  vec.Vec3
	corners [4]vec.Vec3F
}

var faces = [6]face{
	{normal: vec.New(1, 0, 0), corners: [4]vec.Vec3F{{X: 1, Y: 0, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 1, Y: 1, Z: 1}, {X: 1, Y: 0, Z: 1}}},
	{normal: vec.New(-1, 0, 0), corners: [4]vec.Vec3F{{X: 0, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 0}, {X: 0, Y: 0, Z: 0}}},
	{normal: vec.New(0, 1, 0), corners: [4]vec.Vec3F{{X: 0, Y: 1, Z: 0}, {X: 0, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 0}}},
	{normal: vec.New(0, -1, 0), corners: [4]vec.Vec3F{{X: 0, Y: 0, Z: 1}, {X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 1}}},
	{normal: vec.New(0, 0, 1), corners: [4]vec.Vec3F{{X: 1, Y: 0, Z: 1}, {X: 1, Y: 1, Z: 1}, {X: 0, Y: 1, Z: 1}, {X: 0, Y: 0, Z: 1}}},
	{normal: vec.New(0, 0, -1), corners: [4]vec.Vec3F{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: 1, Y: 1, Z: 0}, {X: 1, Y: 0, Z: 0}}},
}

// FaceCuller простейший генератор: по квадрату на каждую грань твердого вокселя,
// соседствующую с воздухом. Соседи за границей чанка читаются через Volume.
type FaceCuller struct {
	Palette Palette
}

// NewFaceCuller создает генератор с палитрой (nil = GrayPalette)
func NewFaceCuller(palette Palette) *FaceCuller {
	if palette == nil {
		palette = GrayPalette
	}
	return &FaceCuller{Palette: palette}
}

// Generate строит меш для объема
func (fc *FaceCuller) Generate(v Volume) *Mesh {
	m := &Mesh{}
	if v.IsEmpty() {
		return m
	}

	for _, s := range solids(v) {
		for i := range faces {
			if v.Voxel(s.local.Add(faces[i].normal)) != voxel.Air {
				continue
			}
			fc.addQuad(m, s.local.ToFloat(), &faces[i], fc.Palette(s.t))
		}
	}
	return m
}

type solid struct {
	local vec.Vec3
	t     voxel.Type
}

// solids собирает твердые воксели до построения граней,
// чтобы чтение соседей не шло под блокировкой обхода
func solids(v Volume) []solid {
	var out []solid
	if sv, ok := v.(SolidVoxels); ok {
		sv.ForEachSolid(func(local vec.Vec3, t voxel.Type) {
			out = append(out, solid{local: local, t: t})
		})
		return out
	}

	d := v.Diameter()
	for x := 0; x < d; x++ {
		for y := 0; y < d; y++ {
			for z := 0; z < d; z++ {
				local := vec.Vec3{X: x, Y: y, Z: z}
				if t := v.Voxel(local); t != voxel.Air {
					out = append(out, solid{local: local, t: t})
				}
			}
		}
	}
	return out
}

func (fc *FaceCuller) addQuad(m *Mesh, origin vec.Vec3F, f *face, color Color) {
	base := len(m.Vertices)
	for _, corner := range f.corners {
		m.Vertices = append(m.Vertices, origin.Add(corner))
		m.Colors = append(m.Colors, color)
	}
	m.Triangles = append(m.Triangles,
		base, base+1, base+2,
		base, base+2, base+3,
	)
}
