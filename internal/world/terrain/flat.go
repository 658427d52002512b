package terrain

import (
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
)

// DefaultSeaLevel уровень моря равнины по умолчанию
const DefaultSeaLevel = 30

// FlatPlainsSource плоская равнина: трава на уровне моря, под ней слой земли, ниже камень
type FlatPlainsSource struct {
	counter

	seed      int64
	SeaLevel  int
	DirtDepth int
}

// NewFlatPlainsSource создает плоскую равнину
func NewFlatPlainsSource(seed int64) *FlatPlainsSource {
	return &FlatPlainsSource{seed: seed, SeaLevel: DefaultSeaLevel, DirtDepth: 3}
}

func (f *FlatPlainsSource) Seed() int64 { return f.seed }

func (f *FlatPlainsSource) Generate(global vec.Vec3) voxel.Type {
	f.generated.Add(1)
	return f.layer(global.Y)
}

func (f *FlatPlainsSource) layer(y int) voxel.Type {
	switch {
	case y > f.SeaLevel:
		return Air
	case y == f.SeaLevel:
		return Grass
	case y > f.SeaLevel-1-f.DirtDepth:
		return Dirt
	default:
		return Stone
	}
}

// Fill заполняет только слои ниже уровня моря
func (f *FlatPlainsSource) Fill(chunkLoc vec.Vec3, s voxel.Storage) error {
	bounds := s.Bounds()
	f.generated.Add(int64(bounds.Volume()))

	originY := chunkLoc.Y * bounds.Y
	for ly := 0; ly < bounds.Y; ly++ {
		t := f.layer(originY + ly)
		if t == Air {
			break
		}
		for x := 0; x < bounds.X; x++ {
			for z := 0; z < bounds.Z; z++ {
				if err := s.Set(vec.Vec3{X: x, Y: ly, Z: z}, t); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
