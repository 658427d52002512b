package terrain

import (
	"math"

	"github.com/annel0/voxel-stream/internal/util"
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
)

// PerlinSource холмистый рельеф по двумерному шуму Перлина
type PerlinSource struct {
	counter

	noise      *util.Noise
	Scale      float64 // Масштаб шума по горизонтали
	BaseHeight int     // Минимальная высота поверхности
	Amplitude  int     // Размах холмов
	DirtDepth  int     // Толщина слоя земли под травой
}

// NewPerlinSource создает источник с параметрами по умолчанию
func NewPerlinSource(seed int64) *PerlinSource {
	return &PerlinSource{
		noise:      util.NewNoise(seed),
		Scale:      0.01,
		BaseHeight: 16,
		Amplitude:  48,
		DirtDepth:  3,
	}
}

func (p *PerlinSource) Seed() int64 { return p.noise.Seed() }

// Height возвращает высоту поверхности для колонки (x, z)
func (p *PerlinSource) Height(column vec.Vec2) int {
	n := p.noise.Noise2D(float64(column.X)*p.Scale, float64(column.Y)*p.Scale)
	return p.BaseHeight + int(math.Round(n*float64(p.Amplitude)))
}

func (p *PerlinSource) Generate(global vec.Vec3) voxel.Type {
	p.generated.Add(1)
	return p.layer(global.Y, p.Height(global.ToVec2()))
}

func (p *PerlinSource) layer(y, height int) voxel.Type {
	switch {
	case y > height:
		return Air
	case y == height:
		return Grass
	case y >= height-p.DirtDepth:
		return Dirt
	default:
		return Stone
	}
}

// Fill считает высоту один раз на колонку
func (p *PerlinSource) Fill(chunkLoc vec.Vec3, s voxel.Storage) error {
	bounds := s.Bounds()
	origin := chunkLoc.Mul(bounds)
	p.generated.Add(int64(bounds.Volume()))

	for x := 0; x < bounds.X; x++ {
		for z := 0; z < bounds.Z; z++ {
			height := p.Height(vec.Vec2{X: origin.X + x, Y: origin.Z + z})
			top := min(height-origin.Y, bounds.Y-1)
			for ly := 0; ly <= top; ly++ {
				if err := s.Set(vec.Vec3{X: x, Y: ly, Z: z}, p.layer(origin.Y+ly, height)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
