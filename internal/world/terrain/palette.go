package terrain

import (
	"github.com/annel0/voxel-stream/internal/voxel"
	"github.com/annel0/voxel-stream/internal/world/mesh"
)

// Типы блоков ландшафта
const (
	Air         voxel.Type = 0
	Placeholder voxel.Type = 1
	Stone       voxel.Type = 2
	Dirt        voxel.Type = 3
	Grass       voxel.Type = 4
)

var colors = map[voxel.Type]mesh.Color{
	Air:         {R: 0, G: 0, B: 0, A: 0},
	Placeholder: {R: 128, G: 0, B: 128, A: 255},
	Stone:       {R: 119, G: 136, B: 153, A: 255},
	Dirt:        {R: 165, G: 42, B: 42, A: 255},
	Grass:       {R: 86, G: 160, B: 60, A: 255},
}

// ColorOf возвращает цвет блока ландшафта. Неизвестные типы красятся как Placeholder.
func ColorOf(t voxel.Type) mesh.Color {
	if c, ok := colors[t]; ok {
		return c
	}
	return colors[Placeholder]
}

// NameOf возвращает имя блока
func NameOf(t voxel.Type) string {
	switch t {
	case Air:
		return "air"
	case Placeholder:
		return "placeholder"
	case Stone:
		return "stone"
	case Dirt:
		return "dirt"
	case Grass:
		return "grass"
	default:
		return "unknown"
	}
}

var _ mesh.Palette = ColorOf
