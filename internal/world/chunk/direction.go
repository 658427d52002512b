package chunk

import "github.com/annel0/voxel-stream/internal/vec"

// Direction одно из шести осевых направлений к соседнему чанку
type Direction uint8

const (
	East  Direction = iota // +X
	West                   // -X
	Above                  // +Y
	Below                  // -Y
	North                  // +Z
	South                  // -Z
)

// Directions все направления в фиксированном порядке
var Directions = [6]Direction{East, West, Above, Below, North, South}

var offsets = [6]vec.Vec3{
	East:  {X: 1},
	West:  {X: -1},
	Above: {Y: 1},
	Below: {Y: -1},
	North: {Z: 1},
	South: {Z: -1},
}

// Offset смещение соседа в координатах чанков
func (d Direction) Offset() vec.Vec3 {
	return offsets[d]
}

// Reverse противоположное направление
func (d Direction) Reverse() Direction {
	// Пары идут подряд: East/West, Above/Below, North/South
	return d ^ 1
}

func (d Direction) String() string {
	switch d {
	case East:
		return "east"
	case West:
		return "west"
	case Above:
		return "above"
	case Below:
		return "below"
	case North:
		return "north"
	case South:
		return "south"
	default:
		return "unknown"
	}
}

// DirectionOf возвращает направление для единичного осевого смещения
func DirectionOf(offset vec.Vec3) (Direction, bool) {
	for _, d := range Directions {
		if offsets[d] == offset {
			return d, true
		}
	}
	return 0, false
}
