package voxel

import (
	"sync"

	"github.com/annel0/voxel-stream/internal/vec"
)

// Jagged рваный массив [x][y][z]: каждая ось выделяется только при записи не-воздуха
type Jagged struct {
	loadState

	mu     sync.RWMutex
	bounds vec.Vec3
	voxels [][][]Type
	count  int
}

// NewJagged создает пустое рваное хранилище
func NewJagged(bounds vec.Vec3) *Jagged {
	return &Jagged{bounds: bounds}
}

func (j *Jagged) Kind() Kind       { return KindJagged }
func (j *Jagged) Bounds() vec.Vec3 { return j.bounds }

func (j *Jagged) Get(loc vec.Vec3) (Type, error) {
	if !loc.IsWithinBounds(j.bounds) {
		return Air, outOfRange(loc, j.bounds)
	}

	j.mu.RLock()
	defer j.mu.RUnlock()

	if loc.X >= len(j.voxels) {
		return Air, nil
	}
	plane := j.voxels[loc.X]
	if loc.Y >= len(plane) {
		return Air, nil
	}
	column := plane[loc.Y]
	if loc.Z >= len(column) {
		return Air, nil
	}
	return column[loc.Z], nil
}

func (j *Jagged) Set(loc vec.Vec3, t Type) error {
	if !loc.IsWithinBounds(j.bounds) {
		return outOfRange(loc, j.bounds)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if t == Air {
		// Воздух никогда не вызывает выделения памяти
		if loc.X >= len(j.voxels) || loc.Y >= len(j.voxels[loc.X]) || loc.Z >= len(j.voxels[loc.X][loc.Y]) {
			return nil
		}
		if j.voxels[loc.X][loc.Y][loc.Z] != Air {
			j.count--
		}
		j.voxels[loc.X][loc.Y][loc.Z] = Air
		return nil
	}

	if loc.X >= len(j.voxels) {
		j.voxels = grow(j.voxels, loc.X+1)
	}
	if loc.Y >= len(j.voxels[loc.X]) {
		j.voxels[loc.X] = grow(j.voxels[loc.X], loc.Y+1)
	}
	if loc.Z >= len(j.voxels[loc.X][loc.Y]) {
		j.voxels[loc.X][loc.Y] = grow(j.voxels[loc.X][loc.Y], loc.Z+1)
	}

	if j.voxels[loc.X][loc.Y][loc.Z] == Air {
		j.count++
	}
	j.voxels[loc.X][loc.Y][loc.Z] = t
	return nil
}

func grow[T any](s []T, n int) []T {
	if n <= len(s) {
		return s
	}
	return append(s, make([]T, n-len(s))...)
}

func (j *Jagged) IsEmpty() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.count == 0
}

func (j *Jagged) IsFull() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.count == j.bounds.Volume()
}

func (j *Jagged) Count() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.count
}

func (j *Jagged) ForEachNonAir(fn func(loc vec.Vec3, t Type)) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	for x, plane := range j.voxels {
		for y, column := range plane {
			for z, t := range column {
				if t != Air {
					fn(vec.Vec3{X: x, Y: y, Z: z}, t)
				}
			}
		}
	}
}
