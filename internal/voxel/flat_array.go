package voxel

import (
	"sync"

	"github.com/annel0/voxel-stream/internal/vec"
)

// FlatArray плотное хранилище с индексом O(1).
// Массив выделяется целиком при первой записи не-воздуха; nil означает пустой чанк.
type FlatArray struct {
	loadState

	mu     sync.RWMutex
	bounds vec.Vec3
	voxels []Type
	count  int
}

// NewFlatArray создает пустое плоское хранилище
func NewFlatArray(bounds vec.Vec3) *FlatArray {
	return &FlatArray{bounds: bounds}
}

func (f *FlatArray) Kind() Kind       { return KindFlatArray }
func (f *FlatArray) Bounds() vec.Vec3 { return f.bounds }

func (f *FlatArray) index(loc vec.Vec3) int {
	return (loc.X*f.bounds.Y+loc.Y)*f.bounds.Z + loc.Z
}

// Get возвращает воксель
func (f *FlatArray) Get(loc vec.Vec3) (Type, error) {
	if !loc.IsWithinBounds(f.bounds) {
		return Air, outOfRange(loc, f.bounds)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.voxels == nil {
		return Air, nil
	}
	return f.voxels[f.index(loc)], nil
}

// Set записывает воксель и поддерживает счетчик заполненности
func (f *FlatArray) Set(loc vec.Vec3, t Type) error {
	if !loc.IsWithinBounds(f.bounds) {
		return outOfRange(loc, f.bounds)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.voxels == nil {
		if t == Air {
			return nil
		}
		f.voxels = make([]Type, f.bounds.Volume())
	}

	idx := f.index(loc)
	old := f.voxels[idx]
	f.voxels[idx] = t

	switch {
	case old == Air && t != Air:
		f.count++
	case old != Air && t == Air:
		f.count--
	}
	return nil
}

func (f *FlatArray) IsEmpty() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.voxels == nil || f.count == 0
}

func (f *FlatArray) IsFull() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.voxels != nil && f.count == f.bounds.Volume()
}

func (f *FlatArray) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

// ForEachNonAir обходит не-воздушные воксели в порядке индекса
func (f *FlatArray) ForEachNonAir(fn func(loc vec.Vec3, t Type)) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.voxels == nil {
		return
	}
	for idx, t := range f.voxels {
		if t == Air {
			continue
		}
		z := idx % f.bounds.Z
		y := (idx / f.bounds.Z) % f.bounds.Y
		x := idx / (f.bounds.Z * f.bounds.Y)
		fn(vec.Vec3{X: x, Y: y, Z: z}, t)
	}
}
