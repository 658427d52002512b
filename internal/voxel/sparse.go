package voxel

import (
	"sync"

	"github.com/annel0/voxel-stream/internal/vec"
)

// Sparse хранит только не-воздушные воксели в словаре
type Sparse struct {
	loadState

	mu     sync.RWMutex
	bounds vec.Vec3
	voxels map[vec.Vec3]Type
}

// NewSparse создает пустое разреженное хранилище
func NewSparse(bounds vec.Vec3) *Sparse {
	return &Sparse{
		bounds: bounds,
		voxels: make(map[vec.Vec3]Type),
	}
}

func (s *Sparse) Kind() Kind       { return KindSparse }
func (s *Sparse) Bounds() vec.Vec3 { return s.bounds }

func (s *Sparse) Get(loc vec.Vec3) (Type, error) {
	if !loc.IsWithinBounds(s.bounds) {
		return Air, outOfRange(loc, s.bounds)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voxels[loc], nil
}

func (s *Sparse) Set(loc vec.Vec3, t Type) error {
	if !loc.IsWithinBounds(s.bounds) {
		return outOfRange(loc, s.bounds)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t == Air {
		delete(s.voxels, loc)
		return nil
	}
	s.voxels[loc] = t
	return nil
}

func (s *Sparse) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.voxels) == 0
}

func (s *Sparse) IsFull() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.voxels) == s.bounds.Volume()
}

func (s *Sparse) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.voxels)
}

func (s *Sparse) ForEachNonAir(fn func(loc vec.Vec3, t Type)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for loc, t := range s.voxels {
		fn(loc, t)
	}
}
