package chunk

import (
	"sync"

	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
	"github.com/annel0/voxel-stream/internal/world/mesh"
)

// Store общее хранилище данных чанков уровня: координата -> воксели и координата -> меш.
// Каждая карта защищена собственным RWMutex. На координату хранится не больше одной записи,
// последняя запись побеждает.
type Store struct {
	voxelsMu sync.RWMutex
	voxels   map[vec.Vec3]voxel.Storage

	meshesMu sync.RWMutex
	meshes   map[vec.Vec3]*mesh.Mesh
}

// NewStore создает пустое хранилище
func NewStore() *Store {
	return &Store{
		voxels: make(map[vec.Vec3]voxel.Storage),
		meshes: make(map[vec.Vec3]*mesh.Mesh),
	}
}

// GetVoxels возвращает воксели чанка
func (s *Store) GetVoxels(loc vec.Vec3) (voxel.Storage, bool) {
	s.voxelsMu.RLock()
	defer s.voxelsMu.RUnlock()
	v, ok := s.voxels[loc]
	return v, ok
}

// SetVoxels записывает воксели чанка
func (s *Store) SetVoxels(loc vec.Vec3, v voxel.Storage) {
	s.voxelsMu.Lock()
	s.voxels[loc] = v
	s.voxelsMu.Unlock()
}

// RemoveVoxels удаляет воксели чанка и возвращает удаленное значение
func (s *Store) RemoveVoxels(loc vec.Vec3) (voxel.Storage, bool) {
	s.voxelsMu.Lock()
	defer s.voxelsMu.Unlock()
	v, ok := s.voxels[loc]
	delete(s.voxels, loc)
	return v, ok
}

// IsLoaded проверяет, что воксели чанка есть и помечены загруженными
func (s *Store) IsLoaded(loc vec.Vec3) bool {
	v, ok := s.GetVoxels(loc)
	return ok && v != nil && v.IsLoaded()
}

// VoxelCount число чанков с вокселями
func (s *Store) VoxelCount() int {
	s.voxelsMu.RLock()
	defer s.voxelsMu.RUnlock()
	return len(s.voxels)
}

// VoxelLocations координаты всех чанков с вокселями
func (s *Store) VoxelLocations() []vec.Vec3 {
	s.voxelsMu.RLock()
	defer s.voxelsMu.RUnlock()
	locs := make([]vec.Vec3, 0, len(s.voxels))
	for loc := range s.voxels {
		locs = append(locs, loc)
	}
	return locs
}

// MeshLocations координаты всех чанков с мешем
func (s *Store) MeshLocations() []vec.Vec3 {
	s.meshesMu.RLock()
	defer s.meshesMu.RUnlock()
	locs := make([]vec.Vec3, 0, len(s.meshes))
	for loc := range s.meshes {
		locs = append(locs, loc)
	}
	return locs
}

// GetMesh возвращает меш чанка
func (s *Store) GetMesh(loc vec.Vec3) (*mesh.Mesh, bool) {
	s.meshesMu.RLock()
	defer s.meshesMu.RUnlock()
	m, ok := s.meshes[loc]
	return m, ok
}

// SetMesh записывает меш чанка
func (s *Store) SetMesh(loc vec.Vec3, m *mesh.Mesh) {
	s.meshesMu.Lock()
	s.meshes[loc] = m
	s.meshesMu.Unlock()
}

// RemoveMesh удаляет меш чанка
func (s *Store) RemoveMesh(loc vec.Vec3) (*mesh.Mesh, bool) {
	s.meshesMu.Lock()
	defer s.meshesMu.Unlock()
	m, ok := s.meshes[loc]
	delete(s.meshes, loc)
	return m, ok
}

// MeshCount число чанков с мешем
func (s *Store) MeshCount() int {
	s.meshesMu.RLock()
	defer s.meshesMu.RUnlock()
	return len(s.meshes)
}
