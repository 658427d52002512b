package chunk

import (
	"errors"
	"fmt"

	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
	"github.com/annel0/voxel-stream/internal/world/mesh"
)

// Diameter длина ребра чанка в вокселях
const Diameter = 64

// MaxNeighborDepth предел глубины разрешения соседей (два кольца)
const MaxNeighborDepth = 2

var (
	// ErrNotLoaded запись в чанк без вокселей
	ErrNotLoaded = errors.New("воксели чанка не загружены")
	// ErrNoNeighbor запись за границу чанка, у которого не разрешены соседи
	ErrNoNeighbor = errors.New("сосед чанка не разрешен")
	// ErrReadOnly запись в пустой чанк за пределами уровня
	ErrReadOnly = errors.New("чанк за пределами уровня доступен только для чтения")
)

// emptyVoxels общее пустое хранилище для чанков за пределами уровня.
// Доступно только для чтения: его разделяют все пустые чанки.
var emptyVoxels voxel.Storage = readOnlyVoxels{Storage: func() voxel.Storage {
	s := voxel.NewSparse(vec.Splat(Diameter))
	s.SetLoaded(true)
	return s
}()}

// readOnlyVoxels запрещает запись в обернутое хранилище
type readOnlyVoxels struct {
	voxel.Storage
}

func (readOnlyVoxels) Set(vec.Vec3, voxel.Type) error { return ErrReadOnly }
func (readOnlyVoxels) SetLoaded(bool)                 {}

// Options определяет, что разрешается при открытии чанка
type Options struct {
	WithMesh               bool
	WithNeighbors          bool
	WithNeighborsNeighbors bool
}

// Depth возвращает глубину разрешения соседей
func (o Options) Depth() int {
	switch {
	case o.WithNeighborsNeighbors:
		return 2
	case o.WithNeighbors:
		return 1
	default:
		return 0
	}
}

// Chunk легкий дескриптор: координата плюс ссылка на хранилище уровня.
// Соседи вычисляются по координатам, указателей друг на друга чанки не хранят.
type Chunk struct {
	location    vec.Vec3
	store       *Store
	levelBounds vec.Vec3

	voxels    voxel.Storage
	mesh      *mesh.Mesh
	depth     int
	neighbors [6]*Chunk
	sentinel  bool
}

// Open открывает чанк уровня с границами levelBounds.
// Для координаты вне уровня возвращается пустой загруженный чанк, хранилище не трогается.
func Open(store *Store, levelBounds, loc vec.Vec3, opts Options) *Chunk {
	return open(store, levelBounds, loc, opts.WithMesh, min(opts.Depth(), MaxNeighborDepth))
}

func open(store *Store, levelBounds, loc vec.Vec3, withMesh bool, depth int) *Chunk {
	if !loc.IsWithinBounds(levelBounds) {
		return Empty(loc)
	}

	c := &Chunk{
		location:    loc,
		store:       store,
		levelBounds: levelBounds,
		depth:       depth,
	}
	if v, ok := store.GetVoxels(loc); ok {
		c.voxels = v
	}
	if withMesh {
		if m, ok := store.GetMesh(loc); ok {
			c.mesh = m
		}
	}
	if depth > 0 {
		for _, d := range Directions {
			c.neighbors[d] = open(store, levelBounds, loc.Add(d.Offset()), withMesh, depth-1)
		}
	}
	return c
}

// Empty возвращает пустой загруженный чанк для координаты вне уровня.
// Его соседи тоже пустые, поэтому обход соседей всегда конечен.
func Empty(loc vec.Vec3) *Chunk {
	return &Chunk{
		location: loc,
		voxels:   emptyVoxels,
		depth:    MaxNeighborDepth,
		sentinel: true,
	}
}

// Location координата чанка
func (c *Chunk) Location() vec.Vec3 { return c.location }

// Diameter длина ребра чанка
func (c *Chunk) Diameter() int { return Diameter }

// Depth глубина разрешенных соседей
func (c *Chunk) Depth() int { return c.depth }

// IsSentinel true для пустого чанка за пределами уровня
func (c *Chunk) IsSentinel() bool { return c.sentinel }

// Voxels хранилище вокселей, может быть nil
func (c *Chunk) Voxels() voxel.Storage { return c.voxels }

// Mesh меш, прочитанный при открытии с WithMesh
func (c *Chunk) Mesh() *mesh.Mesh { return c.mesh }

// Equals сравнивает два дескриптора по координате и хранилищу
func (c *Chunk) Equals(other *Chunk) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.location == other.location && c.store == other.store && c.sentinel == other.sentinel
}

func (c *Chunk) IsLoaded() bool {
	return c.voxels != nil && c.voxels.IsLoaded()
}

func (c *Chunk) IsEmpty() bool {
	return c.voxels == nil || c.voxels.IsEmpty()
}

func (c *Chunk) IsFull() bool {
	return c.voxels != nil && c.voxels.IsFull()
}

// IsMeshed true, если при открытии у чанка был меш
func (c *Chunk) IsMeshed() bool {
	return c.mesh != nil
}

// Neighbor возвращает соседа в направлении d.
// Без разрешенных соседей (глубина 0) возвращает nil.
func (c *Chunk) Neighbor(d Direction) *Chunk {
	if c.sentinel {
		return Empty(c.location.Add(d.Offset()))
	}
	return c.neighbors[d]
}

// NeighborsAreLoaded проверяет первое кольцо соседей по хранилищу.
// Соседи за пределами уровня считаются загруженными.
func (c *Chunk) NeighborsAreLoaded() bool {
	if c.sentinel {
		return true
	}
	for _, d := range Directions {
		if !c.isLoadedAt(c.location.Add(d.Offset())) {
			return false
		}
	}
	return true
}

// NeighborsNeighborsAreLoaded проверяет соседей соседей (второе кольцо)
func (c *Chunk) NeighborsNeighborsAreLoaded() bool {
	if c.sentinel {
		return true
	}
	for _, loc := range SecondRing(c.location) {
		if !c.isLoadedAt(loc) {
			return false
		}
	}
	return true
}

func (c *Chunk) isLoadedAt(loc vec.Vec3) bool {
	if !loc.IsWithinBounds(c.levelBounds) {
		return true
	}
	return c.store.IsLoaded(loc)
}

// Get возвращает воксель по локальной координате.
// Координаты вне [0, Diameter) читаются у соседа; без соседа возвращается воздух.
func (c *Chunk) Get(local vec.Vec3) voxel.Type {
	if local.IsWithinBounds(vec.Splat(Diameter)) {
		if c.voxels == nil {
			return voxel.Air
		}
		return voxel.MustGet(c.voxels, local)
	}

	n, rest := c.delegate(local)
	if n == nil {
		return voxel.Air
	}
	return n.Get(rest)
}

// Voxel реализует mesh.Volume
func (c *Chunk) Voxel(local vec.Vec3) voxel.Type {
	return c.Get(local)
}

// Set записывает воксель по локальной координате, делегируя соседу за границей
func (c *Chunk) Set(local vec.Vec3, t voxel.Type) error {
	if c.sentinel {
		return fmt.Errorf("%w: %v", ErrReadOnly, c.location)
	}
	if local.IsWithinBounds(vec.Splat(Diameter)) {
		if c.voxels == nil {
			return fmt.Errorf("%w: %v", ErrNotLoaded, c.location)
		}
		return c.voxels.Set(local, t)
	}

	n, rest := c.delegate(local)
	if n == nil {
		return fmt.Errorf("%w: %v из %v", ErrNoNeighbor, local, c.location)
	}
	return n.Set(rest, t)
}

// delegate выбирает соседа по первой оси, вышедшей за границу.
// Остальные оси сосед разрешает сам.
func (c *Chunk) delegate(local vec.Vec3) (*Chunk, vec.Vec3) {
	var offset vec.Vec3
	switch {
	case local.X < 0:
		offset.X = -1
	case local.X >= Diameter:
		offset.X = 1
	case local.Y < 0:
		offset.Y = -1
	case local.Y >= Diameter:
		offset.Y = 1
	case local.Z < 0:
		offset.Z = -1
	default:
		offset.Z = 1
	}

	d, _ := DirectionOf(offset)
	n := c.Neighbor(d)
	if n == nil {
		return nil, local
	}
	return n, local.Sub(offset.Scale(Diameter))
}

// SecondRing возвращает уникальные координаты соседей соседей, без самой точки
func SecondRing(loc vec.Vec3) []vec.Vec3 {
	seen := make(map[vec.Vec3]struct{}, 25)
	ring := make([]vec.Vec3, 0, 24)
	for _, d1 := range Directions {
		first := loc.Add(d1.Offset())
		for _, d2 := range Directions {
			p := first.Add(d2.Offset())
			if p == loc {
				continue
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			ring = append(ring, p)
		}
	}
	return ring
}

var _ mesh.Volume = (*Chunk)(nil)

// ForEachSolid перечисляет твердые воксели самого чанка
func (c *Chunk) ForEachSolid(fn func(local vec.Vec3, t voxel.Type)) {
	if c.voxels == nil {
		return
	}
	c.voxels.ForEachNonAir(fn)
}

var _ mesh.SolidVoxels = (*Chunk)(nil)
