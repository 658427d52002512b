package aperture

import (
	"context"
	"sync/atomic"

	"github.com/annel0/voxel-stream/internal/eventbus"
	"github.com/annel0/voxel-stream/internal/jobs"
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/world/chunk"
	"github.com/annel0/voxel-stream/internal/world/mesh"
)

// Meshed уровень мешей. Чанк мешится, когда загружены два кольца его соседей.
type Meshed struct {
	base

	mesher mesh.Generator
	queue  *jobs.Queue[vec.Vec3]

	droppedEmpty    atomic.Uint64
	alreadyMeshed   atomic.Uint64
	meshesGenerated atomic.Uint64
	emptyMeshes     atomic.Uint64
}

// NewMeshed создает уровень мешей
func NewMeshed(env Env, cfg Config, mesher mesh.Generator) *Meshed {
	m := &Meshed{mesher: mesher}
	env.App = env.App.Named("meshed")
	m.init(env, LayerMeshed, cfg, m)

	m.queue = jobs.New(env.App, jobs.Config[vec.Vec3]{
		Name:           "meshed",
		MaxConcurrency: cfg.MaxConcurrency,
		Work:           m.generate,
		IsValid:        m.isValid,
		IsReady:        m.IsReadyToMesh,
		Priority: func(loc vec.Vec3) float64 {
			return m.nearestFocusDistance(loc, 1)
		},
	})
	return m
}

func (m *Meshed) addChunksToLoad(locs []vec.Vec3) {
	if len(locs) == 0 {
		return
	}
	m.received.Add(uint64(len(locs)))
	m.queue.Enqueue(locs...)
}

func (m *Meshed) addChunksToUnload(locs []vec.Vec3) {
	if len(locs) == 0 {
		return
	}
	m.queue.Dequeue(locs...)
	for _, loc := range locs {
		if _, ok := m.env.Store.RemoveMesh(loc); ok {
			m.publish(context.Background(), eventbus.ChunkMeshMovedOutOfFocus, loc)
		}
	}
}

// NotifyOf ставит в очередь загруженные чанки и чанки, которым уровень видимости не нашел меш
func (m *Meshed) NotifyOf(ctx context.Context, ev eventbus.Event) {
	switch ev.Type {
	case eventbus.ChunkDataLoadFinished, eventbus.ChunkMissingMeshWhileActive:
		if m.IsWithinManagedBounds(ev.Chunk) {
			m.queue.Enqueue(ev.Chunk)
		}
	}
}

func (m *Meshed) isValid(loc vec.Vec3) bool {
	if !m.inFocus(loc) {
		return false
	}
	if s, ok := m.env.Store.GetVoxels(loc); ok && s.IsLoaded() && s.IsEmpty() {
		m.droppedEmpty.Add(1)
		return false
	}
	return true
}

// IsReadyToMesh чанк загружен вместе с соседями и соседями соседей.
// Соседи за пределами уровня считаются загруженными.
func (m *Meshed) IsReadyToMesh(loc vec.Vec3) bool {
	c := chunk.Open(m.env.Store, m.env.Bounds, loc, chunk.Options{})
	return c.IsLoaded() && c.NeighborsAreLoaded() && c.NeighborsNeighborsAreLoaded()
}

func (m *Meshed) generate(ctx context.Context, loc vec.Vec3) error {
	if existing, ok := m.env.Store.GetMesh(loc); ok {
		m.alreadyMeshed.Add(1)
		if !existing.IsEmpty() {
			m.publish(ctx, eventbus.ChunkMeshGenerationFinished, loc)
		}
		return nil
	}

	c := chunk.Open(m.env.Store, m.env.Bounds, loc, chunk.Options{WithNeighborsNeighbors: true})
	if c.IsEmpty() {
		// Чанк догрузился пустым между проверками валидности и готовности
		m.droppedEmpty.Add(1)
		return nil
	}
	generated := m.mesher.Generate(c)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !m.IsWithinManagedBounds(loc) {
		// Чанк ушел из фокуса, пока строился меш
		return nil
	}

	m.env.Store.SetMesh(loc, generated)
	m.meshesGenerated.Add(1)
	if generated.IsEmpty() {
		// Пустой меш хранится, чтобы чанк считался обработанным, но события нет
		m.emptyMeshes.Add(1)
		return nil
	}
	m.publish(ctx, eventbus.ChunkMeshGenerationFinished, loc)
	return nil
}

func (m *Meshed) KillAll() {
	m.queue.KillAll()
}

func (m *Meshed) Wait(ctx context.Context) error {
	return m.queue.Wait(ctx)
}

func (m *Meshed) Stats() Stats {
	s := m.baseStats()
	s.DroppedEmpty = m.droppedEmpty.Load()
	s.AlreadyMeshed = m.alreadyMeshed.Load()
	s.MeshesGenerated = m.meshesGenerated.Load()
	s.EmptyMeshes = m.emptyMeshes.Load()
	qs := m.queue.Stats()
	s.Queued = qs.Queued
	s.Queues = map[string]jobs.Stats{m.queue.Name(): qs}
	return s
}

func (m *Meshed) Processing() jobs.Snapshot[vec.Vec3] {
	return m.queue.Snapshot()
}

var _ Aperture = (*Meshed)(nil)
