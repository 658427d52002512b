package aperture

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/annel0/voxel-stream/internal/eventbus"
	"github.com/annel0/voxel-stream/internal/jobs"
	"github.com/annel0/voxel-stream/internal/vec"
)

// Visible уровень активного представления. Воркер только публикует SetChunkActive,
// снятие активности публикуется сразу при выходе из коробки.
type Visible struct {
	base

	queue *jobs.Queue[vec.Vec3]

	mu       sync.Mutex
	active   map[vec.Vec3]struct{}
	reported map[vec.Vec3]struct{} // Уже запросили меш в этой постановке

	droppedEmpty atomic.Uint64
}

// NewVisible создает уровень видимости
func NewVisible(env Env, cfg Config) *Visible {
	v := &Visible{
		active:   make(map[vec.Vec3]struct{}),
		reported: make(map[vec.Vec3]struct{}),
	}
	env.App = env.App.Named("visible")
	v.init(env, LayerVisible, cfg, v)

	v.queue = jobs.New(env.App, jobs.Config[vec.Vec3]{
		Name:           "visible",
		MaxConcurrency: cfg.MaxConcurrency,
		Work:           v.activate,
		IsValid:        v.isValid,
		IsReady:        v.isReady,
		OnInvalid:      v.forget,
		Priority: func(loc vec.Vec3) float64 {
			return v.nearestFocusDistance(loc, 1)
		},
	})
	return v
}

func (v *Visible) addChunksToLoad(locs []vec.Vec3) {
	if len(locs) == 0 {
		return
	}
	v.received.Add(uint64(len(locs)))
	v.enqueue(locs)
}

// enqueue ставит неактивные чанки в очередь. Новая постановка снова разрешает запрос меша.
func (v *Visible) enqueue(locs []vec.Vec3) {
	pending := make([]vec.Vec3, 0, len(locs))
	v.mu.Lock()
	for _, loc := range locs {
		if _, ok := v.active[loc]; ok {
			continue
		}
		if !v.queue.IsQueued(loc) {
			delete(v.reported, loc)
		}
		pending = append(pending, loc)
	}
	v.mu.Unlock()
	v.queue.Enqueue(pending...)
}

func (v *Visible) addChunksToUnload(locs []vec.Vec3) {
	if len(locs) == 0 {
		return
	}
	v.queue.Dequeue(locs...)

	var deactivated []vec.Vec3
	v.mu.Lock()
	for _, loc := range locs {
		delete(v.reported, loc)
		if _, ok := v.active[loc]; ok {
			delete(v.active, loc)
			deactivated = append(deactivated, loc)
		}
	}
	v.mu.Unlock()

	for _, loc := range deactivated {
		v.publish(context.Background(), eventbus.SetChunkInactive, loc)
	}
}

// NotifyOf ставит в очередь чанки с готовым мешем
func (v *Visible) NotifyOf(ctx context.Context, ev eventbus.Event) {
	if ev.Type != eventbus.ChunkMeshGenerationFinished {
		return
	}
	if v.IsWithinManagedBounds(ev.Chunk) {
		v.enqueue([]vec.Vec3{ev.Chunk})
	}
}

func (v *Visible) isValid(loc vec.Vec3) bool {
	if !v.inFocus(loc) {
		return false
	}

	s, loaded := v.env.Store.GetVoxels(loc)
	loaded = loaded && s.IsLoaded()
	if loaded && s.IsEmpty() {
		v.droppedEmpty.Add(1)
		return false
	}

	m, meshed := v.env.Store.GetMesh(loc)
	if meshed && m.IsEmpty() {
		v.droppedEmpty.Add(1)
		return false
	}

	if loaded && !meshed && !s.IsFull() {
		v.requestMesh(loc)
	}
	return true
}

// requestMesh просит уровень мешей построить меш, один раз на постановку
func (v *Visible) requestMesh(loc vec.Vec3) {
	v.mu.Lock()
	_, done := v.reported[loc]
	v.reported[loc] = struct{}{}
	v.mu.Unlock()

	if !done {
		v.publish(context.Background(), eventbus.ChunkMissingMeshWhileActive, loc)
	}
}

func (v *Visible) isReady(loc vec.Vec3) bool {
	if !v.env.Store.IsLoaded(loc) {
		return false
	}
	m, ok := v.env.Store.GetMesh(loc)
	return ok && !m.IsEmpty()
}

func (v *Visible) forget(loc vec.Vec3) {
	v.mu.Lock()
	delete(v.reported, loc)
	v.mu.Unlock()
}

func (v *Visible) activate(ctx context.Context, loc vec.Vec3) error {
	v.mu.Lock()
	delete(v.reported, loc)
	v.active[loc] = struct{}{}
	v.mu.Unlock()

	v.publish(ctx, eventbus.SetChunkActive, loc)
	return nil
}

// IsActive true, если чанк сейчас активен
func (v *Visible) IsActive(loc vec.Vec3) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.active[loc]
	return ok
}

func (v *Visible) KillAll() {
	v.queue.KillAll()
}

func (v *Visible) Wait(ctx context.Context) error {
	return v.queue.Wait(ctx)
}

func (v *Visible) Stats() Stats {
	s := v.baseStats()
	s.DroppedEmpty = v.droppedEmpty.Load()
	v.mu.Lock()
	s.Active = len(v.active)
	v.mu.Unlock()
	qs := v.queue.Stats()
	s.Queued = qs.Queued
	s.Queues = map[string]jobs.Stats{v.queue.Name(): qs}
	return s
}

func (v *Visible) Processing() jobs.Snapshot[vec.Vec3] {
	return v.queue.Snapshot()
}

var _ Aperture = (*Visible)(nil)
