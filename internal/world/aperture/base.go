package aperture

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/annel0/voxel-stream/internal/eventbus"
	"github.com/annel0/voxel-stream/internal/vec"
)

// focusBox коробка, которую уровень держит вокруг одного фокуса
type focusBox struct {
	loc vec.Vec3
	box vec.Box
}

// tier часть, которую каждый уровень добавляет к base
type tier interface {
	addChunksToLoad(locs []vec.Vec3)
	addChunksToUnload(locs []vec.Vec3)
}

// base общая логика уровней: радиусы, коробки фокусов и обработчики фокусов
type base struct {
	env    Env
	layer  Layer
	radius vec.Vec3 // (r, hr, r) после обрезки по размеру уровня
	tier   tier

	mu   sync.RWMutex
	foci map[int]focusBox

	received   atomic.Uint64
	outOfFocus atomic.Uint64
}

// init заполняет base на месте; t получает добавления и удаления координат
func (b *base) init(env Env, layer Layer, cfg Config, t tier) {
	r, hr := cullRadius(env.Bounds, cfg.Radius, cfg.HeightRadius)
	if r != cfg.Radius || hr != cfg.HeightRadius {
		env.App.Logger.Warn("⚠️ %s: радиус %d×%d обрезан до %d×%d по размеру уровня %v",
			layer, cfg.Radius, cfg.HeightRadius, r, hr, env.Bounds)
	}
	b.env = env
	b.layer = layer
	b.radius = vec.New(r, hr, r)
	b.tier = t
	b.foci = make(map[int]focusBox)
}

// cullRadius ограничивает радиусы половиной уровня: xz по min(X, Z)/2, y по Y/2
func cullRadius(bounds vec.Vec3, r, hr int) (int, int) {
	r = max(0, min(r, min(bounds.X, bounds.Z)/2))
	hr = max(0, min(hr, bounds.Y/2))
	return r, hr
}

func (b *base) Layer() Layer {
	return b.layer
}

// boxFor коробка вокруг координаты фокуса, обрезанная до [0, bounds)
func (b *base) boxFor(loc vec.Vec3) vec.Box {
	return vec.BoxAround(loc, b.radius).Clamp(vec.Zero, b.env.Bounds.Sub(vec.Splat(1)))
}

// BoxOf коробка фокуса с данным ID
func (b *base) BoxOf(id int) (vec.Box, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fb, ok := b.foci[id]
	return fb.box, ok
}

func (b *base) OnFocusSpawned(f Focus) {
	loc := f.ChunkLocation()
	box := b.boxFor(loc)

	b.mu.Lock()
	b.foci[f.ID()] = focusBox{loc: loc, box: box}
	b.mu.Unlock()

	b.env.App.Logger.Debug("%s: фокус %d появился в %v, коробка %v..%v", b.layer, f.ID(), loc, box.Min, box.Max)
	b.tier.addChunksToLoad(box.Points())
}

func (b *base) OnFocusMoved(f Focus) {
	loc := f.ChunkLocation()
	box := b.boxFor(loc)

	b.mu.Lock()
	old, ok := b.foci[f.ID()]
	b.foci[f.ID()] = focusBox{loc: loc, box: box}
	b.mu.Unlock()

	if !ok {
		b.tier.addChunksToLoad(box.Points())
		return
	}
	if old.box == box {
		return
	}

	b.tier.addChunksToUnload(b.unmanaged(old.box.DifferencePoints(box)))
	b.tier.addChunksToLoad(box.DifferencePoints(old.box))
}

func (b *base) OnFocusRemoved(f Focus) {
	b.mu.Lock()
	old, ok := b.foci[f.ID()]
	delete(b.foci, f.ID())
	b.mu.Unlock()

	if !ok {
		return
	}
	b.tier.addChunksToUnload(b.unmanaged(old.box.Points()))
}

// unmanaged оставляет координаты, которые не покрыты ни одним фокусом
func (b *base) unmanaged(locs []vec.Vec3) []vec.Vec3 {
	out := locs[:0]
	for _, loc := range locs {
		if !b.IsWithinManagedBounds(loc) {
			out = append(out, loc)
		}
	}
	return out
}

// IsWithinManagedBounds объединение коробок всех фокусов
func (b *base) IsWithinManagedBounds(c vec.Vec3) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, fb := range b.foci {
		if fb.box.Contains(c) {
			return true
		}
	}
	return false
}

// nearestFocusDistance взвешенное расстояние до ближайшего фокуса
func (b *base) nearestFocusDistance(c vec.Vec3, yWeight float64) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	best := -1.0
	for _, fb := range b.foci {
		d := c.WeightedDistanceTo(fb.loc, yWeight)
		if best < 0 || d < best {
			best = d
		}
	}
	return best
}

func (b *base) focusCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.foci)
}

// inFocus проверка валидности, которая считает выпавшие из фокуса элементы
func (b *base) inFocus(loc vec.Vec3) bool {
	if b.IsWithinManagedBounds(loc) {
		return true
	}
	b.outOfFocus.Add(1)
	return false
}

func (b *base) publish(ctx context.Context, t eventbus.EventType, loc vec.Vec3) {
	b.env.App.Events.Publish(ctx, eventbus.ChunkEvent(t, loc, b.layer.String()), t.Channel())
}

func (b *base) baseStats() Stats {
	return Stats{
		Layer:        b.layer.String(),
		Radius:       b.radius.X,
		HeightRadius: b.radius.Y,
		Foci:         b.focusCount(),
		Received:     b.received.Load(),
		OutOfFocus:   b.outOfFocus.Load(),
	}
}
