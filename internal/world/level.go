// Package world собирает уровень: хранилище чанков, три уровня разрешения
// и реестр фокусов, связанные диспетчером событий.
package world

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/annel0/voxel-stream/internal/app"
	"github.com/annel0/voxel-stream/internal/eventbus"
	"github.com/annel0/voxel-stream/internal/jobs"
	"github.com/annel0/voxel-stream/internal/storage"
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
	"github.com/annel0/voxel-stream/internal/world/aperture"
	"github.com/annel0/voxel-stream/internal/world/chunk"
	"github.com/annel0/voxel-stream/internal/world/mesh"
	"github.com/annel0/voxel-stream/internal/world/terrain"
)

var (
	// ErrMissingDependency уровень создается без обязательной зависимости
	ErrMissingDependency = errors.New("отсутствует зависимость уровня")
	// ErrUnknownFocus фокус не зарегистрирован на уровне
	ErrUnknownFocus = errors.New("фокус не зарегистрирован")
	// ErrFocusAlreadySpawned повторное появление того же фокуса
	ErrFocusAlreadySpawned = errors.New("фокус уже на уровне")
)

// LevelConfig размеры уровня и настройки трех уровней разрешения
type LevelConfig struct {
	Bounds  vec.Vec3 // Размер уровня в чанках
	Seed    int64
	Loaded  aperture.Config
	Meshed  aperture.Config
	Visible aperture.Config
}

// LevelDeps внешние зависимости уровня.
// Codec необязателен: без него уровень создает свой без сжатия.
type LevelDeps struct {
	Terrain terrain.Source
	Chunks  storage.ChunkStore
	Mesher  mesh.Generator
	Codec   *storage.Codec
	Kind    voxel.Kind
}

// LevelStats сводка уровня для API и логов
type LevelStats struct {
	Bounds          vec.Vec3                 `json:"bounds"`
	Seed            int64                    `json:"seed"`
	Foci            int                      `json:"foci"`
	LoadedChunks    int                      `json:"loaded_chunks"`
	Meshes          int                      `json:"meshes"`
	VoxelsGenerated int64                    `json:"voxels_generated"`
	Events          eventbus.DispatcherStats `json:"events"`
	Apertures       []aperture.Stats         `json:"apertures"`
}

// Level уровень: границы, хранилище чанков, реестр фокусов и три уровня разрешения
type Level struct {
	app    *app.Context
	bounds vec.Vec3
	seed   int64
	deps   LevelDeps

	store      *chunk.Store
	dispatcher *eventbus.Dispatcher
	ownsCodec  bool

	loaded    *aperture.Loaded
	meshed    *aperture.Meshed
	visible   *aperture.Visible
	apertures []aperture.Aperture
	subs      []eventbus.Subscription

	// fanMu упорядочивает раздачу событий фокусов по уровням разрешения
	fanMu  sync.Mutex
	mu     sync.RWMutex
	foci   map[int]*Focus
	nextID int

	closeOnce sync.Once
}

// NewLevel создает уровень. Без источника рельефа, хранилища или генератора меша
// возвращает ErrMissingDependency.
func NewLevel(actx *app.Context, cfg LevelConfig, deps LevelDeps) (*Level, error) {
	if actx == nil {
		actx = app.Nop()
	}
	switch {
	case deps.Terrain == nil:
		return nil, fmt.Errorf("%w: источник рельефа", ErrMissingDependency)
	case deps.Chunks == nil:
		return nil, fmt.Errorf("%w: хранилище чанков", ErrMissingDependency)
	case deps.Mesher == nil:
		return nil, fmt.Errorf("%w: генератор меша", ErrMissingDependency)
	}
	if cfg.Bounds.X <= 0 || cfg.Bounds.Y <= 0 || cfg.Bounds.Z <= 0 {
		return nil, fmt.Errorf("некорректные границы уровня %v", cfg.Bounds)
	}

	l := &Level{
		bounds:     cfg.Bounds,
		seed:       cfg.Seed,
		store:      chunk.NewStore(),
		dispatcher: eventbus.NewDispatcher(),
		foci:       make(map[int]*Focus),
	}
	l.app = actx.Named("level").WithEvents(l.dispatcher)

	if deps.Codec == nil {
		codec, err := storage.NewCodec(deps.Kind, false)
		if err != nil {
			return nil, fmt.Errorf("ошибка создания кодека: %w", err)
		}
		deps.Codec = codec
		l.ownsCodec = true
	}
	l.deps = deps

	env := aperture.Env{
		App:    actx.WithEvents(l.dispatcher),
		Store:  l.store,
		Bounds: cfg.Bounds,
		Seed:   cfg.Seed,
	}
	l.loaded = aperture.NewLoaded(env, cfg.Loaded, aperture.LoadedDeps{
		Terrain: deps.Terrain,
		Chunks:  deps.Chunks,
		Codec:   deps.Codec,
		Kind:    deps.Kind,
	})
	l.meshed = aperture.NewMeshed(env, cfg.Meshed, deps.Mesher)
	l.visible = aperture.NewVisible(env, cfg.Visible)
	l.apertures = []aperture.Aperture{l.loaded, l.meshed, l.visible}

	for _, a := range l.apertures {
		l.subs = append(l.subs, l.dispatcher.Subscribe(a, eventbus.TerrainGeneration, eventbus.ChunkActivationUpdates))
	}
	l.subs = append(l.subs, l.dispatcher.Subscribe(eventbus.ObserverFunc(l.onFocusEvent), eventbus.LevelFocusUpdates))

	l.app.Logger.Info("🌍 Уровень %v создан (сид %d, хранилище %s)", cfg.Bounds, cfg.Seed, deps.Kind)
	return l, nil
}

// Bounds размер уровня в чанках
func (l *Level) Bounds() vec.Vec3 { return l.bounds }

// Seed сид уровня
func (l *Level) Seed() int64 { return l.seed }

// Store хранилище данных чанков уровня
func (l *Level) Store() *chunk.Store { return l.store }

// Events диспетчер уровня. Внешние наблюдатели подписываются здесь.
func (l *Level) Events() *eventbus.Dispatcher { return l.dispatcher }

// Aperture возвращает уровень разрешения
func (l *Level) Aperture(layer aperture.Layer) (aperture.Aperture, bool) {
	for _, a := range l.apertures {
		if a.Layer() == layer {
			return a, true
		}
	}
	return nil, false
}

// IsActive true, если у чанка есть активное представление
func (l *Level) IsActive(loc vec.Vec3) bool {
	return l.visible.IsActive(loc)
}

// GetChunk открывает дескриптор чанка.
// Координата вне уровня дает пустой загруженный чанк, хранилище не трогается.
func (l *Level) GetChunk(loc vec.Vec3, opts chunk.Options) *chunk.Chunk {
	return chunk.Open(l.store, l.bounds, loc, opts)
}

func (l *Level) publish(ctx context.Context, ev eventbus.Event) {
	l.dispatcher.Publish(ctx, ev, ev.Type.Channel())
}

// SpawnFocus регистрирует фокус, назначает ему ID и раздает уровням разрешения
// в порядке Loaded, Meshed, Visible.
func (l *Level) SpawnFocus(f *Focus) (int, error) {
	if f == nil {
		return -1, ErrUnknownFocus
	}

	l.fanMu.Lock()
	l.mu.Lock()
	if l.idOf(f) >= 0 {
		l.mu.Unlock()
		l.fanMu.Unlock()
		return -1, ErrFocusAlreadySpawned
	}
	id := l.nextID
	l.nextID++
	l.foci[id] = f
	l.mu.Unlock()

	f.attach(l, id)
	// Все уровни разрешения видят одну и ту же координату появления
	spawned := focusSnapshot{id: id, loc: f.ChunkLocation()}
	for _, a := range l.apertures {
		a.OnFocusSpawned(spawned)
	}
	cur := f.activate()
	l.fanMu.Unlock()

	l.publish(context.Background(), eventbus.FocusEvent(eventbus.FocusSpawned, id, spawned.loc, "level"))
	// Перемещения до активации не публиковались, догоняем их одним событием
	if cur != spawned.loc {
		l.publish(context.Background(), eventbus.FocusEvent(eventbus.FocusChangedChunkLocation, id, cur, "level"))
	}

	l.app.Logger.Info("🎯 Фокус %d появился в %v", id, spawned.loc)
	return id, nil
}

// focusSnapshot неизменяемая копия фокуса на момент появления
type focusSnapshot struct {
	id  int
	loc vec.Vec3
}

func (s focusSnapshot) ID() int                 { return s.id }
func (s focusSnapshot) ChunkLocation() vec.Vec3 { return s.loc }

// MoveFocus перемещает фокус. Уровни разрешения узнают о перемещении
// из события FocusChangedChunkLocation.
func (l *Level) MoveFocus(f *Focus, chunkLoc vec.Vec3) error {
	if l.GetFocusID(f) < 0 {
		return ErrUnknownFocus
	}
	f.SetChunkLocation(chunkLoc)
	return nil
}

// onFocusEvent обрабатывает перемещения фокусов из канала LevelFocusUpdates
func (l *Level) onFocusEvent(_ context.Context, ev eventbus.Event) {
	if ev.Type != eventbus.FocusChangedChunkLocation {
		return
	}
	f, ok := l.GetFocusByID(ev.FocusID)
	if !ok {
		return
	}

	l.fanMu.Lock()
	defer l.fanMu.Unlock()
	// Фокус мог быть удален, пока ждали блокировку
	if l.GetFocusID(f) != ev.FocusID {
		return
	}
	for _, a := range l.apertures {
		a.OnFocusMoved(f)
	}
	l.app.Logger.Debug("🚶 Фокус %d перешел в %v", ev.FocusID, f.ChunkLocation())
}

// RemoveFocus убирает фокус с уровня в обратном порядке уровней разрешения
func (l *Level) RemoveFocus(f *Focus) error {
	l.fanMu.Lock()
	l.mu.Lock()
	id := l.idOf(f)
	if id < 0 {
		l.mu.Unlock()
		l.fanMu.Unlock()
		return ErrUnknownFocus
	}
	delete(l.foci, id)
	l.mu.Unlock()

	for i := len(l.apertures) - 1; i >= 0; i-- {
		l.apertures[i].OnFocusRemoved(f)
	}
	loc := f.ChunkLocation()
	f.detach()
	l.fanMu.Unlock()

	l.publish(context.Background(), eventbus.FocusEvent(eventbus.FocusLeft, id, loc, "level"))
	l.app.Logger.Info("👋 Фокус %d покинул уровень", id)
	return nil
}

// idOf ищет фокус по указателю, вызывается под l.mu
func (l *Level) idOf(f *Focus) int {
	for id, other := range l.foci {
		if other == f {
			return id
		}
	}
	return -1
}

// GetFocusID возвращает ID зарегистрированного фокуса или -1
func (l *Level) GetFocusID(f *Focus) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.idOf(f)
}

// GetFocusByID ищет фокус по ID
func (l *Level) GetFocusByID(id int) (*Focus, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f, ok := l.foci[id]
	return f, ok
}

// ForEachFocus обходит фокусы в порядке ID
func (l *Level) ForEachFocus(fn func(f *Focus)) {
	l.mu.RLock()
	ids := make([]int, 0, len(l.foci))
	for id := range l.foci {
		ids = append(ids, id)
	}
	l.mu.RUnlock()
	sort.Ints(ids)

	for _, id := range ids {
		if f, ok := l.GetFocusByID(id); ok {
			fn(f)
		}
	}
}

// FocusCount число фокусов на уровне
func (l *Level) FocusCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.foci)
}

// Wait ждет, пока во всех очередях не останется работы.
// Поздний уровень может вернуть работу раннему, поэтому проверка повторяется.
func (l *Level) Wait(ctx context.Context) error {
	for {
		for _, a := range l.apertures {
			if err := a.Wait(ctx); err != nil {
				return err
			}
		}
		if l.isIdle() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (l *Level) isIdle() bool {
	for _, a := range l.apertures {
		p := a.Processing()
		if len(p.Queued) > 0 || len(p.Running) > 0 {
			return false
		}
	}
	return true
}

// KillAll останавливает все уровни разрешения параллельно и ждет их воркеров
func (l *Level) KillAll() {
	_ = l.killAll(context.Background())
}

func (l *Level) killAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range l.apertures {
		g.Go(func() error {
			a.KillAll()
			return a.Wait(gctx)
		})
	}
	return g.Wait()
}

// Flush сохраняет все загруженные чанки
func (l *Level) Flush(ctx context.Context) (int, error) {
	return l.loaded.Flush(ctx)
}

// Shutdown останавливает очереди, сохраняет загруженные чанки и отписывает уровни
func (l *Level) Shutdown(ctx context.Context) error {
	var err error
	l.closeOnce.Do(func() {
		if kerr := l.killAll(ctx); kerr != nil {
			err = fmt.Errorf("ошибка остановки очередей: %w", kerr)
			return
		}

		saved, ferr := l.Flush(ctx)
		if ferr != nil {
			err = fmt.Errorf("ошибка сохранения уровня: %w", ferr)
		}
		l.app.Logger.Info("💾 Сохранено чанков при остановке: %d", saved)

		for _, s := range l.subs {
			s.Unsubscribe()
		}
		if l.ownsCodec {
			l.deps.Codec.Close()
		}
	})
	return err
}

// ProcessingChunks координаты в очередях и в работе у уровня разрешения
func (l *Level) ProcessingChunks(layer aperture.Layer) (jobs.Snapshot[vec.Vec3], error) {
	a, ok := l.Aperture(layer)
	if !ok {
		return jobs.Snapshot[vec.Vec3]{}, fmt.Errorf("неизвестный уровень %s", layer)
	}
	return a.Processing(), nil
}

// Stats сводка уровня
func (l *Level) Stats() LevelStats {
	st := LevelStats{
		Bounds:       l.bounds,
		Seed:         l.seed,
		Foci:         l.FocusCount(),
		LoadedChunks: l.store.VoxelCount(),
		Meshes:       l.store.MeshCount(),
		Events:       l.dispatcher.Stats(),
	}
	if c, ok := l.deps.Terrain.(interface{ VoxelsGenerated() int64 }); ok {
		st.VoxelsGenerated = c.VoxelsGenerated()
	}
	for _, a := range l.apertures {
		st.Apertures = append(st.Apertures, a.Stats())
	}
	return st
}
