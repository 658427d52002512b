package aperture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/voxel-stream/internal/eventbus"
	"github.com/annel0/voxel-stream/internal/jobs"
	"github.com/annel0/voxel-stream/internal/storage"
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
	"github.com/annel0/voxel-stream/internal/world/chunk"
	"github.com/annel0/voxel-stream/internal/world/terrain"
)

// LoadYWeight вес оси Y при сортировке загрузки: сначала грузится горизонтальная плоскость фокуса
const LoadYWeight = 1.5

// storeRetryDelay пауза перед повторным чтением после ошибки хранилища
var storeRetryDelay = 250 * time.Millisecond

// LoadedDeps зависимости уровня загрузки
type LoadedDeps struct {
	Terrain terrain.Source
	Chunks  storage.ChunkStore
	Codec   *storage.Codec
	Kind    voxel.Kind
}

// Loaded уровень сырых вокселей. Три очереди: загрузка из хранилища,
// генерация и выгрузка с сохранением.
type Loaded struct {
	base

	deps LoadedDeps

	fileQ   *jobs.Queue[vec.Vec3]
	genQ    *jobs.Queue[vec.Vec3]
	unloadQ *jobs.Queue[vec.Vec3]

	retryMu sync.Mutex
	retryAt map[vec.Vec3]time.Time
}

// NewLoaded создает уровень загрузки
func NewLoaded(env Env, cfg Config, deps LoadedDeps) *Loaded {
	l := &Loaded{deps: deps, retryAt: make(map[vec.Vec3]time.Time)}
	env.App = env.App.Named("loaded")
	l.init(env, LayerLoaded, cfg, l)

	priority := func(loc vec.Vec3) float64 {
		return l.nearestFocusDistance(loc, LoadYWeight)
	}

	l.fileQ = jobs.New(env.App, jobs.Config[vec.Vec3]{
		Name:           "loaded.file",
		MaxConcurrency: cfg.MaxConcurrency,
		Work:           l.loadFromFile,
		IsValid:        l.isFileLoadValid,
		IsReady:        l.isFileLoadReady,
		Priority:       priority,
	})
	l.genQ = jobs.New(env.App, jobs.Config[vec.Vec3]{
		Name:           "loaded.generate",
		MaxConcurrency: cfg.MaxConcurrency,
		Work:           l.generate,
		IsValid:        l.isGenerateValid,
		Priority:       priority,
	})
	l.unloadQ = jobs.New(env.App, jobs.Config[vec.Vec3]{
		Name:           "loaded.unload",
		MaxConcurrency: cfg.MaxConcurrency,
		Work:           l.unload,
		IsValid:        l.isUnloadValid,
		IsReady:        func(loc vec.Vec3) bool { return !l.isLoading(loc) },
	})
	return l
}

func (l *Loaded) addChunksToLoad(locs []vec.Vec3) {
	if len(locs) == 0 {
		return
	}
	l.received.Add(uint64(len(locs)))
	l.unloadQ.Dequeue(locs...)
	l.fileQ.Enqueue(locs...)
}

func (l *Loaded) addChunksToUnload(locs []vec.Vec3) {
	if len(locs) == 0 {
		return
	}
	l.fileQ.Dequeue(locs...)
	l.genQ.Dequeue(locs...)
	l.unloadQ.Enqueue(locs...)
}

// NotifyOf уровень загрузки сам является источником событий и ни на что не реагирует
func (l *Loaded) NotifyOf(ctx context.Context, ev eventbus.Event) {}

func (l *Loaded) isLoaded(loc vec.Vec3) bool {
	return l.env.Store.IsLoaded(loc)
}

// isLoading true, пока для координаты работает воркер загрузки или генерации
func (l *Loaded) isLoading(loc vec.Vec3) bool {
	return l.fileQ.IsRunning(loc) || l.genQ.IsRunning(loc)
}

func (l *Loaded) isFileLoadValid(loc vec.Vec3) bool {
	return l.inFocus(loc) && !l.isLoaded(loc)
}

// isFileLoadReady держит координату после ошибки хранилища до истечения паузы
func (l *Loaded) isFileLoadReady(loc vec.Vec3) bool {
	l.retryMu.Lock()
	defer l.retryMu.Unlock()
	at, ok := l.retryAt[loc]
	if !ok {
		return true
	}
	if time.Now().Before(at) {
		return false
	}
	delete(l.retryAt, loc)
	return true
}

// retryLater ставит чтение повторно после паузы storeRetryDelay
func (l *Loaded) retryLater(loc vec.Vec3, err error) error {
	l.retryMu.Lock()
	l.retryAt[loc] = time.Now().Add(storeRetryDelay)
	l.retryMu.Unlock()

	l.fileQ.Enqueue(loc)
	return fmt.Errorf("чтение чанка %v из хранилища, повтор через %v: %w", loc, storeRetryDelay, err)
}

// redirectToGenerate отправляет на генерацию координаты, которых нет в хранилище
func (l *Loaded) redirectToGenerate(loc vec.Vec3) {
	if !l.IsWithinManagedBounds(loc) || l.isLoaded(loc) {
		return
	}
	l.publish(context.Background(), eventbus.ChunkDataNotFoundInFiles, loc)
	l.genQ.Enqueue(loc)
}

func (l *Loaded) isGenerateValid(loc vec.Vec3) bool {
	return l.inFocus(loc) && !l.isLoaded(loc)
}

func (l *Loaded) isUnloadValid(loc vec.Vec3) bool {
	return !l.IsWithinManagedBounds(loc) && (l.isLoaded(loc) || l.isLoading(loc))
}

func (l *Loaded) loadFromFile(ctx context.Context, loc vec.Vec3) error {
	ok, err := l.deps.Chunks.Exists(ctx, l.env.Seed, loc)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return l.retryLater(loc, err)
	}
	if !ok {
		l.redirectToGenerate(loc)
		return nil
	}

	blob, err := l.deps.Chunks.Load(ctx, l.env.Seed, loc)
	if errors.Is(err, storage.ErrChunkNotFound) {
		// Блоб исчез между проверкой и загрузкой
		l.redirectToGenerate(loc)
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return l.retryLater(loc, err)
	}

	s, err := l.deps.Codec.Decode(blob)
	if err != nil {
		l.env.App.Logger.Error("❌ Чанк %v не прочитан: %v", loc, err)
		return fmt.Errorf("декодирование чанка %v: %w", loc, err)
	}
	return l.commit(ctx, loc, s)
}

func (l *Loaded) generate(ctx context.Context, loc vec.Vec3) error {
	s, err := voxel.New(l.deps.Kind, vec.Splat(chunk.Diameter))
	if err != nil {
		return err
	}
	if err := terrain.Fill(l.deps.Terrain, loc, s); err != nil {
		return fmt.Errorf("генерация чанка %v: %w", loc, err)
	}
	s.SetLoaded(true)
	return l.commit(ctx, loc, s)
}

// commit кладет воксели в хранилище уровня и сообщает о загрузке
func (l *Loaded) commit(ctx context.Context, loc vec.Vec3, s voxel.Storage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.env.Store.SetVoxels(loc, s)
	l.publish(ctx, eventbus.ChunkDataLoadFinished, loc)
	return nil
}

func (l *Loaded) unload(ctx context.Context, loc vec.Vec3) error {
	if l.IsWithinManagedBounds(loc) {
		// Фокус вернулся, пока выгрузка ждала
		return nil
	}

	if err := l.persist(ctx, loc); err != nil {
		return err
	}

	l.env.Store.RemoveVoxels(loc)
	l.env.Store.RemoveMesh(loc)

	if l.IsWithinManagedBounds(loc) {
		l.fileQ.Enqueue(loc)
	}
	return nil
}

// persist сохраняет непустой чанк
func (l *Loaded) persist(ctx context.Context, loc vec.Vec3) error {
	s, ok := l.env.Store.GetVoxels(loc)
	if !ok || !s.IsLoaded() || s.IsEmpty() {
		return nil
	}
	blob, err := l.deps.Codec.Encode(s)
	if err != nil {
		return fmt.Errorf("сериализация чанка %v: %w", loc, err)
	}
	if err := l.deps.Chunks.Save(ctx, l.env.Seed, loc, blob); err != nil {
		return fmt.Errorf("сохранение чанка %v: %w", loc, err)
	}
	return nil
}

// Flush сохраняет все загруженные непустые чанки, например перед остановкой
func (l *Loaded) Flush(ctx context.Context) (int, error) {
	saved := 0
	for _, loc := range l.env.Store.VoxelLocations() {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		s, ok := l.env.Store.GetVoxels(loc)
		if !ok || s.IsEmpty() {
			continue
		}
		if err := l.persist(ctx, loc); err != nil {
			return saved, err
		}
		saved++
	}
	return saved, nil
}

func (l *Loaded) KillAll() {
	l.fileQ.KillAll()
	l.genQ.KillAll()
	l.unloadQ.KillAll()
}

func (l *Loaded) Wait(ctx context.Context) error {
	return waitAll(ctx, l.fileQ, l.genQ, l.unloadQ)
}

func (l *Loaded) Stats() Stats {
	s := l.baseStats()
	s.Queues = map[string]jobs.Stats{
		l.fileQ.Name():   l.fileQ.Stats(),
		l.genQ.Name():    l.genQ.Stats(),
		l.unloadQ.Name(): l.unloadQ.Stats(),
	}
	for _, q := range s.Queues {
		s.Queued += q.Queued
	}
	return s
}

func (l *Loaded) Processing() jobs.Snapshot[vec.Vec3] {
	return mergeSnapshots(l.fileQ.Snapshot(), l.genQ.Snapshot(), l.unloadQ.Snapshot())
}

var _ Aperture = (*Loaded)(nil)
