package aperture

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/annel0/voxel-stream/internal/app"
	"github.com/annel0/voxel-stream/internal/eventbus"
	"github.com/annel0/voxel-stream/internal/storage"
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
	"github.com/annel0/voxel-stream/internal/world/chunk"
	"github.com/annel0/voxel-stream/internal/world/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

type testFocus struct {
	id  int
	loc vec.Vec3
}

func (f *testFocus) ID() int                 { return f.id }
func (f *testFocus) ChunkLocation() vec.Vec3 { return f.loc }

// recordingTier запоминает, что base попросил загрузить и выгрузить
type recordingTier struct {
	loads   []vec.Vec3
	unloads []vec.Vec3
}

func (r *recordingTier) addChunksToLoad(locs []vec.Vec3)   { r.loads = append(r.loads, locs...) }
func (r *recordingTier) addChunksToUnload(locs []vec.Vec3) { r.unloads = append(r.unloads, locs...) }

// eventLog собирает опубликованные события
type eventLog struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (l *eventLog) NotifyOf(ctx context.Context, ev eventbus.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) chunks(t eventbus.EventType) map[vec.Vec3]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[vec.Vec3]int)
	for _, ev := range l.events {
		if ev.Type == t {
			out[ev.Chunk]++
		}
	}
	return out
}

func newEnv(bounds vec.Vec3, events eventbus.Publisher) Env {
	return Env{
		App:    app.Nop().WithEvents(events),
		Store:  chunk.NewStore(),
		Bounds: bounds,
		Seed:   1,
	}
}

func loadedStorage(solid ...vec.Vec3) voxel.Storage {
	s := voxel.NewSparse(vec.Splat(chunk.Diameter))
	for _, p := range solid {
		_ = s.Set(p, 2)
	}
	s.SetLoaded(true)
	return s
}

func TestCullRadius(t *testing.T) {
	r, hr := cullRadius(vec.New(100, 5, 100), 10, 2)
	assert.Equal(t, 10, r)
	assert.Equal(t, 2, hr)

	r, hr = cullRadius(vec.New(6, 3, 10), 10, 4)
	assert.Equal(t, 3, r, "Радиус xz ограничен min(X, Z)/2")
	assert.Equal(t, 1, hr, "Радиус y ограничен Y/2")
}

func TestBase_FocusBoxes(t *testing.T) {
	rec := &recordingTier{}
	var b base
	b.init(newEnv(vec.New(20, 5, 20), nil), LayerLoaded, Config{Radius: 2, HeightRadius: 1}, rec)

	f := &testFocus{id: 0, loc: vec.New(10, 2, 10)}
	b.OnFocusSpawned(f)
	assert.Len(t, rec.loads, 5*3*5, "Появление фокуса ставит всю коробку")
	assert.True(t, b.IsWithinManagedBounds(vec.New(12, 3, 8)))
	assert.False(t, b.IsWithinManagedBounds(vec.New(13, 2, 10)))

	rec.loads = nil
	f.loc = vec.New(11, 2, 10)
	b.OnFocusMoved(f)
	assert.Len(t, rec.loads, 1*3*5, "Загружается только новая грань")
	assert.Len(t, rec.unloads, 1*3*5, "Выгружается только старая грань")
	for _, p := range rec.loads {
		assert.Equal(t, 13, p.X)
	}
	for _, p := range rec.unloads {
		assert.Equal(t, 8, p.X)
	}

	rec.unloads = nil
	b.OnFocusRemoved(f)
	assert.Len(t, rec.unloads, 5*3*5)
	assert.False(t, b.IsWithinManagedBounds(vec.New(11, 2, 10)))
}

func TestBase_BoxIsClampedToLevel(t *testing.T) {
	rec := &recordingTier{}
	var b base
	b.init(newEnv(vec.New(10, 4, 10), nil), LayerLoaded, Config{Radius: 3, HeightRadius: 2}, rec)

	b.OnFocusSpawned(&testFocus{id: 1, loc: vec.New(0, 3, 9)})
	box, ok := b.BoxOf(1)
	require.True(t, ok)
	assert.Equal(t, vec.New(0, 1, 6), box.Min)
	assert.Equal(t, vec.New(3, 3, 9), box.Max, "Коробка обрезана до [0, bounds-1], ось Y по своей границе")
	for _, p := range rec.loads {
		assert.True(t, p.IsWithinBounds(vec.New(10, 4, 10)))
	}
}

func TestBase_OverlappingFociKeepSharedChunks(t *testing.T) {
	rec := &recordingTier{}
	var b base
	b.init(newEnv(vec.New(20, 3, 20), nil), LayerMeshed, Config{Radius: 2, HeightRadius: 0}, rec)

	a := &testFocus{id: 0, loc: vec.New(5, 1, 5)}
	c := &testFocus{id: 1, loc: vec.New(7, 1, 5)}
	b.OnFocusSpawned(a)
	b.OnFocusSpawned(c)

	b.OnFocusRemoved(a)
	for _, p := range rec.unloads {
		assert.Less(t, p.X, 5, "Чанки второго фокуса не выгружаются: %v", p)
	}
	assert.Len(t, rec.unloads, 2*5)
}

func TestMeshed_ReadinessGate(t *testing.T) {
	env := newEnv(vec.New(5, 5, 5), nil)
	m := NewMeshed(env, Config{Radius: 2, HeightRadius: 2, MaxConcurrency: 4}, mesh.NewFaceCuller(nil))
	center := vec.New(2, 2, 2)

	assert.False(t, m.IsReadyToMesh(center), "Незагруженный чанк не готов")

	env.Store.SetVoxels(center, loadedStorage(vec.New(1, 1, 1)))
	assert.False(t, m.IsReadyToMesh(center), "Соседи не загружены")

	for _, d := range chunk.Directions {
		env.Store.SetVoxels(center.Add(d.Offset()), loadedStorage())
	}
	assert.False(t, m.IsReadyToMesh(center), "Соседи соседей не загружены")

	for _, p := range chunk.SecondRing(center) {
		env.Store.SetVoxels(p, loadedStorage())
	}
	assert.True(t, m.IsReadyToMesh(center))

	// На краю уровня внешние соседи считаются загруженными
	corner := vec.Zero
	env.Store.SetVoxels(corner, loadedStorage())
	for _, p := range append(chunk.SecondRing(corner), vec.New(1, 0, 0), vec.New(0, 1, 0), vec.New(0, 0, 1)) {
		if p.IsWithinBounds(env.Bounds) {
			env.Store.SetVoxels(p, loadedStorage())
		}
	}
	assert.True(t, m.IsReadyToMesh(corner))
}

func TestMeshed_WaitsForNeighborsThenPublishes(t *testing.T) {
	dispatcher := eventbus.NewDispatcher()
	log := &eventLog{}
	dispatcher.Subscribe(log, eventbus.TerrainGeneration)

	env := newEnv(vec.New(5, 5, 5), dispatcher)
	m := NewMeshed(env, Config{Radius: 0, HeightRadius: 0, MaxConcurrency: 2}, mesh.NewFaceCuller(nil))
	defer m.KillAll()

	center := vec.New(2, 2, 2)
	env.Store.SetVoxels(center, loadedStorage(vec.New(5, 5, 5)))
	m.OnFocusSpawned(&testFocus{id: 0, loc: center})

	time.Sleep(50 * time.Millisecond)
	_, meshed := env.Store.GetMesh(center)
	assert.False(t, meshed, "Без соседей меш не строится")

	for _, d := range chunk.Directions {
		env.Store.SetVoxels(center.Add(d.Offset()), loadedStorage())
	}
	for _, p := range chunk.SecondRing(center) {
		env.Store.SetVoxels(p, loadedStorage())
	}

	require.Eventually(t, func() bool {
		return log.chunks(eventbus.ChunkMeshGenerationFinished)[center] == 1
	}, waitFor, 5*time.Millisecond)

	got, ok := env.Store.GetMesh(center)
	require.True(t, ok)
	assert.Equal(t, 12, got.TriangleCount())
	assert.Equal(t, uint64(1), m.Stats().MeshesGenerated)
}

func TestMeshed_EmptyMeshIsStoredSilently(t *testing.T) {
	dispatcher := eventbus.NewDispatcher()
	log := &eventLog{}
	dispatcher.Subscribe(log, eventbus.TerrainGeneration)

	env := newEnv(vec.New(1, 1, 1), dispatcher)
	m := NewMeshed(env, Config{MaxConcurrency: 1}, mesh.NewFaceCuller(nil))
	defer m.KillAll()

	// Генератор, который ничего не строит
	m.mesher = emptyMesher{}
	env.Store.SetVoxels(vec.Zero, loadedStorage(vec.New(0, 0, 0)))
	m.OnFocusSpawned(&testFocus{id: 0, loc: vec.Zero})

	require.Eventually(t, func() bool { return m.Stats().EmptyMeshes == 1 }, waitFor, 5*time.Millisecond)
	_, ok := env.Store.GetMesh(vec.Zero)
	assert.True(t, ok, "Пустой меш хранится")
	assert.Empty(t, log.chunks(eventbus.ChunkMeshGenerationFinished), "О пустом меше не сообщается")
}

type emptyMesher struct{}

func (emptyMesher) Generate(mesh.Volume) *mesh.Mesh { return &mesh.Mesh{} }

func TestMeshed_UnloadRemovesMesh(t *testing.T) {
	dispatcher := eventbus.NewDispatcher()
	log := &eventLog{}
	dispatcher.Subscribe(log, eventbus.TerrainGeneration)

	env := newEnv(vec.New(10, 1, 10), dispatcher)
	m := NewMeshed(env, Config{Radius: 0, MaxConcurrency: 1}, mesh.NewFaceCuller(nil))
	defer m.KillAll()

	f := &testFocus{id: 0, loc: vec.New(3, 0, 3)}
	m.OnFocusSpawned(f)
	env.Store.SetMesh(f.loc, &mesh.Mesh{Triangles: []int{0, 1, 2}})

	old := f.loc
	f.loc = vec.New(6, 0, 6)
	m.OnFocusMoved(f)

	_, ok := env.Store.GetMesh(old)
	assert.False(t, ok)
	assert.Equal(t, 1, log.chunks(eventbus.ChunkMeshMovedOutOfFocus)[old])
}

func TestVisible_ActivationFlow(t *testing.T) {
	dispatcher := eventbus.NewDispatcher()
	log := &eventLog{}
	dispatcher.Subscribe(log, eventbus.TerrainGeneration, eventbus.ChunkActivationUpdates)

	env := newEnv(vec.New(10, 1, 10), dispatcher)
	v := NewVisible(env, Config{Radius: 1, MaxConcurrency: 2})
	defer v.KillAll()
	dispatcher.Subscribe(v, eventbus.TerrainGeneration)

	solid := vec.New(4, 0, 4)
	empty := vec.New(5, 0, 4)
	env.Store.SetVoxels(solid, loadedStorage(vec.New(1, 1, 1)))
	env.Store.SetVoxels(empty, loadedStorage())

	f := &testFocus{id: 0, loc: vec.New(4, 0, 4)}
	v.OnFocusSpawned(f)

	// Загруженный непустой чанк без меша запрашивает меш ровно один раз
	require.Eventually(t, func() bool {
		return log.chunks(eventbus.ChunkMissingMeshWhileActive)[solid] == 1
	}, waitFor, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, log.chunks(eventbus.ChunkMissingMeshWhileActive)[solid], "Запрос меша один на постановку")

	env.Store.SetMesh(solid, &mesh.Mesh{Triangles: []int{0, 1, 2}})
	dispatcher.Publish(context.Background(), eventbus.ChunkEvent(eventbus.ChunkMeshGenerationFinished, solid, "test"), eventbus.TerrainGeneration)

	require.Eventually(t, func() bool { return v.IsActive(solid) }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, log.chunks(eventbus.SetChunkActive)[solid])
	assert.Zero(t, log.chunks(eventbus.SetChunkActive)[empty], "Пустой чанк не активируется")
	assert.Positive(t, v.Stats().DroppedEmpty)

	f.loc = vec.New(8, 0, 8)
	v.OnFocusMoved(f)
	assert.False(t, v.IsActive(solid))
	assert.Equal(t, 1, log.chunks(eventbus.SetChunkInactive)[solid])
}

func TestLoaded_GenerateSaveAndReload(t *testing.T) {
	dispatcher := eventbus.NewDispatcher()
	log := &eventLog{}
	dispatcher.Subscribe(log, eventbus.TerrainGeneration)

	codec, err := storage.NewCodec(voxel.KindSparse, true)
	require.NoError(t, err)
	defer codec.Close()
	blobs := storage.NewMemoryStore()

	env := newEnv(vec.New(10, 1, 10), dispatcher)
	l := NewLoaded(env, Config{Radius: 0, MaxConcurrency: 2}, LoadedDeps{
		Terrain: pillarSource{},
		Chunks:  blobs,
		Codec:   codec,
		Kind:    voxel.KindSparse,
	})
	defer l.KillAll()

	f := &testFocus{id: 0, loc: vec.New(2, 0, 2)}
	l.OnFocusSpawned(f)

	require.Eventually(t, func() bool { return env.Store.IsLoaded(f.loc) }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, log.chunks(eventbus.ChunkDataNotFoundInFiles)[vec.New(2, 0, 2)], "Сохранения нет, чанк генерируется")
	require.Eventually(t, func() bool {
		return log.chunks(eventbus.ChunkDataLoadFinished)[vec.New(2, 0, 2)] == 1
	}, waitFor, 5*time.Millisecond)

	// Уход фокуса сохраняет чанк и освобождает память
	f.loc = vec.New(7, 0, 7)
	l.OnFocusMoved(f)
	require.Eventually(t, func() bool { return blobs.Len() == 1 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !env.Store.IsLoaded(vec.New(2, 0, 2)) }, waitFor, 5*time.Millisecond)

	// Возврат фокуса читает чанк из хранилища без генерации
	f.loc = vec.New(2, 0, 2)
	l.OnFocusMoved(f)
	require.Eventually(t, func() bool { return env.Store.IsLoaded(f.loc) }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, log.chunks(eventbus.ChunkDataNotFoundInFiles)[f.loc], "Второй раз чанк найден в хранилище")

	s, _ := env.Store.GetVoxels(f.loc)
	assert.Equal(t, voxel.Type(2), voxel.MustGet(s, vec.New(0, 0, 0)))

	stats := l.Stats()
	assert.Equal(t, "loaded", stats.Layer)
	assert.Contains(t, stats.Queues, "loaded.file")
}

// flakyStore отказывает первые failExists проверок и failLoad чтений
type flakyStore struct {
	storage.ChunkStore
	failExists atomic.Int32
	failLoad   atomic.Int32
	exists     atomic.Int32
	loads      atomic.Int32
}

var errStoreDown = errors.New("хранилище недоступно")

func (s *flakyStore) Exists(ctx context.Context, seed int64, loc vec.Vec3) (bool, error) {
	s.exists.Add(1)
	if s.failExists.Add(-1) >= 0 {
		return false, errStoreDown
	}
	return s.ChunkStore.Exists(ctx, seed, loc)
}

func (s *flakyStore) Load(ctx context.Context, seed int64, loc vec.Vec3) ([]byte, error) {
	s.loads.Add(1)
	if s.failLoad.Add(-1) >= 0 {
		return nil, errStoreDown
	}
	return s.ChunkStore.Load(ctx, seed, loc)
}

func TestLoaded_StoreErrorRetriesInsteadOfGenerating(t *testing.T) {
	prev := storeRetryDelay
	storeRetryDelay = 20 * time.Millisecond
	t.Cleanup(func() { storeRetryDelay = prev })

	dispatcher := eventbus.NewDispatcher()
	log := &eventLog{}
	dispatcher.Subscribe(log, eventbus.TerrainGeneration)

	codec, err := storage.NewCodec(voxel.KindSparse, true)
	require.NoError(t, err)
	defer codec.Close()

	// Сохраненный чанк отличается от того, что дал бы генератор
	loc := vec.New(2, 0, 2)
	saved, err := voxel.New(voxel.KindSparse, vec.Splat(chunk.Diameter))
	require.NoError(t, err)
	require.NoError(t, saved.Set(vec.New(5, 5, 5), 7))
	saved.SetLoaded(true)
	blob, err := codec.Encode(saved)
	require.NoError(t, err)

	blobs := storage.NewMemoryStore()
	env := newEnv(vec.New(10, 1, 10), dispatcher)
	require.NoError(t, blobs.Save(context.Background(), env.Seed, loc, blob))

	flaky := &flakyStore{ChunkStore: blobs}
	flaky.failExists.Store(2)
	flaky.failLoad.Store(1)

	l := NewLoaded(env, Config{Radius: 0, MaxConcurrency: 2}, LoadedDeps{
		Terrain: pillarSource{},
		Chunks:  flaky,
		Codec:   codec,
		Kind:    voxel.KindSparse,
	})
	defer l.KillAll()

	l.OnFocusSpawned(&testFocus{id: 0, loc: loc})

	require.Eventually(t, func() bool { return env.Store.IsLoaded(loc) }, waitFor, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, l.Wait(ctx))

	s, _ := env.Store.GetVoxels(loc)
	assert.Equal(t, voxel.Type(7), voxel.MustGet(s, vec.New(5, 5, 5)), "Загружен сохраненный чанк")
	assert.Equal(t, voxel.Air, voxel.MustGet(s, vec.New(0, 0, 0)), "Генератор не запускался")
	assert.Zero(t, log.chunks(eventbus.ChunkDataNotFoundInFiles)[loc], "Ошибка хранилища не считается отсутствием чанка")
	assert.Equal(t, int32(4), flaky.exists.Load(), "Две ошибки проверки, затем два успешных захода")
	assert.Equal(t, int32(2), flaky.loads.Load(), "Одна ошибка чтения, затем успешное чтение")
	assert.GreaterOrEqual(t, l.Stats().Queues["loaded.file"].Failed, uint64(3))
}

// pillarSource твердый столбик в углу каждого чанка
type pillarSource struct{}

func (pillarSource) Seed() int64 { return 1 }
func (pillarSource) Generate(global vec.Vec3) voxel.Type {
	local := vec.New(global.X%chunk.Diameter, global.Y%chunk.Diameter, global.Z%chunk.Diameter)
	if local.X == 0 && local.Z == 0 && local.Y < 4 {
		return 2
	}
	return voxel.Air
}

func TestParseLayer(t *testing.T) {
	for _, l := range Layers {
		got, err := ParseLayer(l.String())
		require.NoError(t, err)
		assert.Equal(t, l, got)
	}
	_, err := ParseLayer("rendered")
	assert.Error(t, err)
}
