package world

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/voxel-stream/internal/app"
	"github.com/annel0/voxel-stream/internal/eventbus"
	"github.com/annel0/voxel-stream/internal/storage"
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
	"github.com/annel0/voxel-stream/internal/world/aperture"
	"github.com/annel0/voxel-stream/internal/world/chunk"
	"github.com/annel0/voxel-stream/internal/world/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// beaconSource ставит один твердый воксель в центр каждого чанка слоя y == 2
type beaconSource struct{}

func (beaconSource) Seed() int64 { return 7 }

func (beaconSource) Generate(global vec.Vec3) voxel.Type {
	c := global.FloorDiv(chunk.Diameter)
	local := global.Sub(c.Scale(chunk.Diameter))
	if c.Y == 2 && local == vec.Splat(chunk.Diameter/2) {
		return 2
	}
	return voxel.Air
}

func (beaconSource) Fill(chunkLoc vec.Vec3, s voxel.Storage) error {
	if chunkLoc.Y != 2 {
		return nil
	}
	return s.Set(vec.Splat(chunk.Diameter/2), 2)
}

// eventLog собирает события уровня
type eventLog struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (l *eventLog) NotifyOf(_ context.Context, ev eventbus.Event) {
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

func (l *eventLog) count(t eventbus.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func testLevelConfig() LevelConfig {
	return LevelConfig{
		Bounds:  vec.New(100, 5, 100),
		Seed:    7,
		Loaded:  aperture.Config{Radius: 10, HeightRadius: 2, MaxConcurrency: 25},
		Meshed:  aperture.Config{Radius: 5, HeightRadius: 1, MaxConcurrency: 20},
		Visible: aperture.Config{Radius: 3, HeightRadius: 1, MaxConcurrency: 20},
	}
}

func newTestLevel(t *testing.T, cfg LevelConfig) (*Level, *storage.MemoryStore, *eventLog) {
	t.Helper()
	blobs := storage.NewMemoryStore()
	level, err := NewLevel(app.Nop(), cfg, LevelDeps{
		Terrain: beaconSource{},
		Chunks:  blobs,
		Mesher:  mesh.NewFaceCuller(nil),
		Kind:    voxel.KindSparse,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = level.Shutdown(ctx)
	})

	log := &eventLog{}
	level.Events().Subscribe(log,
		eventbus.TerrainGeneration, eventbus.ChunkActivationUpdates, eventbus.LevelFocusUpdates)
	return level, blobs, log
}

func waitIdle(t *testing.T, level *Level) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	require.NoError(t, level.Wait(ctx), "Уровень должен дойти до покоя")
}

func TestNewLevel_MissingDependency(t *testing.T) {
	full := LevelDeps{
		Terrain: beaconSource{},
		Chunks:  storage.NewMemoryStore(),
		Mesher:  mesh.NewFaceCuller(nil),
		Kind:    voxel.KindSparse,
	}

	noTerrain := full
	noTerrain.Terrain = nil
	noStore := full
	noStore.Chunks = nil
	noMesher := full
	noMesher.Mesher = nil

	for name, deps := range map[string]LevelDeps{"terrain": noTerrain, "store": noStore, "mesher": noMesher} {
		level, err := NewLevel(app.Nop(), testLevelConfig(), deps)
		assert.ErrorIs(t, err, ErrMissingDependency, name)
		assert.Nil(t, level, name)
	}
}

func TestLevel_SingleFocusEndToEnd(t *testing.T) {
	level, _, log := newTestLevel(t, testLevelConfig())

	f := NewFocus(vec.New(50, 2, 50))
	id, err := level.SpawnFocus(f)
	require.NoError(t, err)
	assert.Equal(t, 0, id)
	assert.True(t, f.IsActive())
	waitIdle(t, level)

	assert.Equal(t, 21*5*21, level.Store().VoxelCount(), "Загружена вся коробка Loaded")

	meshes := level.Store().MeshLocations()
	assert.Len(t, meshes, 11*11, "Меши есть только у непустых чанков коробки Meshed")
	for _, loc := range meshes {
		assert.Equal(t, 2, loc.Y)
		assert.True(t, loc.IsWithin(vec.New(45, 2, 45), vec.New(55, 2, 55)), "%v вне коробки Meshed", loc)
		m, _ := level.Store().GetMesh(loc)
		assert.Equal(t, 12, m.TriangleCount(), "Одиночный куб: 6 граней")
	}

	active := log.chunks(eventbus.SetChunkActive)
	assert.Len(t, active, 7*7)
	for loc, n := range active {
		assert.Equal(t, 1, n, "%v активирован повторно", loc)
		assert.Equal(t, 2, loc.Y)
		assert.True(t, loc.IsWithin(vec.New(47, 2, 47), vec.New(53, 2, 53)), "%v вне коробки Visible", loc)
		assert.True(t, level.IsActive(loc))
	}

	assert.Equal(t, 1, log.count(eventbus.FocusSpawned))
	assert.Zero(t, log.count(eventbus.SetChunkInactive))
	assert.Equal(t, 21*5*21, log.count(eventbus.ChunkDataLoadFinished))
	assert.Equal(t, 21*5*21, log.count(eventbus.ChunkDataNotFoundInFiles), "Хранилище пустое, все генерируется")
}

func TestLevel_MoveAndRemoveFocus(t *testing.T) {
	level, blobs, log := newTestLevel(t, testLevelConfig())

	f := NewFocus(vec.New(50, 2, 50))
	_, err := level.SpawnFocus(f)
	require.NoError(t, err)
	waitIdle(t, level)

	require.NoError(t, level.MoveFocus(f, vec.New(51, 2, 50)))
	waitIdle(t, level)

	assert.Equal(t, 21*5*21, level.Store().VoxelCount())
	assert.Equal(t, 21, blobs.Len(), "Выгруженная плоскость x=40 сохранена, пустые чанки не пишутся")
	vec.NewBox(vec.New(40, 0, 40), vec.New(40, 4, 60)).ForEach(func(p vec.Vec3) {
		assert.False(t, level.Store().IsLoaded(p), "%v остался загруженным", p)
	})

	assert.Len(t, level.Store().MeshLocations(), 11*11)
	moved := log.chunks(eventbus.ChunkMeshMovedOutOfFocus)
	assert.Len(t, moved, 11)
	for loc := range moved {
		assert.Equal(t, 45, loc.X)
	}

	inactive := log.chunks(eventbus.SetChunkInactive)
	assert.Len(t, inactive, 7)
	for loc := range inactive {
		assert.Equal(t, 47, loc.X)
		assert.False(t, level.IsActive(loc))
	}
	assert.Len(t, log.chunks(eventbus.SetChunkActive), 7*7+7)

	// Перемещение в тот же чанк ничего не меняет
	before := log.count(eventbus.FocusChangedChunkLocation)
	require.NoError(t, level.MoveFocus(f, vec.New(51, 2, 50)))
	assert.Equal(t, before, log.count(eventbus.FocusChangedChunkLocation))

	require.NoError(t, f.Remove())
	waitIdle(t, level)

	assert.Equal(t, -1, level.GetFocusID(f))
	assert.False(t, f.IsActive())
	assert.Zero(t, level.Store().VoxelCount(), "Без фокусов уровень пуст")
	assert.Zero(t, level.Store().MeshCount())
	assert.Equal(t, 22*21, blobs.Len(), "Сохранены все непустые чанки обеих коробок")
	assert.Len(t, log.chunks(eventbus.SetChunkInactive), 7*7+7)
	assert.Equal(t, 1, log.count(eventbus.FocusLeft))

	assert.ErrorIs(t, level.RemoveFocus(f), ErrUnknownFocus)
	assert.ErrorIs(t, level.MoveFocus(f, vec.Zero), ErrUnknownFocus)
}

func TestLevel_ReloadFromStore(t *testing.T) {
	cfg := testLevelConfig()
	cfg.Bounds = vec.New(20, 5, 20)
	cfg.Loaded = aperture.Config{Radius: 3, HeightRadius: 2, MaxConcurrency: 8}
	cfg.Meshed = aperture.Config{Radius: 1, HeightRadius: 1, MaxConcurrency: 8}
	cfg.Visible = aperture.Config{Radius: 1, HeightRadius: 1, MaxConcurrency: 8}
	level, blobs, log := newTestLevel(t, cfg)

	f := NewFocus(vec.New(10, 2, 10))
	_, err := level.SpawnFocus(f)
	require.NoError(t, err)
	waitIdle(t, level)

	saved, err := level.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7*7, saved)
	assert.Equal(t, 7*7, blobs.Len())

	require.NoError(t, level.RemoveFocus(f))
	waitIdle(t, level)
	notFound := log.count(eventbus.ChunkDataNotFoundInFiles)

	again := NewFocus(vec.New(10, 2, 10))
	id, err := level.SpawnFocus(again)
	require.NoError(t, err)
	assert.Equal(t, 1, id, "ID не переиспользуются")
	waitIdle(t, level)

	// Непустые чанки читаются из хранилища, пустые генерируются заново
	assert.Equal(t, notFound+7*4*7, log.count(eventbus.ChunkDataNotFoundInFiles))
	s, ok := level.Store().GetVoxels(vec.New(10, 2, 10))
	require.True(t, ok)
	assert.Equal(t, voxel.Type(2), voxel.MustGet(s, vec.Splat(chunk.Diameter/2)))
}

func TestLevel_FocusRegistry(t *testing.T) {
	cfg := testLevelConfig()
	cfg.Bounds = vec.New(10, 3, 10)
	level, _, _ := newTestLevel(t, cfg)

	a := NewFocus(vec.New(2, 1, 2))
	b := NewFocus(vec.New(2, 1, 2))

	idA, err := level.SpawnFocus(a)
	require.NoError(t, err)
	idB, err := level.SpawnFocus(b)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, []int{idA, idB})

	_, err = level.SpawnFocus(a)
	assert.ErrorIs(t, err, ErrFocusAlreadySpawned)

	assert.Equal(t, idA, level.GetFocusID(a))
	assert.Equal(t, idB, level.GetFocusID(b), "Поиск по указателю, а не по координате")
	assert.Equal(t, -1, level.GetFocusID(NewFocus(vec.New(2, 1, 2))))

	got, ok := level.GetFocusByID(idB)
	require.True(t, ok)
	assert.Same(t, b, got)
	_, ok = level.GetFocusByID(42)
	assert.False(t, ok)

	var order []int
	level.ForEachFocus(func(f *Focus) { order = append(order, f.ID()) })
	assert.Equal(t, []int{0, 1}, order)
	assert.Equal(t, 2, level.Stats().Foci)
}

func TestLevel_GetChunk(t *testing.T) {
	cfg := testLevelConfig()
	cfg.Bounds = vec.New(4, 4, 4)
	level, _, _ := newTestLevel(t, cfg)

	out := level.GetChunk(vec.New(-1, 0, 0), chunk.Options{WithNeighborsNeighbors: true})
	assert.True(t, out.IsSentinel())
	assert.True(t, out.IsLoaded())
	assert.True(t, out.IsEmpty())
	assert.Zero(t, level.Store().VoxelCount())

	in := level.GetChunk(vec.New(1, 1, 1), chunk.Options{WithNeighbors: true, WithNeighborsNeighbors: true})
	assert.False(t, in.IsSentinel())
	assert.Equal(t, chunk.MaxNeighborDepth, in.Depth())
	assert.False(t, in.IsLoaded())
}

func TestLevel_ProcessingAndStats(t *testing.T) {
	cfg := testLevelConfig()
	cfg.Bounds = vec.New(10, 3, 10)
	level, _, _ := newTestLevel(t, cfg)

	for _, layer := range aperture.Layers {
		p, err := level.ProcessingChunks(layer)
		require.NoError(t, err)
		assert.Empty(t, p.Queued)
		assert.Empty(t, p.Running)
	}
	_, err := level.ProcessingChunks(aperture.Layer(9))
	assert.Error(t, err)

	_, err = level.SpawnFocus(NewFocus(vec.New(5, 1, 5)))
	require.NoError(t, err)
	waitIdle(t, level)

	st := level.Stats()
	require.Len(t, st.Apertures, 3)
	assert.Equal(t, "loaded", st.Apertures[0].Layer)
	assert.Equal(t, "meshed", st.Apertures[1].Layer)
	assert.Equal(t, "visible", st.Apertures[2].Layer)
	assert.Equal(t, level.Store().VoxelCount(), st.LoadedChunks)
	assert.Positive(t, st.Events.Published)
}

func TestFocus_SetPosition(t *testing.T) {
	f := NewFocusAt(vec.Vec3F{X: 70, Y: 10, Z: -1})
	assert.Equal(t, vec.New(1, 0, -1), f.ChunkLocation())
	assert.Equal(t, -1, f.ID())

	assert.False(t, f.SetPosition(vec.Vec3F{X: 100, Y: 63, Z: -60}), "Внутри того же чанка перемещения нет")
	assert.True(t, f.SetPosition(vec.Vec3F{X: 128, Y: 0, Z: 0}))
	assert.Equal(t, vec.New(2, 0, 0), f.ChunkLocation())

	assert.ErrorIs(t, f.Remove(), ErrUnknownFocus)
}

func TestLevel_SetPositionDrivesApertures(t *testing.T) {
	cfg := testLevelConfig()
	cfg.Bounds = vec.New(12, 5, 12)
	cfg.Loaded = aperture.Config{Radius: 2, HeightRadius: 2, MaxConcurrency: 8}
	cfg.Meshed = aperture.Config{Radius: 1, HeightRadius: 0, MaxConcurrency: 8}
	cfg.Visible = aperture.Config{Radius: 0, HeightRadius: 0, MaxConcurrency: 8}
	level, _, log := newTestLevel(t, cfg)

	f := NewFocusAt(vec.Vec3F{X: 5*64 + 1, Y: 2*64 + 1, Z: 5*64 + 1})
	_, err := level.SpawnFocus(f)
	require.NoError(t, err)
	waitIdle(t, level)
	require.True(t, level.IsActive(vec.New(5, 2, 5)))

	assert.True(t, f.SetPosition(vec.Vec3F{X: 6*64 + 1, Y: 2*64 + 1, Z: 5*64 + 1}))
	waitIdle(t, level)

	assert.Equal(t, 1, log.count(eventbus.FocusChangedChunkLocation))
	assert.False(t, level.IsActive(vec.New(5, 2, 5)))
	assert.True(t, level.IsActive(vec.New(6, 2, 5)))
}

// movingOnSpawn перемещает фокус, пока уровень раздает его появление
type movingOnSpawn struct {
	aperture.Aperture
	focus *Focus
	to    vec.Vec3
}

func (m movingOnSpawn) OnFocusSpawned(f aperture.Focus) {
	m.Aperture.OnFocusSpawned(f)
	m.focus.SetChunkLocation(m.to)
}

// assertSettledAround проверяет, что все коробки уровня стоят вокруг center
func assertSettledAround(t *testing.T, level *Level, center vec.Vec3) {
	t.Helper()

	assert.Equal(t, 21*5*21, level.Store().VoxelCount(), "Коробка Loaded загружена целиком")
	vec.NewBox(center.Sub(vec.New(10, 0, 10)), center.Add(vec.New(10, 0, 10))).ForEach(func(p vec.Vec3) {
		assert.True(t, level.Store().IsLoaded(p), "%v не загружен", p)
	})

	meshes := level.Store().MeshLocations()
	assert.Len(t, meshes, 11*11)
	for _, loc := range meshes {
		assert.True(t, loc.IsWithin(center.Sub(vec.New(5, 0, 5)), center.Add(vec.New(5, 0, 5))), "%v вне коробки Meshed", loc)
	}

	active := 0
	vec.NewBox(vec.New(0, 2, 0), vec.New(99, 2, 99)).ForEach(func(p vec.Vec3) {
		if !level.IsActive(p) {
			return
		}
		active++
		assert.True(t, p.IsWithin(center.Sub(vec.New(3, 0, 3)), center.Add(vec.New(3, 0, 3))), "%v активен вне коробки Visible", p)
	})
	assert.Equal(t, 7*7, active)
}

func TestLevel_MoveDuringSpawnFanOut(t *testing.T) {
	level, _, log := newTestLevel(t, testLevelConfig())

	f := NewFocus(vec.New(50, 2, 50))
	target := vec.New(60, 2, 60)
	level.apertures[1] = movingOnSpawn{Aperture: level.apertures[1], focus: f, to: target}

	_, err := level.SpawnFocus(f)
	require.NoError(t, err)
	assert.Equal(t, target, f.ChunkLocation())
	waitIdle(t, level)

	assertSettledAround(t, level, target)
	assert.Equal(t, 1, log.count(eventbus.FocusChangedChunkLocation), "Перемещение во время появления догоняется одним событием")
}

func TestLevel_ConcurrentSpawnAndMove(t *testing.T) {
	level, _, _ := newTestLevel(t, testLevelConfig())

	f := NewFocus(vec.New(50, 2, 50))
	target := vec.New(30, 2, 40)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i <= 20; i++ {
			f.SetChunkLocation(vec.New(50-i, 2, 50-i/2))
		}
	}()
	_, err := level.SpawnFocus(f)
	require.NoError(t, err)
	wg.Wait()

	require.Equal(t, target, f.ChunkLocation())
	waitIdle(t, level)

	assertSettledAround(t, level, target)
}
