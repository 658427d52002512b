package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/annel0/voxel-stream/internal/logging"
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) NotifyOf(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestDispatcher_ChannelRouting(t *testing.T) {
	d := NewDispatcher()
	terrain := &recorder{}
	focus := &recorder{}
	both := &recorder{}

	d.Subscribe(terrain, TerrainGeneration)
	d.Subscribe(focus, LevelFocusUpdates)
	d.Subscribe(both, TerrainGeneration, LevelFocusUpdates)

	ctx := context.Background()
	d.Publish(ctx, ChunkEvent(ChunkDataLoadFinished, vec.New(1, 2, 3), "test"), TerrainGeneration)
	d.Publish(ctx, FocusEvent(FocusSpawned, 0, vec.Zero, "test"), LevelFocusUpdates)
	d.Publish(ctx, ChunkEvent(SetChunkActive, vec.Zero, "test"), TerrainGeneration, LevelFocusUpdates)

	assert.Len(t, terrain.all(), 2)
	assert.Len(t, focus.all(), 2)
	assert.Len(t, both.all(), 3, "Наблюдатель на двух каналах получает событие один раз")

	// Без каналов событие получают все
	d.Publish(ctx, ChunkEvent(SetChunkInactive, vec.Zero, "test"))
	assert.Len(t, terrain.all(), 3)
	assert.Len(t, focus.all(), 3)

	stats := d.Stats()
	assert.Equal(t, uint64(4), stats.Published)
	assert.Equal(t, uint64(10), stats.Delivered)
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	d := NewDispatcher()
	calls := 0
	sub := d.Subscribe(ObserverFunc(func(context.Context, Event) { calls++ }))

	d.Publish(context.Background(), ChunkEvent(SetChunkActive, vec.Zero, "t"), Basic)
	sub.Unsubscribe()
	sub.Unsubscribe()
	d.Publish(context.Background(), ChunkEvent(SetChunkActive, vec.Zero, "t"), Basic)

	assert.Equal(t, 1, calls)
}

func TestDispatcher_PublishFromHandler(t *testing.T) {
	// Обработчик может публиковать повторно: блокировка на время вызова не держится
	d := NewDispatcher()
	second := &recorder{}
	d.Subscribe(ObserverFunc(func(ctx context.Context, ev Event) {
		if ev.Type == ChunkDataLoadFinished {
			d.Publish(ctx, ChunkEvent(ChunkMeshGenerationFinished, ev.Chunk, "handler"), TerrainGeneration)
		}
	}), TerrainGeneration)
	d.Subscribe(second, TerrainGeneration)

	d.Publish(context.Background(), ChunkEvent(ChunkDataLoadFinished, vec.New(4, 0, 4), "t"), TerrainGeneration)
	types := []EventType{}
	for _, ev := range second.all() {
		types = append(types, ev.Type)
	}
	assert.ElementsMatch(t, []EventType{ChunkDataLoadFinished, ChunkMeshGenerationFinished}, types)
}

func TestEnvelope_RoundTrip(t *testing.T) {
	chunkEv := ChunkEvent(SetChunkActive, vec.New(-3, 2, 9), "visible")
	env, err := NewEnvelope(chunkEv, "voxel-stream")
	require.NoError(t, err)
	assert.Equal(t, "SetChunkActive", env.EventType)
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, 5, env.Priority)

	decoded, err := DecodeEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, chunkEv, decoded)

	focusEv := FocusEvent(FocusChangedChunkLocation, 3, vec.New(10, 1, 12), "level")
	env, err = NewEnvelope(focusEv, "voxel-stream")
	require.NoError(t, err)
	decoded, err = DecodeEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, focusEv, decoded)

	env.Version = 99
	_, err = DecodeEnvelope(env)
	assert.Error(t, err)
}

func TestBridge_ForwardsToMemoryBus(t *testing.T) {
	bus := NewMemoryBus(16)
	defer bus.Close()

	got := make(chan *Envelope, 4)
	_, err := bus.Subscribe(context.Background(), Filter{Types: []string{string(SetChunkActive)}}, func(_ context.Context, ev *Envelope) {
		got <- ev
	})
	require.NoError(t, err)

	d := NewDispatcher()
	bridge := NewBridge(bus, "voxel-stream", 8, logging.NewNopLogger())
	d.Subscribe(bridge, ChunkActivationUpdates)

	d.Publish(context.Background(), ChunkEvent(SetChunkInactive, vec.New(1, 1, 1), "visible"), ChunkActivationUpdates)
	d.Publish(context.Background(), ChunkEvent(SetChunkActive, vec.New(2, 2, 2), "visible"), ChunkActivationUpdates)
	bridge.Close()

	select {
	case env := <-got:
		ev, err := DecodeEnvelope(env)
		require.NoError(t, err)
		assert.Equal(t, vec.New(2, 2, 2), ev.Chunk)
		assert.Equal(t, "visible", env.Metadata["origin"])
	case <-time.After(2 * time.Second):
		t.Fatal("Событие не дошло до шины")
	}
	assert.Equal(t, uint64(0), bridge.Dropped())
}

func TestMemoryBus_CloseRejectsPublish(t *testing.T) {
	bus := NewMemoryBus(1)
	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(context.Background(), &Envelope{}), ErrBusClosed)
	assert.NoError(t, bus.Close(), "Повторное закрытие безопасно")
}
