package eventbus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-stream/internal/logging"
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// PayloadVersion версия схемы полезной нагрузки Envelope
const PayloadVersion = 1

// Bridge наблюдатель диспетчера, пересылающий события во внешнюю шину.
// Пересылка асинхронная: воркеры конвейера не ждут сеть.
type Bridge struct {
	bus    EventBus
	source string
	logger *logging.Logger

	queue   chan Event
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

// NewBridge создает мост и запускает горутину пересылки
func NewBridge(bus EventBus, source string, buffer int, logger *logging.Logger) *Bridge {
	if buffer <= 0 {
		buffer = 1024
	}
	b := &Bridge{
		bus:    bus,
		source: source,
		logger: logger,
		queue:  make(chan Event, buffer),
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

// NotifyOf реализует Observer
func (b *Bridge) NotifyOf(_ context.Context, ev Event) {
	select {
	case b.queue <- ev:
	default:
		b.dropped.Add(1)
	}
}

// Dropped число событий, отброшенных из-за переполнения буфера
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// Close дожидается пересылки буфера. После Close NotifyOf вызывать нельзя.
func (b *Bridge) Close() {
	b.once.Do(func() {
		close(b.queue)
		b.wg.Wait()
	})
}

func (b *Bridge) loop() {
	defer b.wg.Done()
	for ev := range b.queue {
		env, err := NewEnvelope(ev, b.source)
		if err != nil {
			b.logger.Error("❌ Не удалось упаковать событие %s: %v", ev, err)
			continue
		}
		if err := b.bus.Publish(context.Background(), env); err != nil {
			b.logger.Warn("⚠️ Не удалось опубликовать событие %s: %v", ev, err)
		}
	}
}

// priorityOf активация важнее служебных событий при переполнении шины
func priorityOf(t EventType) int {
	switch t {
	case SetChunkActive, SetChunkInactive, FocusSpawned, FocusLeft:
		return 5
	default:
		return 1
	}
}

// NewEnvelope упаковывает событие конвейера в Envelope
func NewEnvelope(ev Event, source string) (*Envelope, error) {
	payload, err := encodePayload(ev)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Source:    source,
		EventType: string(ev.Type),
		Version:   PayloadVersion,
		Priority:  priorityOf(ev.Type),
		Payload:   payload,
		Metadata:  map[string]string{"origin": ev.Origin},
	}, nil
}

func vecValue(v vec.Vec3) *structpb.Value {
	return structpb.NewStructValue(&structpb.Struct{Fields: map[string]*structpb.Value{
		"x": structpb.NewNumberValue(float64(v.X)),
		"y": structpb.NewNumberValue(float64(v.Y)),
		"z": structpb.NewNumberValue(float64(v.Z)),
	}})
}

func encodePayload(ev Event) ([]byte, error) {
	s := &structpb.Struct{Fields: map[string]*structpb.Value{
		"type":   structpb.NewStringValue(string(ev.Type)),
		"origin": structpb.NewStringValue(ev.Origin),
	}}
	if ev.Type.IsFocusEvent() {
		s.Fields["focus_id"] = structpb.NewNumberValue(float64(ev.FocusID))
		s.Fields["focus"] = vecValue(ev.Focus)
	} else {
		s.Fields["chunk"] = vecValue(ev.Chunk)
	}
	return proto.Marshal(s)
}

func vecFrom(v *structpb.Value) vec.Vec3 {
	f := v.GetStructValue().GetFields()
	return vec.Vec3{
		X: int(f["x"].GetNumberValue()),
		Y: int(f["y"].GetNumberValue()),
		Z: int(f["z"].GetNumberValue()),
	}
}

// DecodeEnvelope восстанавливает событие конвейера из Envelope
func DecodeEnvelope(env *Envelope) (Event, error) {
	if env.Version != PayloadVersion {
		return Event{}, fmt.Errorf("неподдерживаемая версия события %d", env.Version)
	}
	var s structpb.Struct
	if err := proto.Unmarshal(env.Payload, &s); err != nil {
		return Event{}, fmt.Errorf("ошибка разбора события %s: %w", env.ID, err)
	}

	ev := Event{
		Type:    EventType(s.Fields["type"].GetStringValue()),
		Origin:  s.Fields["origin"].GetStringValue(),
		FocusID: -1,
	}
	if ev.Type.IsFocusEvent() {
		ev.FocusID = int(s.Fields["focus_id"].GetNumberValue())
		ev.Focus = vecFrom(s.Fields["focus"])
	} else {
		ev.Chunk = vecFrom(s.Fields["chunk"])
	}
	return ev, nil
}
