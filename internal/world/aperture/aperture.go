// Package aperture содержит три уровня разрешения вокруг фокусов: Loaded (воксели),
// Meshed (меш) и Visible (активное представление). Каждый уровень хранит коробку
// на каждый фокус и гоняет свою работу через jobs.Queue.
package aperture

import (
	"context"
	"fmt"
	"strings"

	"github.com/annel0/voxel-stream/internal/app"
	"github.com/annel0/voxel-stream/internal/eventbus"
	"github.com/annel0/voxel-stream/internal/jobs"
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/world/chunk"
)

// Layer уровень разрешения
type Layer int

const (
	LayerLoaded Layer = iota
	LayerMeshed
	LayerVisible
)

// Layers все уровни в порядке зависимости
var Layers = []Layer{LayerLoaded, LayerMeshed, LayerVisible}

func (l Layer) String() string {
	switch l {
	case LayerLoaded:
		return "loaded"
	case LayerMeshed:
		return "meshed"
	case LayerVisible:
		return "visible"
	default:
		return fmt.Sprintf("layer(%d)", int(l))
	}
}

// ParseLayer разбирает имя уровня
func ParseLayer(name string) (Layer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "loaded":
		return LayerLoaded, nil
	case "meshed":
		return LayerMeshed, nil
	case "visible":
		return LayerVisible, nil
	default:
		return 0, fmt.Errorf("неизвестный уровень %q", name)
	}
}

// Focus точка интереса, вокруг которой уровни держат чанки
type Focus interface {
	ID() int
	ChunkLocation() vec.Vec3
}

// Aperture общий интерфейс уровней
type Aperture interface {
	eventbus.Observer

	Layer() Layer
	OnFocusSpawned(f Focus)
	OnFocusMoved(f Focus)
	OnFocusRemoved(f Focus)
	IsWithinManagedBounds(c vec.Vec3) bool

	// KillAll останавливает очереди уровня, Wait ждет их завершения
	KillAll()
	Wait(ctx context.Context) error

	Stats() Stats
	Processing() jobs.Snapshot[vec.Vec3]
}

// Env общие зависимости уровней одного Level
type Env struct {
	App    *app.Context
	Store  *chunk.Store
	Bounds vec.Vec3
	Seed   int64
}

// Config радиусы и размер пула уровня
type Config struct {
	Radius         int
	HeightRadius   int
	MaxConcurrency int
}

// Stats счетчики уровня
type Stats struct {
	Layer           string                `json:"layer"`
	Radius          int                   `json:"radius"`
	HeightRadius    int                   `json:"height_radius"`
	Foci            int                   `json:"foci"`
	Received        uint64                `json:"received"`
	OutOfFocus      uint64                `json:"dropped_out_of_focus"`
	DroppedEmpty    uint64                `json:"dropped_empty"`
	AlreadyMeshed   uint64                `json:"already_meshed"`
	MeshesGenerated uint64                `json:"meshes_generated"`
	EmptyMeshes     uint64                `json:"empty_meshes"`
	Active          int                   `json:"active"`
	Queued          int                   `json:"queued"`
	Queues          map[string]jobs.Stats `json:"queues"`
}

// mergeSnapshots объединяет снимки нескольких очередей
func mergeSnapshots(snaps ...jobs.Snapshot[vec.Vec3]) jobs.Snapshot[vec.Vec3] {
	var out jobs.Snapshot[vec.Vec3]
	for _, s := range snaps {
		out.Queued = append(out.Queued, s.Queued...)
		out.Running = append(out.Running, s.Running...)
	}
	return out
}

// waitAll ждет остановки очередей
func waitAll(ctx context.Context, queues ...interface{ Wait(context.Context) error }) error {
	for _, q := range queues {
		if err := q.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
