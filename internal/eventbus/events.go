package eventbus

import (
	"fmt"

	"github.com/annel0/voxel-stream/internal/vec"
)

// EventType тип события конвейера чанков
type EventType string

const (
	ChunkDataLoadFinished       EventType = "ChunkDataLoadFinished"
	ChunkDataNotFoundInFiles    EventType = "ChunkDataNotFoundInFiles"
	ChunkMeshGenerationFinished EventType = "ChunkMeshGenerationFinished"
	ChunkMeshMovedOutOfFocus    EventType = "ChunkMeshMovedOutOfFocus"
	SetChunkActive              EventType = "SetChunkActive"
	SetChunkInactive            EventType = "SetChunkInactive"
	ChunkMissingMeshWhileActive EventType = "ChunkMissingMeshWhileActive"
	FocusSpawned                EventType = "FocusSpawned"
	FocusChangedChunkLocation   EventType = "FocusChangedChunkLocation"
	FocusLeft                   EventType = "FocusLeft"
)

// AllEventTypes все типы событий в порядке объявления
var AllEventTypes = []EventType{
	ChunkDataLoadFinished,
	ChunkDataNotFoundInFiles,
	ChunkMeshGenerationFinished,
	ChunkMeshMovedOutOfFocus,
	SetChunkActive,
	SetChunkInactive,
	ChunkMissingMeshWhileActive,
	FocusSpawned,
	FocusChangedChunkLocation,
	FocusLeft,
}

// IsFocusEvent true для событий жизненного цикла фокуса
func (t EventType) IsFocusEvent() bool {
	switch t {
	case FocusSpawned, FocusChangedChunkLocation, FocusLeft:
		return true
	default:
		return false
	}
}

// Channel канал доставки событий
type Channel uint8

const (
	Basic Channel = iota
	TerrainGeneration
	LevelFocusUpdates
	ChunkActivationUpdates
)

func (c Channel) String() string {
	switch c {
	case Basic:
		return "basic"
	case TerrainGeneration:
		return "terrain_generation"
	case LevelFocusUpdates:
		return "level_focus_updates"
	case ChunkActivationUpdates:
		return "chunk_activation_updates"
	default:
		return fmt.Sprintf("channel(%d)", uint8(c))
	}
}

// Event событие конвейера. Для событий чанка заполнено Chunk,
// для событий фокуса FocusID и Focus (координата чанка фокуса).
type Event struct {
	Type    EventType
	Chunk   vec.Vec3
	FocusID int
	Focus   vec.Vec3
	Origin  string // Кто опубликовал событие
}

// ChunkEvent создает событие чанка
func ChunkEvent(t EventType, chunk vec.Vec3, origin string) Event {
	return Event{Type: t, Chunk: chunk, FocusID: -1, Origin: origin}
}

// FocusEvent создает событие фокуса
func FocusEvent(t EventType, focusID int, focus vec.Vec3, origin string) Event {
	return Event{Type: t, FocusID: focusID, Focus: focus, Origin: origin}
}

func (e Event) String() string {
	if e.Type.IsFocusEvent() {
		return fmt.Sprintf("%s{focus=%d at %v}", e.Type, e.FocusID, e.Focus)
	}
	return fmt.Sprintf("%s{chunk=%v}", e.Type, e.Chunk)
}

// Channel канал, в который публикуется событие данного типа
func (t EventType) Channel() Channel {
	switch t {
	case SetChunkActive, SetChunkInactive:
		return ChunkActivationUpdates
	case FocusSpawned, FocusChangedChunkLocation, FocusLeft:
		return LevelFocusUpdates
	default:
		return TerrainGeneration
	}
}
