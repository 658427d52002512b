package world

import (
	"context"
	"sync"

	"github.com/annel0/voxel-stream/internal/eventbus"
	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/world/chunk"
)

// Focus точка интереса (игрок, камера), вокруг которой уровень держит чанки.
// ID назначает уровень при появлении и не меняет до удаления.
type Focus struct {
	mu     sync.RWMutex
	id     int
	loc    vec.Vec3
	active bool
	level  *Level
}

// NewFocus создает фокус в координате чанка
func NewFocus(chunkLoc vec.Vec3) *Focus {
	return &Focus{id: -1, loc: chunkLoc}
}

// NewFocusAt создает фокус по мировой позиции
func NewFocusAt(worldPos vec.Vec3F) *Focus {
	return NewFocus(worldPos.ToChunk(chunk.Diameter))
}

// ID идентификатор фокуса, -1 до появления на уровне
func (f *Focus) ID() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.id
}

// ChunkLocation координата чанка, в котором находится фокус
func (f *Focus) ChunkLocation() vec.Vec3 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.loc
}

// IsActive true между появлением и удалением
func (f *Focus) IsActive() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.active
}

// SetPosition переводит мировую позицию в координату чанка.
// Событие о перемещении публикуется только при смене чанка.
func (f *Focus) SetPosition(worldPos vec.Vec3F) bool {
	return f.SetChunkLocation(worldPos.ToChunk(chunk.Diameter))
}

// SetChunkLocation перемещает фокус в другой чанк.
// Возвращает false, если координата не изменилась.
func (f *Focus) SetChunkLocation(loc vec.Vec3) bool {
	f.mu.Lock()
	if f.loc == loc {
		f.mu.Unlock()
		return false
	}
	f.loc = loc
	id, level, active := f.id, f.level, f.active
	f.mu.Unlock()

	if active && level != nil {
		level.publish(context.Background(), eventbus.FocusEvent(eventbus.FocusChangedChunkLocation, id, loc, "focus"))
	}
	return true
}

// Remove убирает фокус с уровня
func (f *Focus) Remove() error {
	f.mu.RLock()
	level := f.level
	f.mu.RUnlock()
	if level == nil {
		return ErrUnknownFocus
	}
	return level.RemoveFocus(f)
}

func (f *Focus) attach(level *Level, id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.level = level
	f.id = id
}

// activate включает публикацию перемещений и возвращает координату на этот момент.
// Перемещения после activate публикуются сами.
func (f *Focus) activate() vec.Vec3 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = true
	return f.loc
}

func (f *Focus) detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = false
	f.level = nil
	f.id = -1
}
