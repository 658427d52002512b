package voxel

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/annel0/voxel-stream/internal/vec"
)

// Type идентификатор типа вокселя (плотность/материал). 0 = воздух.
type Type uint8

// Air пустой воксель. Хранилища вправе его не хранить.
const Air Type = 0

// ErrOutOfRange возвращается при обращении к координате вне [0, bounds)
var ErrOutOfRange = errors.New("координата вне границ хранилища вокселей")

// ErrUnknownKind возвращается для неизвестного вида хранилища
var ErrUnknownKind = errors.New("неизвестный вид хранилища вокселей")

// Kind определяет стратегию хранения вокселей
type Kind uint8

const (
	KindFlatArray Kind = iota + 1 // Плоский массив
	KindSparse                    // Разреженный словарь
	KindJagged                    // Рваный массив с ленивым ростом
)

// String возвращает имя вида хранилища
func (k Kind) String() string {
	switch k {
	case KindFlatArray:
		return "flat"
	case KindSparse:
		return "sparse"
	case KindJagged:
		return "jagged"
	default:
		return "unknown"
	}
}

// ParseKind разбирает имя вида хранилища из конфигурации
func ParseKind(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "flat", "flat_array":
		return KindFlatArray, nil
	case "sparse", "dictionary":
		return KindSparse, nil
	case "jagged", "jagged_array":
		return KindJagged, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
}

// Storage хранилище вокселей одного чанка
type Storage interface {
	Kind() Kind
	Bounds() vec.Vec3

	// Get возвращает воксель или ErrOutOfRange
	Get(loc vec.Vec3) (Type, error)
	// Set записывает воксель или возвращает ErrOutOfRange
	Set(loc vec.Vec3, t Type) error

	IsLoaded() bool
	SetLoaded(loaded bool)
	IsEmpty() bool
	IsFull() bool

	// Count число не-воздушных вокселей
	Count() int
	// ForEachNonAir обходит все не-воздушные воксели
	ForEachNonAir(fn func(loc vec.Vec3, t Type))
}

// New создает пустое хранилище указанного вида
func New(kind Kind, bounds vec.Vec3) (Storage, error) {
	switch kind {
	case KindFlatArray:
		return NewFlatArray(bounds), nil
	case KindSparse:
		return NewSparse(bounds), nil
	case KindJagged:
		return NewJagged(bounds), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, kind)
	}
}

// MustGet возвращает воксель, считая выход за границы воздухом
func MustGet(s Storage, loc vec.Vec3) Type {
	t, err := s.Get(loc)
	if err != nil {
		return Air
	}
	return t
}

// loadState общий флаг загруженности
type loadState struct {
	loaded atomic.Bool
}

func (l *loadState) IsLoaded() bool {
	return l.loaded.Load()
}

func (l *loadState) SetLoaded(loaded bool) {
	l.loaded.Store(loaded)
}

func outOfRange(loc, bounds vec.Vec3) error {
	return fmt.Errorf("%w: %v не в [0, %v)", ErrOutOfRange, loc, bounds)
}
