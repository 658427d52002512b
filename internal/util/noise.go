package util

import (
	"github.com/aquilax/go-perlin"
)

// Параметры шума по умолчанию
const (
	DefaultAlpha   = 2.0 // Сглаживание шума
	DefaultBeta    = 2.0 // Частота шума
	DefaultOctaves = 3   // Количество октав
)

// Noise генератор шума Перлина, привязанный к сиду.
// После создания только читается, поэтому безопасен для конкурентного использования.
type Noise struct {
	seed   int64
	perlin *perlin.Perlin
}

// NewNoise создает генератор шума Перлина с параметрами по умолчанию
func NewNoise(seed int64) *Noise {
	return NewNoiseWithParams(seed, DefaultAlpha, DefaultBeta, DefaultOctaves)
}

// NewNoiseWithParams создает генератор шума с явными параметрами
func NewNoiseWithParams(seed int64, alpha, beta float64, octaves int32) *Noise {
	return &Noise{
		seed:   seed,
		perlin: perlin.NewPerlin(alpha, beta, octaves, seed),
	}
}

// Seed возвращает сид генератора
func (n *Noise) Seed() int64 {
	return n.seed
}

// Noise2D возвращает значение шума Перлина для указанных координат (от 0 до 1)
func (n *Noise) Noise2D(x, y float64) float64 {
	// Значение шума от -1 до 1 переводим в диапазон от 0 до 1
	return clamp01((n.perlin.Noise2D(x, y) + 1.0) / 2.0)
}

// Noise3D возвращает трехмерный шум (от 0 до 1)
func (n *Noise) Noise3D(x, y, z float64) float64 {
	return clamp01((n.perlin.Noise3D(x, y, z) + 1.0) / 2.0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
