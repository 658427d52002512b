package vec

import (
	"fmt"
	"math"
)

// Vec3 представляет трехмерный вектор с целочисленными координатами.
// Используется и как мировая координата вокселя, и как координата чанка.
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Vec3F представляет трехмерный вектор с плавающими координатами
type Vec3F struct {
	X float64
	Y float64
	Z float64
}

// Zero нулевой вектор
var Zero = Vec3{}

// New создает Vec3 из трех компонент
func New(x, y, z int) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

// Splat создает Vec3 с одинаковыми компонентами
func Splat(v int) Vec3 {
	return Vec3{X: v, Y: v, Z: v}
}

// ToVec2 возвращает проекцию на плоскость XZ (колонка)
func (v Vec3) ToVec2() Vec2 {
	return Vec2{X: v.X, Y: v.Z}
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Scale умножает вектор на скаляр
func (v Vec3) Scale(k int) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Mul покомпонентное умножение
func (v Vec3) Mul(other Vec3) Vec3 {
	return Vec3{X: v.X * other.X, Y: v.Y * other.Y, Z: v.Z * other.Z}
}

// Min покомпонентный минимум
func (v Vec3) Min(other Vec3) Vec3 {
	return Vec3{X: min(v.X, other.X), Y: min(v.Y, other.Y), Z: min(v.Z, other.Z)}
}

// Max покомпонентный максимум
func (v Vec3) Max(other Vec3) Vec3 {
	return Vec3{X: max(v.X, other.X), Y: max(v.Y, other.Y), Z: max(v.Z, other.Z)}
}

// DistanceTo возвращает евклидово расстояние до другого вектора
func (v Vec3) DistanceTo(other Vec3) float64 {
	return math.Sqrt(float64(v.DistanceSquared(other)))
}

// DistanceSquared возвращает квадрат расстояния (без корня)
func (v Vec3) DistanceSquared(other Vec3) int {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return dx*dx + dy*dy + dz*dz
}

// WeightedDistanceTo возвращает расстояние, в котором ось Y растянута в yWeight раз.
// При yWeight > 1 ближайшими считаются чанки в горизонтальной плоскости.
func (v Vec3) WeightedDistanceTo(other Vec3, yWeight float64) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y-other.Y) * yWeight
	dz := float64(v.Z - other.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Chebyshev возвращает расстояние Чебышёва (максимум по осям)
func (v Vec3) Chebyshev(other Vec3) int {
	return max(abs(v.X-other.X), abs(v.Y-other.Y), abs(v.Z-other.Z))
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// IsWithin проверяет, что вектор лежит в [minCorner, maxCorner] включительно
func (v Vec3) IsWithin(minCorner, maxCorner Vec3) bool {
	return v.X >= minCorner.X && v.X <= maxCorner.X &&
		v.Y >= minCorner.Y && v.Y <= maxCorner.Y &&
		v.Z >= minCorner.Z && v.Z <= maxCorner.Z
}

// IsWithinBounds проверяет, что вектор лежит в [0, bounds)
func (v Vec3) IsWithinBounds(bounds Vec3) bool {
	return v.X >= 0 && v.X < bounds.X &&
		v.Y >= 0 && v.Y < bounds.Y &&
		v.Z >= 0 && v.Z < bounds.Z
}

// Volume возвращает произведение компонент
func (v Vec3) Volume() int {
	return v.X * v.Y * v.Z
}

// FloorDiv делит каждую компоненту на d с округлением вниз
func (v Vec3) FloorDiv(d int) Vec3 {
	return Vec3{X: floorDiv(v.X, d), Y: floorDiv(v.Y, d), Z: floorDiv(v.Z, d)}
}

// ToFloat преобразует в Vec3F
func (v Vec3) ToFloat() Vec3F {
	return Vec3F{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// String возвращает представление вида (x, y, z)
func (v Vec3) String() string {
	return fmt.Sprintf("(%d, %d, %d)", v.X, v.Y, v.Z)
}

// SaveString возвращает представление, пригодное для имени файла: x.y.z
func (v Vec3) SaveString() string {
	return fmt.Sprintf("%d.%d.%d", v.X, v.Y, v.Z)
}

// Add складывает два вектора
func (v Vec3F) Add(other Vec3F) Vec3F {
	return Vec3F{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Floor округляет компоненты вниз до целых
func (v Vec3F) Floor() Vec3 {
	return Vec3{
		X: int(math.Floor(v.X)),
		Y: int(math.Floor(v.Y)),
		Z: int(math.Floor(v.Z)),
	}
}

// ToChunk переводит мировую позицию в координату чанка с ребром diameter
func (v Vec3F) ToChunk(diameter int) Vec3 {
	return v.Floor().FloorDiv(diameter)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func abs(a int) int {
	if a < 0 {
		return -a
	}
	return a
}
