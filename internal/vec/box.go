package vec

// Box описывает осевой параллелепипед на целочисленной решетке.
// Оба угла входят в коробку. Коробка пуста, если Min > Max хотя бы по одной оси.
type Box struct {
	Min Vec3
	Max Vec3
}

// NewBox создает коробку по двум углам в любом порядке
func NewBox(a, b Vec3) Box {
	return Box{Min: a.Min(b), Max: a.Max(b)}
}

// BoxAround создает коробку center ± radius
func BoxAround(center, radius Vec3) Box {
	return Box{Min: center.Sub(radius), Max: center.Add(radius)}
}

// IsEmpty возвращает true, если коробка не содержит точек
func (b Box) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Size возвращает число точек по каждой оси
func (b Box) Size() Vec3 {
	if b.IsEmpty() {
		return Zero
	}
	return b.Max.Sub(b.Min).Add(Splat(1))
}

// Volume возвращает число точек решетки в коробке
func (b Box) Volume() int {
	return b.Size().Volume()
}

// Contains проверяет принадлежность точки коробке
func (b Box) Contains(p Vec3) bool {
	return p.IsWithin(b.Min, b.Max)
}

// Intersect возвращает пересечение двух коробок (может быть пустым)
func (b Box) Intersect(other Box) Box {
	return Box{Min: b.Min.Max(other.Min), Max: b.Max.Min(other.Max)}
}

// Clamp обрезает коробку до [minCorner, maxCorner]
func (b Box) Clamp(minCorner, maxCorner Vec3) Box {
	return Box{Min: b.Min.Max(minCorner), Max: b.Max.Min(maxCorner)}
}

// ForEach вызывает fn для каждой точки коробки. Порядок: x, затем y, затем z.
func (b Box) ForEach(fn func(p Vec3)) {
	if b.IsEmpty() {
		return
	}
	for x := b.Min.X; x <= b.Max.X; x++ {
		for y := b.Min.Y; y <= b.Max.Y; y++ {
			for z := b.Min.Z; z <= b.Max.Z; z++ {
				fn(Vec3{X: x, Y: y, Z: z})
			}
		}
	}
}

// Points возвращает все точки коробки
func (b Box) Points() []Vec3 {
	points := make([]Vec3, 0, b.Volume())
	b.ForEach(func(p Vec3) {
		points = append(points, p)
	})
	return points
}

// Difference разбивает b \ other на непересекающиеся коробки (не более шести).
func (b Box) Difference(other Box) []Box {
	if b.IsEmpty() {
		return nil
	}
	inter := b.Intersect(other)
	if inter.IsEmpty() {
		return []Box{b}
	}

	parts := make([]Box, 0, 6)
	add := func(part Box) {
		if !part.IsEmpty() {
			parts = append(parts, part)
		}
	}

	// Слои по X на всю высоту и глубину b
	add(Box{Min: b.Min, Max: Vec3{X: inter.Min.X - 1, Y: b.Max.Y, Z: b.Max.Z}})
	add(Box{Min: Vec3{X: inter.Max.X + 1, Y: b.Min.Y, Z: b.Min.Z}, Max: b.Max})

	// Внутри полосы пересечения по X: слои по Y
	add(Box{
		Min: Vec3{X: inter.Min.X, Y: b.Min.Y, Z: b.Min.Z},
		Max: Vec3{X: inter.Max.X, Y: inter.Min.Y - 1, Z: b.Max.Z},
	})
	add(Box{
		Min: Vec3{X: inter.Min.X, Y: inter.Max.Y + 1, Z: b.Min.Z},
		Max: Vec3{X: inter.Max.X, Y: b.Max.Y, Z: b.Max.Z},
	})

	// Внутри столбца пересечения по X и Y: слои по Z
	add(Box{
		Min: Vec3{X: inter.Min.X, Y: inter.Min.Y, Z: b.Min.Z},
		Max: Vec3{X: inter.Max.X, Y: inter.Max.Y, Z: inter.Min.Z - 1},
	})
	add(Box{
		Min: Vec3{X: inter.Min.X, Y: inter.Min.Y, Z: inter.Max.Z + 1},
		Max: Vec3{X: inter.Max.X, Y: inter.Max.Y, Z: b.Max.Z},
	})

	return parts
}

// DifferencePoints возвращает точки b, не входящие в other
func (b Box) DifferencePoints(other Box) []Vec3 {
	var points []Vec3
	for _, part := range b.Difference(other) {
		points = append(points, part.Points()...)
	}
	return points
}
