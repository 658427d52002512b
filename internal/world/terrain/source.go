package terrain

import (
	"sync/atomic"

	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
)

// Source детерминированный источник содержимого мира
type Source interface {
	Seed() int64
	// Generate возвращает тип вокселя в мировой координате
	Generate(global vec.Vec3) voxel.Type
}

// Filler заполняет хранилище чанка целиком, минуя повоксельный обход.
// Реализуют источники, которые знают форму рельефа по колонкам.
type Filler interface {
	Fill(chunkLoc vec.Vec3, s voxel.Storage) error
}

// counter общий счетчик сгенерированных вокселей
type counter struct {
	generated atomic.Int64
}

// VoxelsGenerated число вокселей, обработанных источником
func (c *counter) VoxelsGenerated() int64 {
	return c.generated.Load()
}

// Fill заполняет хранилище s содержимым чанка chunkLoc.
// Воздух не записывается.
func Fill(src Source, chunkLoc vec.Vec3, s voxel.Storage) error {
	if f, ok := src.(Filler); ok {
		return f.Fill(chunkLoc, s)
	}

	bounds := s.Bounds()
	origin := chunkLoc.Mul(bounds)

	var err error
	vec.NewBox(vec.Zero, bounds.Sub(vec.Splat(1))).ForEach(func(local vec.Vec3) {
		if err != nil {
			return
		}
		if t := src.Generate(origin.Add(local)); t != voxel.Air {
			err = s.Set(local, t)
		}
	})
	return err
}
