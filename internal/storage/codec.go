package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
	"github.com/klauspost/compress/zstd"
)

// Формат блоба чанка:
//
//	magic   [4]byte "EVXC"
//	version uint8
//	kind    uint8   вид хранилища
//	flags   uint8   бит 0: полезная нагрузка сжата zstd
//	bounds  3×int32 размеры хранилища
//	length  uint32  длина полезной нагрузки
//	payload         плотный массив типов в порядке индекса (x*by+y)*bz+z
const (
	codecVersion   = 1
	flagCompressed = 1 << 0
	headerSize     = 4 + 1 + 1 + 1 + 3*4 + 4
)

var codecMagic = [4]byte{'E', 'V', 'X', 'C'}

// ErrDeserializationMismatch блоб не соответствует ожидаемому формату или виду хранилища
var ErrDeserializationMismatch = errors.New("блоб чанка не соответствует формату")

// Codec сериализует хранилище вокселей в один бинарный блоб
type Codec struct {
	kind     voxel.Kind
	compress bool

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec создает кодек для хранилищ вида kind
func NewCodec(kind voxel.Kind, compress bool) (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("не удалось создать zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("не удалось создать zstd decoder: %w", err)
	}
	return &Codec{kind: kind, compress: compress, enc: enc, dec: dec}, nil
}

// Kind вид хранилища, который создает Decode
func (c *Codec) Kind() voxel.Kind {
	return c.kind
}

// Encode сериализует хранилище
func (c *Codec) Encode(s voxel.Storage) ([]byte, error) {
	bounds := s.Bounds()
	dense := make([]byte, bounds.Volume())
	s.ForEachNonAir(func(loc vec.Vec3, t voxel.Type) {
		dense[denseIndex(bounds, loc)] = byte(t)
	})

	payload := dense
	var flags uint8
	if c.compress {
		payload = c.enc.EncodeAll(dense, make([]byte, 0, len(dense)/8))
		flags |= flagCompressed
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(payload)))
	buf.Write(codecMagic[:])
	buf.WriteByte(codecVersion)
	buf.WriteByte(byte(s.Kind()))
	buf.WriteByte(flags)
	for _, v := range []int{bounds.X, bounds.Y, bounds.Z} {
		if err := binary.Write(buf, binary.LittleEndian, int32(v)); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(payload))); err != nil {
		return nil, err
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

// Decode восстанавливает хранилище и помечает его загруженным.
// Неверная сигнатура, версия или вид хранилища дают ErrDeserializationMismatch.
func (c *Codec) Decode(blob []byte) (voxel.Storage, error) {
	if len(blob) < headerSize {
		return nil, fmt.Errorf("%w: длина %d меньше заголовка", ErrDeserializationMismatch, len(blob))
	}
	if !bytes.Equal(blob[:4], codecMagic[:]) {
		return nil, fmt.Errorf("%w: неверная сигнатура %q", ErrDeserializationMismatch, blob[:4])
	}
	if blob[4] != codecVersion {
		return nil, fmt.Errorf("%w: версия %d", ErrDeserializationMismatch, blob[4])
	}
	kind := voxel.Kind(blob[5])
	if kind != c.kind {
		return nil, fmt.Errorf("%w: вид %s, ожидался %s", ErrDeserializationMismatch, kind, c.kind)
	}
	flags := blob[6]

	bounds := vec.New(
		int(int32(binary.LittleEndian.Uint32(blob[7:11]))),
		int(int32(binary.LittleEndian.Uint32(blob[11:15]))),
		int(int32(binary.LittleEndian.Uint32(blob[15:19]))),
	)
	if bounds.X <= 0 || bounds.Y <= 0 || bounds.Z <= 0 {
		return nil, fmt.Errorf("%w: границы %v", ErrDeserializationMismatch, bounds)
	}
	length := int(binary.LittleEndian.Uint32(blob[19:23]))
	if len(blob)-headerSize != length {
		return nil, fmt.Errorf("%w: длина нагрузки %d, ожидалась %d", ErrDeserializationMismatch, len(blob)-headerSize, length)
	}

	dense := blob[headerSize:]
	if flags&flagCompressed != 0 {
		var err error
		dense, err = c.dec.DecodeAll(dense, make([]byte, 0, bounds.Volume()))
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrDeserializationMismatch, err)
		}
	}
	if len(dense) != bounds.Volume() {
		return nil, fmt.Errorf("%w: %d вокселей вместо %d", ErrDeserializationMismatch, len(dense), bounds.Volume())
	}

	s, err := voxel.New(kind, bounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserializationMismatch, err)
	}
	for idx, b := range dense {
		if b == 0 {
			continue
		}
		if err := s.Set(denseLocation(bounds, idx), voxel.Type(b)); err != nil {
			return nil, err
		}
	}
	s.SetLoaded(true)
	return s, nil
}

// Close освобождает ресурсы zstd
func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

func denseIndex(bounds, loc vec.Vec3) int {
	return (loc.X*bounds.Y+loc.Y)*bounds.Z + loc.Z
}

func denseLocation(bounds vec.Vec3, idx int) vec.Vec3 {
	return vec.Vec3{
		X: idx / (bounds.Z * bounds.Y),
		Y: (idx / bounds.Z) % bounds.Y,
		Z: idx % bounds.Z,
	}
}
