package storage

import (
	"testing"

	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/annel0/voxel-stream/internal/voxel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStorage(t *testing.T, kind voxel.Kind) voxel.Storage {
	t.Helper()
	s, err := voxel.New(kind, vec.New(8, 6, 4))
	require.NoError(t, err)
	require.NoError(t, s.Set(vec.New(0, 0, 0), 2))
	require.NoError(t, s.Set(vec.New(7, 5, 3), 4))
	require.NoError(t, s.Set(vec.New(3, 2, 1), 3))
	s.SetLoaded(true)
	return s
}

func collect(s voxel.Storage) map[vec.Vec3]voxel.Type {
	out := make(map[vec.Vec3]voxel.Type)
	s.ForEachNonAir(func(loc vec.Vec3, t voxel.Type) { out[loc] = t })
	return out
}

func TestCodec_RoundTrip(t *testing.T) {
	kinds := []voxel.Kind{voxel.KindFlatArray, voxel.KindSparse, voxel.KindJagged}

	for _, kind := range kinds {
		for _, compress := range []bool{false, true} {
			codec, err := NewCodec(kind, compress)
			require.NoError(t, err)

			src := sampleStorage(t, kind)
			blob, err := codec.Encode(src)
			require.NoError(t, err)

			got, err := codec.Decode(blob)
			require.NoError(t, err, "%s/%v: декодирование", kind, compress)

			assert.Equal(t, kind, got.Kind())
			assert.Equal(t, src.Bounds(), got.Bounds())
			assert.True(t, got.IsLoaded(), "Декодированное хранилище помечается загруженным")
			assert.Equal(t, collect(src), collect(got), "%s/%v: воксели должны совпадать", kind, compress)
			codec.Close()
		}
	}
}

func TestCodec_EmptyStorage(t *testing.T) {
	codec, err := NewCodec(voxel.KindFlatArray, true)
	require.NoError(t, err)
	defer codec.Close()

	blob, err := codec.Encode(voxel.NewFlatArray(vec.Splat(16)))
	require.NoError(t, err)
	got, err := codec.Decode(blob)
	require.NoError(t, err)
	assert.True(t, got.IsEmpty())
}

func TestCodec_Mismatch(t *testing.T) {
	flat, err := NewCodec(voxel.KindFlatArray, false)
	require.NoError(t, err)
	defer flat.Close()
	sparse, err := NewCodec(voxel.KindSparse, false)
	require.NoError(t, err)
	defer sparse.Close()

	blob, err := flat.Encode(sampleStorage(t, voxel.KindFlatArray))
	require.NoError(t, err)

	_, err = sparse.Decode(blob)
	assert.ErrorIs(t, err, ErrDeserializationMismatch, "Вид хранилища не совпадает")

	bad := append([]byte(nil), blob...)
	copy(bad, "NOPE")
	_, err = flat.Decode(bad)
	assert.ErrorIs(t, err, ErrDeserializationMismatch, "Неверная сигнатура")

	bad = append([]byte(nil), blob...)
	bad[4] = 99
	_, err = flat.Decode(bad)
	assert.ErrorIs(t, err, ErrDeserializationMismatch, "Неизвестная версия")

	_, err = flat.Decode(blob[:len(blob)-1])
	assert.ErrorIs(t, err, ErrDeserializationMismatch, "Обрезанный блоб")

	_, err = flat.Decode([]byte("EV"))
	assert.ErrorIs(t, err, ErrDeserializationMismatch)
}

func BenchmarkCodec_EncodeDecode(b *testing.B) {
	codec, _ := NewCodec(voxel.KindFlatArray, true)
	defer codec.Close()

	s := voxel.NewFlatArray(vec.Splat(64))
	vec.NewBox(vec.Zero, vec.New(63, 30, 63)).ForEach(func(p vec.Vec3) {
		_ = s.Set(p, 2)
	})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		blob, _ := codec.Encode(s)
		_, _ = codec.Decode(blob)
	}
}
