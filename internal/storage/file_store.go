package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/annel0/voxel-stream/internal/vec"
)

// FileExtension расширение файла чанка
const FileExtension = ".evxch"

// FileStore хранит каждый чанк отдельным файлом <root>/<seed>/<x>.<y>.<z>.evxch.
// Каталог сида создается при первом сохранении.
type FileStore struct {
	root string
}

// NewFileStore создает файловое хранилище в каталоге root
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("пустой путь сохранения")
	}
	return &FileStore{root: root}, nil
}

// Path возвращает путь к файлу чанка
func (f *FileStore) Path(seed int64, loc vec.Vec3) string {
	return filepath.Join(f.root, strconv.FormatInt(seed, 10), loc.SaveString()+FileExtension)
}

func (f *FileStore) Exists(ctx context.Context, seed int64, loc vec.Vec3) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(f.Path(seed, loc))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("ошибка проверки файла чанка %v: %w", loc, err)
	}
}

func (f *FileStore) Load(ctx context.Context, seed int64, loc vec.Vec3) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	blob, err := os.ReadFile(f.Path(seed, loc))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла чанка %v: %w", loc, err)
	}
	return blob, nil
}

// Save пишет блоб во временный файл и переименовывает его,
// чтобы читатель никогда не видел частично записанный чанк.
func (f *FileStore) Save(ctx context.Context, seed int64, loc vec.Vec3, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := f.Path(seed, loc)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("не удалось создать каталог уровня: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), loc.SaveString()+".*.tmp")
	if err != nil {
		return fmt.Errorf("не удалось создать временный файл: %w", err)
	}
	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("ошибка записи чанка %v: %w", loc, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("ошибка записи чанка %v: %w", loc, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("ошибка сохранения чанка %v: %w", loc, err)
	}
	return nil
}

func (f *FileStore) Delete(ctx context.Context, seed int64, loc vec.Vec3) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(f.Path(seed, loc))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления чанка %v: %w", loc, err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }
