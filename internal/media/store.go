package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// BlobStore - хранилище загруженных файлов
type BlobStore interface {
	Put(ctx context.Context, name string, content io.Reader) error
	Delete(ctx context.Context, name string) error
}

// DiskStore хранит файлы в локальной директории, которая раздается как статика
type DiskStore struct {
	dir string
}

// NewDiskStore создает DiskStore и директорию для файлов, если ее нет
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &DiskStore{dir: dir}, nil
}

// Put записывает файл. Частично записанный файл удаляется.
func (s *DiskStore) Put(ctx context.Context, name string, content io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(name)
	if err != nil {
		return err
	}

	// O_EXCL: имя уникально, перезапись чужого файла считаем ошибкой
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create blob %s: %w", name, err)
	}

	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write blob %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to close blob %s: %w", name, err)
	}
	return nil
}

// Delete удаляет файл; отсутствие файла не считается ошибкой
func (s *DiskStore) Delete(_ context.Context, name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete blob %s: %w", name, err)
	}
	return nil
}

func (s *DiskStore) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid blob name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}
