package upload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// DiskStore 将附件保存到本地目录，通过静态路由 /uploads 对外提供访问。
type DiskStore struct {
	dir     string
	maxSize int64
	logger  *slog.Logger
}

func NewDiskStore(dir string, maxSize int64, logger *slog.Logger) (*DiskStore, error) {
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{
		dir:     dir,
		maxSize: maxSize,
		logger:  logger,
	}, nil
}

func (s *DiskStore) Save(ctx context.Context, field, filename string, data []byte) (*SavedFile, error) {
	if err := ValidateExt(filename); err != nil {
		return nil, err
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("file too large: %d bytes (limit %d)", len(data), s.maxSize)
	}

	name := randomName(field, filename)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write file: %w", err)
	}

	s.logger.Info("file saved",
		slog.String("field", field),
		slog.String("name", name),
		slog.Int("size", len(data)))

	return &SavedFile{
		Key:  name,
		URL:  "/uploads/" + name,
		Size: int64(len(data)),
	}, nil
}
