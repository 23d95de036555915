package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	partitionapp "github.com/grf/partitioner/internal/application/partition"
)

var _ partitionapp.ObjectStorage = (*FileSystemStorage)(nil)

// FileSystemStorage maps object keys onto files below a base directory.
// It is meant for local runs and tests; keys use forward slashes.
type FileSystemStorage struct {
	basePath string
	logger   *zap.Logger
}

// NewFileSystemStorage creates the base directory if needed
func NewFileSystemStorage(basePath string, logger *zap.Logger) (*FileSystemStorage, error) {
	if basePath == "" {
		return nil, errors.New("storage base path is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", abs, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSystemStorage{basePath: abs, logger: logger}, nil
}

// BasePath returns the absolute root directory
func (s *FileSystemStorage) BasePath() string {
	return s.basePath
}

// resolve maps a key to a path below basePath, rejecting traversal
func (s *FileSystemStorage) resolve(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || containsDotDot(key) {
		s.logger.Warn("blocked invalid storage key", zap.String("key", key))
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	full := filepath.Join(s.basePath, filepath.FromSlash(key))
	if !strings.HasPrefix(full, s.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return full, nil
}

// containsDotDot checks if a key contains ".." components
func containsDotDot(key string) bool {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	})
	return slices.Contains(parts, "..")
}

// List walks the directory tree and returns files whose key starts with prefix
func (s *FileSystemStorage) List(ctx context.Context, prefix string) ([]partitionapp.ObjectInfo, error) {
	var objects []partitionapp.ObjectInfo

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)

		if d.IsDir() {
			// prune directories that cannot contain matching keys
			if key != "." && !strings.HasPrefix(key+"/", prefix) && !strings.HasPrefix(prefix, key+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasPrefix(key, prefix) || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, partitionapp.ObjectInfo{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
	}

	slices.SortFunc(objects, func(a, b partitionapp.ObjectInfo) int {
		return strings.Compare(a.Key, b.Key)
	})
	return objects, nil
}

// Open opens the file behind key
func (s *FileSystemStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("object %s: %w", key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open object %s: %w", key, err)
	}
	return file, nil
}

// Put writes data to a temporary file and renames it into place so readers
// never see a partial object.
func (s *FileSystemStorage) Put(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.resolve(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}

	tmp := filepath.Join(dir, ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to publish object %s: %w", key, err)
	}

	s.logger.Debug("object stored", zap.String("key", key), zap.Int("size", len(data)))
	return nil
}

// Delete removes the files behind keys; missing files are ignored
func (s *FileSystemStorage) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		path, err := s.resolve(key)
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete object %s: %w", key, err)
		}
	}
	return nil
}
