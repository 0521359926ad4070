// Package local provides a local filesystem object store.
//
// Keys map to paths under RootPath. A folder marker key ("docs/") is kept
// as a hidden file inside the directory so that empty folders survive and
// listings can tell explicit markers from implicit parents.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/manishnupt/mynx-file-hive/internal/metrics"
	"github.com/manishnupt/mynx-file-hive/internal/storage"
)

const (
	backendType = "local"
	markerName  = ".mynx-folder"
	tempPattern = ".mynx-*.tmp"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string `mapstructure:"root_path"`
	CreateDirs bool   `mapstructure:"create_dirs"`
}

// Backend implements storage.ObjectStore on a directory tree.
type Backend struct {
	rootPath string
}

var _ storage.ObjectStore = (*Backend)(nil)

// New creates a new local filesystem backend.
func New(cfg Config) (*Backend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	info, err := os.Stat(cfg.RootPath)
	switch {
	case err != nil && os.IsNotExist(err) && cfg.CreateDirs:
		if mkErr := os.MkdirAll(cfg.RootPath, 0o755); mkErr != nil {
			return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
	case !info.IsDir():
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path: %w", err)
	}
	return &Backend{rootPath: root}, nil
}

// fullPath maps a key to a filesystem path, refusing keys that escape the root.
func (b *Backend) fullPath(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty key")
	}
	rel := key
	if storage.IsFolderMarkerKey(key) {
		rel = key + markerName
	} else if reservedName(key[strings.LastIndex(key, "/")+1:]) {
		return "", fmt.Errorf("key %q uses a reserved name", key)
	}
	p := filepath.Join(b.rootPath, filepath.FromSlash(rel))
	if p != b.rootPath && !strings.HasPrefix(p, b.rootPath+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes storage root", key)
	}
	return p, nil
}

// keyFor is the inverse of fullPath.
func (b *Backend) keyFor(path string) (string, bool) {
	rel, err := filepath.Rel(b.rootPath, path)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	base := filepath.Base(path)
	if base == markerName {
		return strings.TrimSuffix(rel, markerName), true
	}
	if isTempName(base) {
		return "", false
	}
	return rel, true
}

// reservedName reports whether a file name would be read back as a folder
// marker or skipped as an in-progress write.
func reservedName(base string) bool {
	return base == markerName || isTempName(base)
}

func isTempName(base string) bool {
	return strings.HasPrefix(base, ".mynx-") && strings.HasSuffix(base, ".tmp")
}

// Put writes body atomically through a temp file in the target directory.
func (b *Backend) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	start := time.Now()
	err := b.writeFile(key, body)
	metrics.RecordStoreOperation(backendType, "put_object", time.Since(start), err == nil)
	return err
}

func (b *Backend) writeFile(key string, body io.Reader) error {
	path, err := b.fullPath(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dirs for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", key, err)
	}
	return nil
}

// Get opens the file behind key.
func (b *Backend) Get(_ context.Context, key string) (*storage.Object, error) {
	start := time.Now()
	path, err := b.fullPath(key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	metrics.RecordStoreOperation(backendType, "get_object", time.Since(start), err == nil)
	if err != nil {
		return nil, mapError("open "+key, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if fi.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", key, storage.ErrNotFound)
	}

	return &storage.Object{
		Body: f,
		Info: storage.ObjectInfo{
			Key:          key,
			Size:         fi.Size(),
			LastModified: fi.ModTime(),
			ContentType:  detect(path),
		},
	}, nil
}

// Delete removes the file and prunes directories left empty.
func (b *Backend) Delete(_ context.Context, key string) error {
	start := time.Now()
	path, err := b.fullPath(key)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		metrics.RecordStoreOperation(backendType, "delete_object", time.Since(start), false)
		return fmt.Errorf("delete %s: %w", key, err)
	}
	b.pruneEmptyDirs(filepath.Dir(path))
	metrics.RecordStoreOperation(backendType, "delete_object", time.Since(start), true)
	return nil
}

func (b *Backend) pruneEmptyDirs(dir string) {
	for dir != b.rootPath && strings.HasPrefix(dir, b.rootPath) {
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Copy duplicates the source file, writing the destination atomically.
func (b *Backend) Copy(_ context.Context, srcKey, dstKey string) error {
	start := time.Now()
	err := b.copyFile(srcKey, dstKey)
	metrics.RecordStoreOperation(backendType, "copy_object", time.Since(start), err == nil)
	return err
}

func (b *Backend) copyFile(srcKey, dstKey string) error {
	srcPath, err := b.fullPath(srcKey)
	if err != nil {
		return err
	}
	src, err := os.Open(srcPath)
	if err != nil {
		return mapError(fmt.Sprintf("copy %s -> %s", srcKey, dstKey), err)
	}
	defer src.Close()
	return b.writeFile(dstKey, src)
}

// List walks the tree under prefix. Listing a missing directory is empty.
func (b *Backend) List(_ context.Context, prefix, delimiter string) (*storage.Listing, error) {
	start := time.Now()

	// Walk from the deepest directory the prefix names.
	walkRoot := b.rootPath
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		walkRoot = filepath.Join(b.rootPath, filepath.FromSlash(prefix[:i]))
	}

	var records []storage.ObjectRecord
	err := filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		key, ok := b.keyFor(path)
		if !ok || !strings.HasPrefix(key, prefix) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		records = append(records, storage.ObjectRecord{
			Key:            key,
			Size:           fi.Size(),
			LastModified:   fi.ModTime(),
			IsFolderMarker: storage.IsFolderMarkerKey(key),
		})
		return nil
	})
	metrics.RecordStoreOperation(backendType, "list_objects", time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", prefix, err)
	}
	return storage.GroupListing(prefix, delimiter, records), nil
}

// Head stats the file and sniffs its content type.
func (b *Backend) Head(_ context.Context, key string) (*storage.ObjectInfo, error) {
	start := time.Now()
	path, err := b.fullPath(key)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	metrics.RecordStoreOperation(backendType, "head_object", time.Since(start), err == nil)
	if err != nil {
		return nil, mapError("stat "+key, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("stat %s: %w", key, storage.ErrNotFound)
	}
	return &storage.ObjectInfo{
		Key:          key,
		Size:         fi.Size(),
		LastModified: fi.ModTime(),
		ContentType:  detect(path),
	}, nil
}

// Type returns "local".
func (b *Backend) Type() string { return backendType }

// Close is a no-op.
func (b *Backend) Close() error { return nil }

func detect(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return ""
	}
	return mt.String()
}

func mapError(op string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
