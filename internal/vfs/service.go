// Package vfs presents folders and files over a flat object store.
//
// Keys never start with "/". Folder prefixes end with "/" and a zero-byte
// object at a prefix marks an explicitly created folder. Rename and move
// are copy followed by delete; folder operations apply that per object and
// are not atomic. Every mutating call emits exactly one audit record.
package vfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/manishnupt/mynx-file-hive/internal/audit"
	"github.com/manishnupt/mynx-file-hive/internal/logging"
	"github.com/manishnupt/mynx-file-hive/internal/metrics"
	"github.com/manishnupt/mynx-file-hive/internal/storage"
)

// DefaultConcurrency bounds the per-object fan-out of folder operations.
const DefaultConcurrency = 8

const (
	uploadMessage     = "File uploaded successfully"
	folderContentType = "application/x-directory"
	sniffLen          = 512
)

// Recorder accepts audit records. Emit must not block.
type Recorder interface {
	Emit(rec audit.Record)
}

// Options configures a Service.
type Options struct {
	Concurrency int
}

// Service implements the file and folder operations.
type Service struct {
	store       storage.ObjectStore
	recorder    Recorder
	concurrency int
	now         func() time.Time
}

// NewService creates a Service. recorder may be nil.
func NewService(store storage.ObjectStore, recorder Recorder, opts Options) *Service {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Service{
		store:       store,
		recorder:    recorder,
		concurrency: opts.Concurrency,
		now:         time.Now,
	}
}

// UploadInput describes one file upload.
type UploadInput struct {
	FolderPath  string
	FileName    string
	ContentType string // optional; derived from the name or content when empty
	Size        int64  // -1 when unknown
	Content     io.Reader
	Username    string
}

// UploadResult describes a stored upload.
type UploadResult struct {
	FileName    string
	FilePath    string
	ContentType string
	Size        int64
	Message     string
}

func (s *Service) finish(ctx context.Context, op audit.Operation, username, src, dst string, start time.Time, err error) {
	rec := audit.Record{
		Username:        username,
		Operation:       op,
		SourcePath:      src,
		DestinationPath: dst,
		Timestamp:       s.now(),
		Status:          audit.StatusSuccess,
	}
	if err != nil {
		rec.Status = audit.StatusFailed
		rec.ErrorDetail = err.Error()
		logging.WithContext(ctx).Warn("operation failed",
			zap.String("operation", string(op)),
			zap.String("path", src),
			zap.String("destination", dst),
			zap.Error(err))
	} else {
		logging.WithContext(ctx).Debug("operation completed",
			zap.String("operation", string(op)),
			zap.String("path", src),
			zap.String("destination", dst))
	}
	metrics.RecordOperation(string(op), time.Since(start), err == nil)
	if s.recorder != nil {
		s.recorder.Emit(rec)
	}
}

// ─── Files ──────────────────────────────────────────────────────────────────

// UploadFile stores in.Content under the key derived from FolderPath and FileName.
func (s *Service) UploadFile(ctx context.Context, in UploadInput) (res *UploadResult, err error) {
	start := time.Now()
	key := ToFileKey(in.FolderPath, in.FileName)
	defer func() {
		dst := ""
		if err != nil {
			dst = key
		}
		s.finish(ctx, audit.OperationUpload, in.Username, key, dst, start, err)
	}()

	if !validName(in.FileName) || !validKey(key) {
		return nil, invalidPath("file name %q in folder %q", in.FileName, in.FolderPath)
	}

	body := in.Content
	if body == nil {
		body = bytes.NewReader(nil)
	}
	contentType, body, err := resolveContentType(in.FileName, in.ContentType, body)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", key, err)
	}

	if err := s.store.Put(ctx, key, body, in.Size, contentType); err != nil {
		return nil, storeError("upload "+key, err)
	}
	if in.Size > 0 {
		metrics.RecordContentUpload(in.Size)
	}

	return &UploadResult{
		FileName:    in.FileName,
		FilePath:    key,
		ContentType: contentType,
		Size:        in.Size,
		Message:     uploadMessage,
	}, nil
}

// resolveContentType prefers the declared type, then the extension, then
// the sniffed content. The returned reader replays any sniffed bytes.
func resolveContentType(name, declared string, r io.Reader) (string, io.Reader, error) {
	if declared != "" && declared != OctetStream {
		return declared, r, nil
	}
	if ct := Classify(name); ct != OctetStream {
		return ct, r, nil
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, err
	}
	head = head[:n]
	return Sniff(head), io.MultiReader(bytes.NewReader(head), r), nil
}

// DownloadFile opens the file at path. The caller must close the body.
func (s *Service) DownloadFile(ctx context.Context, path, username string) (obj *storage.Object, err error) {
	start := time.Now()
	key := normalizeFileKey(path)
	defer func() { s.finish(ctx, audit.OperationDownload, username, key, "", start, err) }()

	if !validFileKey(key) {
		return nil, invalidPath("file path %q", path)
	}

	obj, err = s.store.Get(ctx, key)
	if err != nil {
		return nil, storeError("download "+key, err)
	}
	if obj.Info.ContentType == "" || obj.Info.ContentType == OctetStream {
		obj.Info.ContentType = Classify(BaseName(key))
	}
	return obj, nil
}

// DeleteFile removes the file at path. Deleting a missing file succeeds.
func (s *Service) DeleteFile(ctx context.Context, path, username string) (err error) {
	start := time.Now()
	key := normalizeFileKey(path)
	defer func() { s.finish(ctx, audit.OperationDelete, username, key, "", start, err) }()

	if !validFileKey(key) {
		return invalidPath("file path %q", path)
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return storeError("delete "+key, err)
	}
	return nil
}

// RenameFile gives the file at path a new name in the same folder and
// returns the new key.
func (s *Service) RenameFile(ctx context.Context, path, newName, username string) (newKey string, err error) {
	start := time.Now()
	key := normalizeFileKey(path)
	dst := ParentPrefix(key) + newName
	defer func() { s.finish(ctx, audit.OperationRename, username, key, dst, start, err) }()

	if !validFileKey(key) {
		return "", invalidPath("file path %q", path)
	}
	if !validName(newName) {
		return "", invalidPath("new name %q", newName)
	}
	if err := s.relocateFile(ctx, key, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// MoveFile moves the file at path into destFolder, keeping its name, and
// returns the new key.
func (s *Service) MoveFile(ctx context.Context, path, destFolder, username string) (newKey string, err error) {
	start := time.Now()
	key := normalizeFileKey(path)
	dst := ToFileKey(destFolder, BaseName(key))
	defer func() { s.finish(ctx, audit.OperationMove, username, key, dst, start, err) }()

	if !validFileKey(key) {
		return "", invalidPath("file path %q", path)
	}
	if !validFileKey(dst) {
		return "", invalidPath("destination %q", destFolder)
	}
	if err := s.relocateFile(ctx, key, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// relocateFile copies key to dst, then deletes key. A failed delete leaves
// the object under both keys.
func (s *Service) relocateFile(ctx context.Context, key, dst string) error {
	if key == dst {
		return conflict("%s is already at %s", key, dst)
	}
	if err := s.store.Copy(ctx, key, dst); err != nil {
		return storeError(fmt.Sprintf("copy %s to %s", key, dst), err)
	}
	if err := s.store.Delete(ctx, key); err != nil {
		return storeError(fmt.Sprintf("delete %s after copy to %s", key, dst), err)
	}
	return nil
}

// FileDetails returns metadata for the file at path. It is not audited.
func (s *Service) FileDetails(ctx context.Context, path string) (*FileNode, error) {
	key := normalizeFileKey(path)
	if !validFileKey(key) {
		return nil, invalidPath("file path %q", path)
	}

	info, err := s.store.Head(ctx, key)
	if err != nil {
		return nil, storeError("head "+key, err)
	}
	name := BaseName(key)
	contentType := info.ContentType
	if contentType == "" || contentType == OctetStream {
		contentType = Classify(name)
	}
	return &FileNode{
		Name:         name,
		Path:         key,
		Size:         info.Size,
		LastModified: info.LastModified,
		Kind:         KindFile,
		ContentType:  contentType,
	}, nil
}

// ListFiles returns only the files directly inside folderPath.
func (s *Service) ListFiles(ctx context.Context, folderPath string) ([]FileNode, error) {
	entries, err := s.ListFolder(ctx, folderPath)
	if err != nil {
		return nil, err
	}
	files := make([]FileNode, 0, len(entries))
	for _, e := range entries {
		if e.Kind == KindFile && e.Name != "" {
			files = append(files, e)
		}
	}
	return files, nil
}

// ─── Folders ────────────────────────────────────────────────────────────────

// CreateFolder writes the folder marker for path and returns its prefix.
func (s *Service) CreateFolder(ctx context.Context, path, username string) (prefix string, err error) {
	start := time.Now()
	p := ToFolderPrefix(path)
	defer func() { s.finish(ctx, audit.OperationCreateFolder, username, p, "", start, err) }()

	if p == "" || !validKey(p) {
		return "", invalidPath("folder path %q", path)
	}
	if err := s.store.Put(ctx, p, bytes.NewReader(nil), 0, folderContentType); err != nil {
		return "", storeError("create folder "+p, err)
	}
	return p, nil
}

// DeleteFolder deletes every object under path. Deleting an empty or
// missing folder succeeds. Objects deleted before a failure stay deleted.
func (s *Service) DeleteFolder(ctx context.Context, path, username string) (err error) {
	start := time.Now()
	prefix := ToFolderPrefix(path)
	defer func() { s.finish(ctx, audit.OperationDeleteFolder, username, prefix, "", start, err) }()

	if prefix == "" || !validKey(prefix) {
		return invalidPath("folder path %q", path)
	}

	keys, err := s.listKeys(ctx, prefix)
	if err != nil {
		return err
	}
	metrics.RecordFolderObjects(string(audit.OperationDeleteFolder), len(keys))

	return s.fanOut(ctx, audit.OperationDeleteFolder, prefix, "", keys,
		func(ctx context.Context, key string) (bool, error) {
			if err := s.store.Delete(ctx, key); err != nil {
				return false, storeError("delete "+key, err)
			}
			return true, nil
		})
}

// RenameFolder renames the folder at path within its parent and returns
// the new prefix.
func (s *Service) RenameFolder(ctx context.Context, path, newName, username string) (newPrefix string, err error) {
	start := time.Now()
	prefix := ToFolderPrefix(path)
	dst := ParentPrefix(prefix) + newName + "/"
	defer func() { s.finish(ctx, audit.OperationRenameFolder, username, prefix, dst, start, err) }()

	if prefix == "" || !validKey(prefix) {
		return "", invalidPath("folder path %q", path)
	}
	if !validName(newName) {
		return "", invalidPath("new name %q", newName)
	}
	if err := s.relocateFolder(ctx, audit.OperationRenameFolder, prefix, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// MoveFolder moves the folder at path, with its whole subtree, into
// destFolder and returns the new prefix.
func (s *Service) MoveFolder(ctx context.Context, path, destFolder, username string) (newPrefix string, err error) {
	start := time.Now()
	prefix := ToFolderPrefix(path)
	dst := ToFolderPrefix(destFolder) + FolderName(prefix) + "/"
	defer func() { s.finish(ctx, audit.OperationMoveFolder, username, prefix, dst, start, err) }()

	if prefix == "" || !validKey(prefix) {
		return "", invalidPath("folder path %q", path)
	}
	if !validKey(dst) {
		return "", invalidPath("destination %q", destFolder)
	}
	if err := s.relocateFolder(ctx, audit.OperationMoveFolder, prefix, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// relocateFolder copies every object under prefix to dst and deletes the
// source object, one object at a time per worker.
func (s *Service) relocateFolder(ctx context.Context, op audit.Operation, prefix, dst string) error {
	if strings.HasPrefix(dst, prefix) {
		return conflict("cannot move %s into %s", prefix, dst)
	}

	keys, err := s.listKeys(ctx, prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("folder %s: %w", prefix, ErrNotFound)
	}
	metrics.RecordFolderObjects(string(op), len(keys))

	return s.fanOut(ctx, op, prefix, dst, keys,
		func(ctx context.Context, key string) (bool, error) {
			target := dst + strings.TrimPrefix(key, prefix)
			if err := s.store.Copy(ctx, key, target); err != nil {
				return false, storeError(fmt.Sprintf("copy %s to %s", key, target), err)
			}
			if err := s.store.Delete(ctx, key); err != nil {
				return true, storeError(fmt.Sprintf("delete %s after copy to %s", key, target), err)
			}
			return true, nil
		})
}

// listKeys returns every key under prefix at any depth.
func (s *Service) listKeys(ctx context.Context, prefix string) ([]string, error) {
	listing, err := s.store.List(ctx, prefix, "")
	if err != nil {
		return nil, storeError("list "+prefix, err)
	}
	keys := make([]string, 0, len(listing.Objects))
	for _, o := range listing.Objects {
		keys = append(keys, o.Key)
	}
	return keys, nil
}

// fanOut runs step for every key with bounded concurrency. The first
// failure or a cancelled ctx stops new steps from starting. Steps that
// already started run on a context detached from that cancellation, so a
// relocation whose copy succeeded still deletes its source. step reports
// whether it changed the store before failing.
func (s *Service) fanOut(ctx context.Context, op audit.Operation, src, dst string, keys []string,
	step func(ctx context.Context, key string) (bool, error)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	settle := context.WithoutCancel(ctx)
	var mutated, completed atomic.Int64
	for _, key := range keys {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			changed, err := step(settle, key)
			if changed {
				mutated.Add(1)
			}
			if err != nil {
				return err
			}
			completed.Add(1)
			return nil
		})
	}

	err := g.Wait()
	if err == nil && int(completed.Load()) < len(keys) {
		err = ctx.Err()
	}
	if err == nil {
		return nil
	}
	if mutated.Load() == 0 {
		return err
	}
	return &PartialFolderOperationError{
		Operation:   op,
		Source:      src,
		Destination: dst,
		Completed:   int(completed.Load()),
		Total:       len(keys),
		Err:         err,
	}
}

// ─── Listings ───────────────────────────────────────────────────────────────

// ListFolder returns the direct children of path.
func (s *Service) ListFolder(ctx context.Context, path string) ([]FileNode, error) {
	prefix := ToFolderPrefix(path)
	if prefix != "" && !validKey(prefix) {
		return nil, invalidPath("folder path %q", path)
	}
	listing, err := s.store.List(ctx, prefix, "/")
	if err != nil {
		return nil, storeError("list "+prefix, err)
	}
	return ListOneLevel(prefix, listing, s.now()), nil
}

// Hierarchy returns the full folder tree under path.
func (s *Service) Hierarchy(ctx context.Context, path string) (*FolderNode, error) {
	prefix := ToFolderPrefix(path)
	if prefix != "" && !validKey(prefix) {
		return nil, invalidPath("folder path %q", path)
	}
	listing, err := s.store.List(ctx, prefix, "")
	if err != nil {
		return nil, storeError("list "+prefix, err)
	}
	root := BuildFullTree(prefix, listing.Objects)
	metrics.RecordHierarchySize(CountNodes(root))
	return root, nil
}

// validKey reports whether every segment of key is a usable name.
func validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, seg := range strings.Split(strings.TrimSuffix(key, "/"), "/") {
		if !validName(seg) {
			return false
		}
	}
	return true
}

func validFileKey(key string) bool {
	return !strings.HasSuffix(key, "/") && validKey(key)
}
