package vfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manishnupt/mynx-file-hive/internal/audit"
	"github.com/manishnupt/mynx-file-hive/internal/storage"
	"github.com/manishnupt/mynx-file-hive/internal/storage/memory"
)

// faultyStore wraps the memory store, recording copy/delete calls and
// failing the keys it is told to.
type faultyStore struct {
	*memory.Store

	mu         sync.Mutex
	copies     []string
	deletes    []string
	failCopy   map[string]error
	failDelete map[string]error
	failList   error
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		Store:      memory.New(),
		failCopy:   map[string]error{},
		failDelete: map[string]error{},
	}
}

func (f *faultyStore) Copy(ctx context.Context, src, dst string) error {
	f.mu.Lock()
	err := f.failCopy[src]
	if err == nil {
		f.copies = append(f.copies, src+" -> "+dst)
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Copy(ctx, src, dst)
}

func (f *faultyStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	err := f.failDelete[key]
	if err == nil {
		f.deletes = append(f.deletes, key)
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Delete(ctx, key)
}

func (f *faultyStore) List(ctx context.Context, prefix, delimiter string) (*storage.Listing, error) {
	if f.failList != nil {
		return nil, f.failList
	}
	return f.Store.List(ctx, prefix, delimiter)
}

func (f *faultyStore) sortedCopies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.copies...)
	sort.Strings(out)
	return out
}

func (f *faultyStore) sortedDeletes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.deletes...)
	sort.Strings(out)
	return out
}

// slowStore delays copies and deletes per key and gives up when ctx is
// done, the way a network-backed store does.
type slowStore struct {
	*memory.Store

	copyDelay   map[string]time.Duration
	copyErr     map[string]error
	deleteDelay map[string]time.Duration
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *slowStore) Copy(ctx context.Context, src, dst string) error {
	if err := sleepCtx(ctx, s.copyDelay[src]); err != nil {
		return err
	}
	if err := s.copyErr[src]; err != nil {
		return err
	}
	return s.Store.Copy(ctx, src, dst)
}

func (s *slowStore) Delete(ctx context.Context, key string) error {
	if err := sleepCtx(ctx, s.deleteDelay[key]); err != nil {
		return err
	}
	return s.Store.Delete(ctx, key)
}

type recorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (r *recorder) Emit(rec audit.Record) {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
}

// only asserts exactly one record was emitted and returns it.
func (r *recorder) only(t *testing.T) audit.Record {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.records, 1, "expected exactly one audit record")
	rec := r.records[0]
	assert.False(t, rec.Timestamp.IsZero(), "timestamp must be set")
	return rec
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.records = nil
	r.mu.Unlock()
}

func newTestService(t *testing.T, concurrency int) (*Service, *faultyStore, *recorder) {
	t.Helper()
	store := newFaultyStore()
	rec := &recorder{}
	return NewService(store, rec, Options{Concurrency: concurrency}), store, rec
}

func seed(t *testing.T, s storage.ObjectStore, keys ...string) {
	t.Helper()
	for _, k := range keys {
		body := k
		if strings.HasSuffix(k, "/") {
			body = ""
		}
		require.NoError(t, s.Put(context.Background(), k, strings.NewReader(body), int64(len(body)), ""))
	}
}

var errBoom = errors.New("connection reset by peer")

// ─── Files ──────────────────────────────────────────────────────────────────

func TestUploadFileDerivesKeyAndContentType(t *testing.T) {
	svc, store, rec := newTestService(t, 0)

	res, err := svc.UploadFile(context.Background(), UploadInput{
		FolderPath: "docs",
		FileName:   "report.pdf",
		Size:       4,
		Content:    strings.NewReader("%PDF"),
		Username:   "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, "docs/report.pdf", res.FilePath)
	assert.Equal(t, "application/pdf", res.ContentType)
	assert.Equal(t, "File uploaded successfully", res.Message)
	assert.True(t, store.Has("docs/report.pdf"))

	r := rec.only(t)
	assert.Equal(t, audit.OperationUpload, r.Operation)
	assert.Equal(t, audit.StatusSuccess, r.Status)
	assert.Equal(t, "docs/report.pdf", r.SourcePath)
	assert.Equal(t, "alice", r.Username)
	assert.Empty(t, r.ErrorDetail)
}

func TestUploadFileSniffsUnknownExtension(t *testing.T) {
	svc, store, _ := newTestService(t, 0)
	content := "%PDF-1.7\nbody"

	res, err := svc.UploadFile(context.Background(), UploadInput{
		FileName: "scan.bin",
		Size:     int64(len(content)),
		Content:  strings.NewReader(content),
	})
	require.NoError(t, err)
	assert.Equal(t, "scan.bin", res.FilePath)
	assert.Equal(t, "application/pdf", res.ContentType)

	obj, err := store.Get(context.Background(), "scan.bin")
	require.NoError(t, err)
	data, _ := io.ReadAll(obj.Body)
	assert.Equal(t, content, string(data), "sniffed bytes must be replayed")
}

func TestUploadFileDeclaredTypeWins(t *testing.T) {
	svc, _, _ := newTestService(t, 0)
	res, err := svc.UploadFile(context.Background(), UploadInput{
		FileName:    "data.json",
		ContentType: "application/json",
		Content:     strings.NewReader("{}"),
		Size:        2,
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", res.ContentType)
}

func TestUploadFileInvalidNameIsAudited(t *testing.T) {
	svc, store, rec := newTestService(t, 0)

	_, err := svc.UploadFile(context.Background(), UploadInput{FolderPath: "docs", FileName: "", Content: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.Equal(t, 0, store.Len())

	r := rec.only(t)
	assert.Equal(t, audit.StatusFailed, r.Status)
	assert.NotEmpty(t, r.ErrorDetail)
	assert.Equal(t, audit.DefaultUsername, audit.Normalize(r, r.Timestamp).Username)
}

func TestDownloadFile(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	seed(t, store, "docs/a.txt")

	obj, err := svc.DownloadFile(context.Background(), "/docs/a.txt", "bob")
	require.NoError(t, err)
	data, _ := io.ReadAll(obj.Body)
	obj.Body.Close()
	assert.Equal(t, "docs/a.txt", string(data))
	assert.Equal(t, "text/plain", obj.Info.ContentType)
	assert.Equal(t, audit.StatusSuccess, rec.only(t).Status)
}

func TestDownloadMissingFile(t *testing.T) {
	svc, _, rec := newTestService(t, 0)

	_, err := svc.DownloadFile(context.Background(), "docs/none.txt", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	r := rec.only(t)
	assert.Equal(t, audit.OperationDownload, r.Operation)
	assert.Equal(t, audit.StatusFailed, r.Status)
}

func TestDeleteMissingFileSucceeds(t *testing.T) {
	svc, _, rec := newTestService(t, 0)

	require.NoError(t, svc.DeleteFile(context.Background(), "ghost.txt", "carol"))
	r := rec.only(t)
	assert.Equal(t, audit.OperationDelete, r.Operation)
	assert.Equal(t, audit.StatusSuccess, r.Status)
}

func TestDeleteFileStoreError(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	store.failDelete["a.txt"] = errBoom

	err := svc.DeleteFile(context.Background(), "a.txt", "carol")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, audit.StatusFailed, rec.only(t).Status)
}

func TestRenameFile(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	seed(t, store, "docs/old.txt")

	newKey, err := svc.RenameFile(context.Background(), "docs/old.txt", "new.txt", "dan")
	require.NoError(t, err)
	assert.Equal(t, "docs/new.txt", newKey)
	assert.True(t, store.Has("docs/new.txt"))
	assert.False(t, store.Has("docs/old.txt"))

	r := rec.only(t)
	assert.Equal(t, audit.OperationRename, r.Operation)
	assert.Equal(t, "docs/old.txt", r.SourcePath)
	assert.Equal(t, "docs/new.txt", r.DestinationPath)
}

func TestRenameFileCopyFailureSkipsDelete(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	seed(t, store, "docs/old.txt")
	store.failCopy["docs/old.txt"] = errBoom

	_, err := svc.RenameFile(context.Background(), "docs/old.txt", "new.txt", "dan")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.True(t, store.Has("docs/old.txt"))
	assert.Empty(t, store.sortedDeletes())

	r := rec.only(t)
	assert.Equal(t, audit.StatusFailed, r.Status)
	assert.Equal(t, "docs/new.txt", r.DestinationPath)
}

func TestRenameFileDeleteFailureLeavesDuplicate(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	seed(t, store, "docs/old.txt")
	store.failDelete["docs/old.txt"] = errBoom

	_, err := svc.RenameFile(context.Background(), "docs/old.txt", "new.txt", "dan")
	require.Error(t, err)
	assert.True(t, store.Has("docs/old.txt"))
	assert.True(t, store.Has("docs/new.txt"))
	assert.Equal(t, audit.StatusFailed, rec.only(t).Status)
}

func TestRenameFileMissingSource(t *testing.T) {
	svc, _, rec := newTestService(t, 0)
	_, err := svc.RenameFile(context.Background(), "docs/none.txt", "x.txt", "dan")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, audit.StatusFailed, rec.only(t).Status)
}

func TestRenameFileGuards(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	seed(t, store, "docs/a.txt")
	ctx := context.Background()

	_, err := svc.RenameFile(ctx, "docs/a.txt", "a.txt", "u")
	assert.ErrorIs(t, err, ErrConflict)
	assert.True(t, store.Has("docs/a.txt"), "self-rename must not delete the source")
	rec.only(t)
	rec.reset()

	_, err = svc.RenameFile(ctx, "docs/a.txt", "sub/b.txt", "u")
	assert.ErrorIs(t, err, ErrInvalidPath)
	rec.only(t)
	rec.reset()

	_, err = svc.RenameFile(ctx, "docs/", "b.txt", "u")
	assert.ErrorIs(t, err, ErrInvalidPath)
	rec.only(t)
}

func TestMoveFile(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	seed(t, store, "inbox/q1.pdf")

	newKey, err := svc.MoveFile(context.Background(), "inbox/q1.pdf", "/reports/2024/", "erin")
	require.NoError(t, err)
	assert.Equal(t, "reports/2024/q1.pdf", newKey)
	assert.True(t, store.Has("reports/2024/q1.pdf"))
	assert.False(t, store.Has("inbox/q1.pdf"))

	r := rec.only(t)
	assert.Equal(t, audit.OperationMove, r.Operation)
	assert.Equal(t, "reports/2024/q1.pdf", r.DestinationPath)
}

func TestMoveFileToRootAndOntoItself(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	seed(t, store, "inbox/a.txt")
	ctx := context.Background()

	newKey, err := svc.MoveFile(ctx, "inbox/a.txt", "/", "u")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", newKey)
	rec.reset()

	_, err = svc.MoveFile(ctx, "a.txt", "", "u")
	assert.ErrorIs(t, err, ErrConflict)
	assert.True(t, store.Has("a.txt"))
	rec.only(t)
}

func TestFileDetails(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	seed(t, store, "docs/sheet.xlsx")

	node, err := svc.FileDetails(context.Background(), "docs/sheet.xlsx")
	require.NoError(t, err)
	assert.Equal(t, "sheet.xlsx", node.Name)
	assert.Equal(t, KindFile, node.Kind)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", node.ContentType)
	assert.Equal(t, int64(len("docs/sheet.xlsx")), node.Size)

	_, err = svc.FileDetails(context.Background(), "docs/none.xlsx")
	assert.ErrorIs(t, err, ErrNotFound)

	rec.mu.Lock()
	assert.Empty(t, rec.records, "reads are not audited")
	rec.mu.Unlock()
}

func TestListFilesExcludesFolders(t *testing.T) {
	svc, store, _ := newTestService(t, 0)
	seed(t, store, "docs/", "docs/a.txt", "docs/sub/", "docs/sub/b.txt", "docs/c.pdf")

	files, err := svc.ListFiles(context.Background(), "docs")
	require.NoError(t, err)
	var names []string
	for _, f := range files {
		assert.Equal(t, KindFile, f.Kind)
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"a.txt", "c.pdf"}, names)
}

// ─── Folders ────────────────────────────────────────────────────────────────

func TestCreateFolder(t *testing.T) {
	svc, store, rec := newTestService(t, 0)

	prefix, err := svc.CreateFolder(context.Background(), "/projects/alpha", "fay")
	require.NoError(t, err)
	assert.Equal(t, "projects/alpha/", prefix)
	info, err := store.Head(context.Background(), "projects/alpha/")
	require.NoError(t, err)
	assert.Zero(t, info.Size)

	r := rec.only(t)
	assert.Equal(t, audit.OperationCreateFolder, r.Operation)
	assert.Equal(t, "projects/alpha/", r.SourcePath)
}

func TestCreateFolderRejectsRoot(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	for _, p := range []string{"", "/", "a/../b"} {
		_, err := svc.CreateFolder(context.Background(), p, "fay")
		assert.ErrorIs(t, err, ErrInvalidPath, p)
		rec.only(t)
		rec.reset()
	}
	assert.Equal(t, 0, store.Len())
}

func TestDeleteFolderRecursive(t *testing.T) {
	svc, store, rec := newTestService(t, 2)
	seed(t, store, "a/", "a/x.txt", "a/b/", "a/b/y.txt", "a/b/c/z.txt", "ab.txt")

	require.NoError(t, svc.DeleteFolder(context.Background(), "a", "gus"))
	assert.Equal(t, 1, store.Len())
	assert.True(t, store.Has("ab.txt"), "sibling with a shared name prefix must survive")
	assert.Equal(t, []string{"a/", "a/b/", "a/b/c/z.txt", "a/b/y.txt", "a/x.txt"}, store.sortedDeletes())

	r := rec.only(t)
	assert.Equal(t, audit.OperationDeleteFolder, r.Operation)
	assert.Equal(t, "a/", r.SourcePath)
	assert.Equal(t, audit.StatusSuccess, r.Status)
}

func TestDeleteEmptyFolderSucceeds(t *testing.T) {
	svc, _, rec := newTestService(t, 0)
	require.NoError(t, svc.DeleteFolder(context.Background(), "nothing", "gus"))
	assert.Equal(t, audit.StatusSuccess, rec.only(t).Status)
}

func TestDeleteFolderListFailure(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	store.failList = errBoom

	err := svc.DeleteFolder(context.Background(), "a", "gus")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	var partial *PartialFolderOperationError
	assert.False(t, errors.As(err, &partial))
	assert.Equal(t, audit.StatusFailed, rec.only(t).Status)
}

func TestRenameFolderScenario(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	seed(t, store, "proj/", "proj/f.txt")

	newPrefix, err := svc.RenameFolder(context.Background(), "proj/", "project", "hal")
	require.NoError(t, err)
	assert.Equal(t, "project/", newPrefix)

	assert.Equal(t, []string{"proj/ -> project/", "proj/f.txt -> project/f.txt"}, store.sortedCopies())
	assert.Equal(t, []string{"proj/", "proj/f.txt"}, store.sortedDeletes())
	assert.True(t, store.Has("project/"))
	assert.True(t, store.Has("project/f.txt"))
	assert.Equal(t, 2, store.Len())

	r := rec.only(t)
	assert.Equal(t, audit.OperationRenameFolder, r.Operation)
	assert.Equal(t, audit.StatusSuccess, r.Status)
	assert.Equal(t, "proj/", r.SourcePath)
	assert.Equal(t, "project/", r.DestinationPath)
}

func TestRenameNestedFolderKeepsParent(t *testing.T) {
	svc, store, _ := newTestService(t, 0)
	seed(t, store, "a/b/", "a/b/deep/x.txt")

	newPrefix, err := svc.RenameFolder(context.Background(), "a/b", "c", "u")
	require.NoError(t, err)
	assert.Equal(t, "a/c/", newPrefix)
	assert.True(t, store.Has("a/c/"))
	assert.True(t, store.Has("a/c/deep/x.txt"))
}

func TestRenameFolderEmptyIsNotFound(t *testing.T) {
	svc, _, rec := newTestService(t, 0)
	_, err := svc.RenameFolder(context.Background(), "missing", "other", "u")
	assert.ErrorIs(t, err, ErrNotFound)
	r := rec.only(t)
	assert.Equal(t, audit.StatusFailed, r.Status)
	assert.Equal(t, "other/", r.DestinationPath)
}

func TestMoveFolder(t *testing.T) {
	svc, store, rec := newTestService(t, 4)
	seed(t, store, "a/b/", "a/b/y.txt", "a/b/c/z.txt", "dest/")

	newPrefix, err := svc.MoveFolder(context.Background(), "a/b/", "dest", "ivy")
	require.NoError(t, err)
	assert.Equal(t, "dest/b/", newPrefix)
	for _, k := range []string{"dest/b/", "dest/b/y.txt", "dest/b/c/z.txt", "dest/"} {
		assert.True(t, store.Has(k), k)
	}
	assert.False(t, store.Has("a/b/y.txt"))

	r := rec.only(t)
	assert.Equal(t, audit.OperationMoveFolder, r.Operation)
	assert.Equal(t, "dest/b/", r.DestinationPath)
}

func TestMoveFolderIntoItself(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	seed(t, store, "a/", "a/x.txt")

	_, err := svc.MoveFolder(context.Background(), "a", "a/inner", "u")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Empty(t, store.sortedCopies())
	rec.only(t)
	rec.reset()

	_, err = svc.MoveFolder(context.Background(), "a", "", "u")
	assert.ErrorIs(t, err, ErrConflict, "moving a root-level folder to the root is a no-op conflict")
}

func TestRenameFolderPartialFailure(t *testing.T) {
	svc, store, rec := newTestService(t, 1)
	seed(t, store, "proj/", "proj/a.txt", "proj/b.txt", "proj/c.txt")
	store.failCopy["proj/b.txt"] = errBoom

	_, err := svc.RenameFolder(context.Background(), "proj", "project", "jo")
	require.Error(t, err)

	var partial *PartialFolderOperationError
	require.True(t, errors.As(err, &partial), "got %v", err)
	assert.Equal(t, audit.OperationRenameFolder, partial.Operation)
	assert.Equal(t, "proj/", partial.Source)
	assert.Equal(t, "project/", partial.Destination)
	assert.Equal(t, 2, partial.Completed)
	assert.Equal(t, 4, partial.Total)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	// Already relocated objects are not rolled back.
	assert.True(t, store.Has("project/"))
	assert.True(t, store.Has("project/a.txt"))
	assert.False(t, store.Has("proj/a.txt"))
	assert.True(t, store.Has("proj/b.txt"))
	assert.True(t, store.Has("proj/c.txt"))
	assert.False(t, store.Has("project/c.txt"), "no steps start after the first failure")

	r := rec.only(t)
	assert.Equal(t, audit.StatusFailed, r.Status)
	assert.Equal(t, "project/", r.DestinationPath)
	assert.Contains(t, r.ErrorDetail, "partially applied")
}

func TestRenameFolderFailureLetsStartedMovesFinish(t *testing.T) {
	store := &slowStore{
		Store:       memory.New(),
		copyDelay:   map[string]time.Duration{"proj/bad.txt": 20 * time.Millisecond},
		copyErr:     map[string]error{"proj/bad.txt": errBoom},
		deleteDelay: map[string]time.Duration{"proj/good.txt": 50 * time.Millisecond},
	}
	seed(t, store, "proj/bad.txt", "proj/good.txt")
	svc := NewService(store, &recorder{}, Options{Concurrency: 2})

	_, err := svc.RenameFolder(context.Background(), "proj", "project", "jo")
	require.Error(t, err)

	var partial *PartialFolderOperationError
	require.True(t, errors.As(err, &partial), "got %v", err)
	assert.Equal(t, 1, partial.Completed)
	assert.Equal(t, 2, partial.Total)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	// The move that was underway when bad.txt failed is not left half done.
	assert.True(t, store.Has("project/good.txt"))
	assert.False(t, store.Has("proj/good.txt"), "source of a copied object must be deleted")
	assert.True(t, store.Has("proj/bad.txt"))
	assert.False(t, store.Has("project/bad.txt"))
}

func TestDeleteFolderFirstStepFailureIsNotPartial(t *testing.T) {
	svc, store, _ := newTestService(t, 1)
	seed(t, store, "d/", "d/x.txt")
	store.failDelete["d/"] = errBoom

	err := svc.DeleteFolder(context.Background(), "d", "u")
	require.Error(t, err)
	var partial *PartialFolderOperationError
	assert.False(t, errors.As(err, &partial))
	assert.True(t, store.Has("d/x.txt"))
}

func TestFolderOperationHonoursCancelledContext(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	seed(t, store, "c/", "c/1.txt")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.DeleteFolder(ctx, "c", "u")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, audit.StatusFailed, rec.only(t).Status)
}

func TestListFolderAndHierarchy(t *testing.T) {
	svc, store, _ := newTestService(t, 0)
	seed(t, store, "a/", "a/x.txt", "a/b/", "a/b/y.txt", "other.txt")
	ctx := context.Background()

	entries, err := svc.ListFolder(ctx, "a")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, FileNode{Name: "b", Path: "a/b/", LastModified: entries[0].LastModified, Kind: KindFolder}, entries[0])
	assert.Equal(t, "a/x.txt", entries[1].Path)

	rootEntries, err := svc.ListFolder(ctx, "")
	require.NoError(t, err)
	assert.Len(t, rootEntries, 2)

	tree, err := svc.Hierarchy(ctx, "/a/")
	require.NoError(t, err)
	assert.Equal(t, "a", tree.Name)
	require.Len(t, tree.SubFolders, 1)
	assert.Equal(t, "y.txt", tree.SubFolders[0].Files[0].Name)

	full, err := svc.Hierarchy(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "root", full.Name)
	assert.Equal(t, 6, CountNodes(full))
}

// Every mutating call emits exactly one record, whatever its outcome.
func TestEveryOperationEmitsOneRecord(t *testing.T) {
	svc, store, rec := newTestService(t, 0)
	seed(t, store, "f/", "f/a.txt", "g/")
	ctx := context.Background()

	calls := []func(){
		func() {
			svc.UploadFile(ctx, UploadInput{FolderPath: "f", FileName: "u.txt", Content: bytes.NewReader([]byte("u")), Size: 1})
		},
		func() {
			if obj, err := svc.DownloadFile(ctx, "f/u.txt", ""); err == nil {
				obj.Body.Close()
			}
		},
		func() { svc.DownloadFile(ctx, "f/none.txt", "") },
		func() { svc.RenameFile(ctx, "f/u.txt", "v.txt", "") },
		func() { svc.MoveFile(ctx, "f/v.txt", "g", "") },
		func() { svc.MoveFile(ctx, "f/none.txt", "g", "") },
		func() { svc.DeleteFile(ctx, "g/v.txt", "") },
		func() { svc.CreateFolder(ctx, "h", "") },
		func() { svc.RenameFolder(ctx, "h", "i", "") },
		func() { svc.MoveFolder(ctx, "i", "f", "") },
		func() { svc.DeleteFolder(ctx, "f", "") },
		func() { svc.RenameFolder(ctx, "none", "x", "") },
	}
	for i, call := range calls {
		rec.reset()
		call()
		rec.mu.Lock()
		n := len(rec.records)
		rec.mu.Unlock()
		assert.Equal(t, 1, n, "call %d", i)
	}
}
