package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/manishnupt/mynx-file-hive/internal/storage"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{RootPath: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return b
}

func putString(t *testing.T, b *Backend, key, body string) {
	t.Helper()
	if err := b.Put(context.Background(), key, strings.NewReader(body), int64(len(body)), ""); err != nil {
		t.Fatalf("Put(%q): %v", key, err)
	}
}

func TestNewRequiresRoot(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty root_path")
	}
	missing := filepath.Join(t.TempDir(), "nope")
	if _, err := New(Config{RootPath: missing}); err == nil {
		t.Fatal("expected error for missing root without create_dirs")
	}
	if _, err := New(Config{RootPath: missing, CreateDirs: true}); err != nil {
		t.Fatalf("create_dirs: %v", err)
	}
	if _, err := os.Stat(missing); err != nil {
		t.Fatalf("root was not created: %v", err)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	putString(t, b, "reports/q1.txt", "quarterly numbers")

	obj, err := b.Get(ctx, "reports/q1.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer obj.Body.Close()
	data, _ := io.ReadAll(obj.Body)
	if string(data) != "quarterly numbers" {
		t.Errorf("body = %q", data)
	}
	if obj.Info.Size != int64(len("quarterly numbers")) {
		t.Errorf("size = %d", obj.Info.Size)
	}
	if !strings.HasPrefix(obj.Info.ContentType, "text/plain") {
		t.Errorf("content type = %q, want text/plain", obj.Info.ContentType)
	}

	if _, err := b.Get(ctx, "reports/missing.txt"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	if _, err := b.Head(ctx, "reports/missing.txt"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Head missing = %v, want ErrNotFound", err)
	}
}

func TestFolderMarker(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	if err := b.Put(ctx, "empty/", bytes.NewReader(nil), 0, ""); err != nil {
		t.Fatalf("Put marker: %v", err)
	}

	if _, err := os.Stat(filepath.Join(b.rootPath, "empty", markerName)); err != nil {
		t.Fatalf("marker file missing: %v", err)
	}
	info, err := b.Head(ctx, "empty/")
	if err != nil {
		t.Fatalf("Head marker: %v", err)
	}
	if info.Size != 0 {
		t.Errorf("marker size = %d", info.Size)
	}

	listing, err := b.List(ctx, "", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listing.Objects) != 1 || listing.Objects[0].Key != "empty/" || !listing.Objects[0].IsFolderMarker {
		t.Errorf("listing = %+v", listing.Objects)
	}

	if err := b.Delete(ctx, "empty/"); err != nil {
		t.Fatalf("Delete marker: %v", err)
	}
	if _, err := os.Stat(filepath.Join(b.rootPath, "empty")); !os.IsNotExist(err) {
		t.Errorf("empty directory should be pruned, stat err = %v", err)
	}
}

func TestDeleteIdempotentAndPrunes(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	putString(t, b, "a/b/c.txt", "x")
	putString(t, b, "a/keep.txt", "y")

	if err := b.Delete(ctx, "a/b/c.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := b.Delete(ctx, "a/b/c.txt"); err != nil {
		t.Fatalf("second Delete should succeed, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(b.rootPath, "a", "b")); !os.IsNotExist(err) {
		t.Errorf("a/b should be pruned")
	}
	if _, err := os.Stat(filepath.Join(b.rootPath, "a", "keep.txt")); err != nil {
		t.Errorf("sibling removed: %v", err)
	}
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	putString(t, b, "src/a.txt", "payload")

	if err := b.Copy(ctx, "src/a.txt", "dst/deep/a.txt"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	obj, err := b.Get(ctx, "dst/deep/a.txt")
	if err != nil {
		t.Fatalf("Get copy: %v", err)
	}
	data, _ := io.ReadAll(obj.Body)
	obj.Body.Close()
	if string(data) != "payload" {
		t.Errorf("copied body = %q", data)
	}

	if err := b.Copy(ctx, "src/none.txt", "x.txt"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Copy missing = %v, want ErrNotFound", err)
	}
}

func TestListGroupsByDelimiter(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	putString(t, b, "docs/readme.md", "r")
	putString(t, b, "docs/img/logo.png", "p")
	putString(t, b, "other.txt", "o")
	if err := b.Put(ctx, "docs/", bytes.NewReader(nil), 0, ""); err != nil {
		t.Fatalf("Put marker: %v", err)
	}

	grouped, err := b.List(ctx, "docs/", "/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var keys []string
	for _, o := range grouped.Objects {
		keys = append(keys, o.Key)
	}
	if strings.Join(keys, ",") != "docs/,docs/readme.md" {
		t.Errorf("objects = %v", keys)
	}
	if len(grouped.CommonPrefixes) != 1 || grouped.CommonPrefixes[0] != "docs/img/" {
		t.Errorf("prefixes = %v", grouped.CommonPrefixes)
	}

	empty, err := b.List(ctx, "nothing/here/", "/")
	if err != nil {
		t.Fatalf("List missing dir: %v", err)
	}
	if len(empty.Objects) != 0 || len(empty.CommonPrefixes) != 0 {
		t.Errorf("missing dir listing = %+v", empty)
	}
}

func TestKeysCannotEscapeRoot(t *testing.T) {
	b := newTestBackend(t)
	err := b.Put(context.Background(), "../outside.txt", strings.NewReader("x"), 1, "")
	if err == nil {
		t.Fatal("expected error for key escaping root")
	}
}

func TestReservedNamesRejected(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)
	putString(t, b, "docs/readme.txt", "hi")

	for _, key := range []string{"docs/.mynx-folder", ".mynx-folder", "docs/.mynx-123.tmp"} {
		if err := b.Put(ctx, key, strings.NewReader("x"), 1, ""); err == nil {
			t.Errorf("Put(%q) succeeded, want reserved name error", key)
		}
	}

	listing, err := b.List(ctx, "docs/", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listing.Objects) != 1 || listing.Objects[0].Key != "docs/readme.txt" {
		t.Errorf("listing = %+v", listing.Objects)
	}
	for _, o := range listing.Objects {
		if o.IsFolderMarker {
			t.Errorf("uploaded file surfaced as folder marker %q", o.Key)
		}
	}
	if _, err := b.Head(ctx, "docs/"); err == nil {
		t.Error("docs/ must not have a folder marker")
	}
}
