package vfs

import (
	"sort"
	"strings"
	"time"

	"github.com/manishnupt/mynx-file-hive/internal/storage"
)

// Kind distinguishes files from folders in one-level listings.
type Kind string

const (
	KindFile   Kind = "FILE"
	KindFolder Kind = "FOLDER"
)

// FileNode is a file, or a folder entry in a one-level listing.
type FileNode struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	Kind         Kind      `json:"type"`
	ContentType  string    `json:"contentType,omitempty"`
}

// FolderNode is a folder with its children. Each node owns its children.
type FolderNode struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	Files      []*FileNode   `json:"files"`
	SubFolders []*FolderNode `json:"subFolders"`
}

func newFolder(name, path string) *FolderNode {
	return &FolderNode{
		Name:       name,
		Path:       path,
		Files:      []*FileNode{},
		SubFolders: []*FolderNode{},
	}
}

// ListOneLevel returns the direct children of prefix: folders first, in the
// order they are first seen, then files in listing order. Keys nested more
// than one level deep are rolled up into their first-level folder, so both
// delimited and flat listings produce the same result. Folder entries carry
// no size and the timestamp now.
func ListOneLevel(prefix string, listing *storage.Listing, now time.Time) []FileNode {
	if listing == nil {
		return []FileNode{}
	}

	var folders, files []FileNode
	seen := make(map[string]bool)
	addFolder := func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		folders = append(folders, FileNode{
			Name:         FolderName(path),
			Path:         path,
			LastModified: now,
			Kind:         KindFolder,
		})
	}

	for _, cp := range listing.CommonPrefixes {
		if cp == prefix || !strings.HasPrefix(cp, prefix) {
			continue
		}
		rel := cp[len(prefix):]
		addFolder(prefix + rel[:strings.Index(rel, "/")+1])
	}

	for _, rec := range listing.Objects {
		if rec.Key == prefix || !strings.HasPrefix(rec.Key, prefix) {
			continue
		}
		rel := rec.Key[len(prefix):]
		if i := strings.Index(rel, "/"); i >= 0 {
			addFolder(prefix + rel[:i+1])
			continue
		}
		files = append(files, FileNode{
			Name:         rel,
			Path:         rec.Key,
			Size:         rec.Size,
			LastModified: rec.LastModified,
			Kind:         KindFile,
			ContentType:  Classify(rel),
		})
	}

	return append(append(make([]FileNode, 0, len(folders)+len(files)), folders...), files...)
}

// BuildFullTree reconstructs the folder tree under prefix from a flat,
// undelimited listing. Records may arrive in any order; intermediate
// folders are created once per distinct prefix. Children are sorted by name.
func BuildFullTree(prefix string, records []storage.ObjectRecord) *FolderNode {
	rootName := "root"
	if prefix != "" {
		rootName = FolderName(prefix)
	}
	root := newFolder(rootName, prefix)
	folders := map[string]*FolderNode{prefix: root}

	folderAt := func(parent *FolderNode, path, name string) *FolderNode {
		if f, ok := folders[path]; ok {
			return f
		}
		f := newFolder(name, path)
		folders[path] = f
		parent.SubFolders = append(parent.SubFolders, f)
		return f
	}

	for _, rec := range records {
		if rec.Key == prefix || !strings.HasPrefix(rec.Key, prefix) {
			continue
		}
		marker := strings.HasSuffix(rec.Key, "/")
		segments := strings.Split(strings.TrimSuffix(rec.Key[len(prefix):], "/"), "/")

		parent := root
		path := prefix
		for _, seg := range segments[:len(segments)-1] {
			// Doubled slashes do not name a folder.
			if seg == "" {
				continue
			}
			path += seg + "/"
			parent = folderAt(parent, path, seg)
		}

		last := segments[len(segments)-1]
		if last == "" {
			continue
		}
		if marker {
			folderAt(parent, path+last+"/", last)
			continue
		}
		parent.Files = append(parent.Files, &FileNode{
			Name:         last,
			Path:         rec.Key,
			Size:         rec.Size,
			LastModified: rec.LastModified,
			Kind:         KindFile,
			ContentType:  Classify(last),
		})
	}

	sortTree(root)
	return root
}

func sortTree(f *FolderNode) {
	sort.Slice(f.Files, func(i, j int) bool { return f.Files[i].Name < f.Files[j].Name })
	sort.Slice(f.SubFolders, func(i, j int) bool { return f.SubFolders[i].Name < f.SubFolders[j].Name })
	for _, sub := range f.SubFolders {
		sortTree(sub)
	}
}

// CountNodes counts all folders and files in a tree, including the root.
func CountNodes(root *FolderNode) int {
	if root == nil {
		return 0
	}
	count := 1 + len(root.Files)
	for _, sub := range root.SubFolders {
		count += CountNodes(sub)
	}
	return count
}

// Flatten returns the kind of every node in a tree keyed by path.
func Flatten(root *FolderNode) map[string]Kind {
	result := make(map[string]Kind)
	if root == nil {
		return result
	}
	flattenRecursive(root, result)
	return result
}

func flattenRecursive(f *FolderNode, result map[string]Kind) {
	result[f.Path] = KindFolder
	for _, file := range f.Files {
		result[file.Path] = KindFile
	}
	for _, sub := range f.SubFolders {
		flattenRecursive(sub, result)
	}
}
