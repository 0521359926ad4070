package vfs

import (
	"strings"
)

// ToFolderPrefix canonicalizes a user path into a folder prefix: no leading
// slash, exactly one trailing slash, and "" for the root.
func ToFolderPrefix(path string) string {
	p := strings.TrimLeft(path, "/")
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// ToFileKey joins a folder path and a file name into an object key.
// A root folder path ("", "/") yields fileName unchanged.
func ToFileKey(folderPath, fileName string) string {
	return ToFolderPrefix(folderPath) + fileName
}

// normalizeFileKey strips leading slashes from a user-supplied file path.
func normalizeFileKey(path string) string {
	return strings.TrimLeft(path, "/")
}

// FolderName returns the leaf segment of a folder prefix: "a/b/" -> "b".
func FolderName(prefix string) string {
	p := strings.TrimSuffix(prefix, "/")
	return p[strings.LastIndex(p, "/")+1:]
}

// BaseName returns the last segment of a file key.
func BaseName(key string) string {
	return key[strings.LastIndex(key, "/")+1:]
}

// ParentPrefix returns the folder prefix containing key, which may itself
// be a folder prefix: "a/b/c.txt" -> "a/b/", "a/b/" -> "a/", "a" -> "".
func ParentPrefix(key string) string {
	k := strings.TrimSuffix(key, "/")
	i := strings.LastIndex(k, "/")
	if i < 0 {
		return ""
	}
	return k[:i+1]
}

// validName rejects names that cannot be a single path segment.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}
