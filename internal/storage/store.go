// Package storage defines the flat object-store capability the virtual
// hierarchy is built on, plus the backends that provide it.
package storage

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned (wrapped) when a key does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectRecord is one entry of a flat listing.
type ObjectRecord struct {
	Key            string
	Size           int64
	LastModified   time.Time
	IsFolderMarker bool
}

// ObjectInfo is the metadata returned by Head.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// Object is an open object body. Callers must close Body.
type Object struct {
	Body io.ReadCloser
	Info ObjectInfo
}

// Listing is the full result of a List call. It is never truncated.
type Listing struct {
	Objects []ObjectRecord
	// CommonPrefixes is only populated when a delimiter was given.
	CommonPrefixes []string
}

// ObjectStore is the interface for flat, key-addressed object storage.
// Implementations must be safe for concurrent use.
type ObjectStore interface {
	// Put stores body under key. size may be -1 when unknown.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// Get opens the object at key.
	Get(ctx context.Context, key string) (*Object, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Copy duplicates srcKey to dstKey, replacing dstKey if present.
	Copy(ctx context.Context, srcKey, dstKey string) error

	// List returns every object under prefix, following pagination.
	// With a non-empty delimiter, keys containing the delimiter after the
	// prefix are rolled up into CommonPrefixes instead.
	List(ctx context.Context, prefix, delimiter string) (*Listing, error)

	// Head returns metadata for key.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// Type returns the backend identifier ("s3", "local", "memory").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// IsFolderMarkerKey reports whether key names a zero-byte folder marker.
func IsFolderMarkerKey(key string) bool {
	return strings.HasSuffix(key, "/")
}

// GroupListing builds a Listing from an unsorted flat set of records the
// way S3 does: records are filtered by prefix, sorted by key and, when
// delimiter is set, rolled up into common prefixes.
func GroupListing(prefix, delimiter string, records []ObjectRecord) *Listing {
	matched := make([]ObjectRecord, 0, len(records))
	for _, r := range records {
		if strings.HasPrefix(r.Key, prefix) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Key < matched[j].Key })

	out := &Listing{}
	if delimiter == "" {
		out.Objects = matched
		return out
	}

	seen := make(map[string]bool)
	for _, r := range matched {
		rest := r.Key[len(prefix):]
		if i := strings.Index(rest, delimiter); i >= 0 {
			cp := prefix + rest[:i+len(delimiter)]
			// Sub-folder markers roll up into their prefix too, as in S3.
			if !seen[cp] {
				seen[cp] = true
				out.CommonPrefixes = append(out.CommonPrefixes, cp)
			}
			continue
		}
		out.Objects = append(out.Objects, r)
	}
	return out
}
