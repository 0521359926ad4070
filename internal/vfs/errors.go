package vfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/manishnupt/mynx-file-hive/internal/audit"
	"github.com/manishnupt/mynx-file-hive/internal/storage"
)

var (
	// ErrNotFound means the source key or folder does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable wraps object store failures other than not-found.
	ErrStoreUnavailable = errors.New("object store unavailable")
	// ErrInvalidPath means a path or name cannot be turned into a usable key.
	ErrInvalidPath = errors.New("invalid path")
	// ErrConflict means the operation would overwrite or destroy its own source.
	ErrConflict = errors.New("conflict")
)

// PartialFolderOperationError reports a folder operation that failed after
// mutating some objects. Mutated objects are not rolled back.
type PartialFolderOperationError struct {
	Operation   audit.Operation
	Source      string
	Destination string
	Completed   int // objects fully processed
	Total       int // objects listed under Source
	Err         error
}

func (e *PartialFolderOperationError) Error() string {
	if e.Destination != "" {
		return fmt.Sprintf("%s %s -> %s partially applied (%d/%d objects): %v",
			e.Operation, e.Source, e.Destination, e.Completed, e.Total, e.Err)
	}
	return fmt.Sprintf("%s %s partially applied (%d/%d objects): %v",
		e.Operation, e.Source, e.Completed, e.Total, e.Err)
}

func (e *PartialFolderOperationError) Unwrap() error { return e.Err }

// storeError classifies an object store failure.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
}

func invalidPath(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidPath, fmt.Sprintf(format, args...))
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}
