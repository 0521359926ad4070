// Package audit records one append-only entry per file or folder operation
// and hands it to a pluggable sink without blocking the caller.
package audit

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Operation names a user-visible file or folder operation.
type Operation string

const (
	OperationUpload       Operation = "UPLOAD"
	OperationDownload     Operation = "DOWNLOAD"
	OperationDelete       Operation = "DELETE"
	OperationRename       Operation = "RENAME"
	OperationMove         Operation = "MOVE"
	OperationCreateFolder Operation = "CREATE_FOLDER"
	OperationDeleteFolder Operation = "DELETE_FOLDER"
	OperationRenameFolder Operation = "RENAME_FOLDER"
	OperationMoveFolder   Operation = "MOVE_FOLDER"
)

// Status is the outcome of an operation.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// DefaultUsername is recorded when the caller is unknown.
const DefaultUsername = "anonymous"

// MaxErrorDetail is the longest ErrorDetail a sink is asked to store.
const MaxErrorDetail = 1000

// Record is one immutable audit entry.
type Record struct {
	ID              uuid.UUID
	Username        string
	Operation       Operation
	SourcePath      string
	DestinationPath string // empty when the operation has no destination
	Timestamp       time.Time
	Status          Status
	ErrorDetail     string // empty on success
}

// Sink persists records and serves the read-side queries. Query results
// are ordered newest first.
type Sink interface {
	Append(ctx context.Context, rec Record) error
	// QueryByPathSubstring matches text against the source and destination paths.
	QueryByPathSubstring(ctx context.Context, text string) ([]Record, error)
	QueryByUsername(ctx context.Context, username string) ([]Record, error)
	Close() error
}

// Normalize fills the defaults a sink expects: an ID, a timestamp, a
// username and a bounded error detail.
func Normalize(rec Record, now time.Time) Record {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = now
	}
	if rec.Username == "" {
		rec.Username = DefaultUsername
	}
	if rec.Status == "" {
		rec.Status = StatusSuccess
	}
	if len(rec.ErrorDetail) > MaxErrorDetail {
		cut := MaxErrorDetail
		for cut > 0 && !utf8.RuneStart(rec.ErrorDetail[cut]) {
			cut--
		}
		rec.ErrorDetail = rec.ErrorDetail[:cut]
	}
	return rec
}
