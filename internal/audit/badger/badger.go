// Package badger provides an embedded BadgerDB audit sink for single-node
// deployments that do not run PostgreSQL.
//
// Key layout:
//
//	log:<ts><id>              -> JSON record
//	user:<username>\x00<ts><id> -> empty (index into log:)
//
// <ts> is the big-endian UnixNano timestamp so that reverse iteration
// yields newest records first.
package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/manishnupt/mynx-file-hive/internal/audit"
	"github.com/manishnupt/mynx-file-hive/internal/metrics"
)

var (
	logPrefix  = []byte("log:")
	userPrefix = []byte("user:")
)

// Sink stores audit records in BadgerDB.
type Sink struct {
	db *badger.DB
}

var _ audit.Sink = (*Sink)(nil)

// storedRecord is the on-disk encoding of audit.Record.
type storedRecord struct {
	ID              uuid.UUID `json:"id"`
	Username        string    `json:"username"`
	Operation       string    `json:"operation"`
	SourcePath      string    `json:"source_path"`
	DestinationPath string    `json:"destination_path,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Status          string    `json:"status"`
	ErrorDetail     string    `json:"error_detail,omitempty"`
}

// New opens (or creates) a database in dir.
func New(dir string) (*Sink, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	return NewWithOptions(opts)
}

// NewWithOptions opens a database with explicit options, e.g. in-memory for tests.
func NewWithOptions(opts badger.Options) (*Sink, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", opts.Dir, err)
	}
	return &Sink{db: db}, nil
}

// Close closes the database.
func (s *Sink) Close() error {
	return s.db.Close()
}

func recordSuffix(rec audit.Record) []byte {
	b := make([]byte, 8, 8+16)
	binary.BigEndian.PutUint64(b, uint64(rec.Timestamp.UnixNano()))
	return append(b, rec.ID[:]...)
}

func logKey(suffix []byte) []byte {
	return append(append([]byte{}, logPrefix...), suffix...)
}

func userIndexPrefix(username string) []byte {
	k := append([]byte{}, userPrefix...)
	k = append(k, username...)
	return append(k, 0)
}

// Append writes the record and its user index entry in one transaction.
func (s *Sink) Append(ctx context.Context, rec audit.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	val, err := json.Marshal(storedRecord{
		ID:              rec.ID,
		Username:        rec.Username,
		Operation:       string(rec.Operation),
		SourcePath:      rec.SourcePath,
		DestinationPath: rec.DestinationPath,
		Timestamp:       rec.Timestamp,
		Status:          string(rec.Status),
		ErrorDetail:     rec.ErrorDetail,
	})
	if err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}

	suffix := recordSuffix(rec)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(logKey(suffix), val); err != nil {
			return err
		}
		return txn.Set(append(userIndexPrefix(rec.Username), suffix...), nil)
	})
	metrics.RecordDBQuery("audit_append", time.Since(start))
	if err != nil {
		return fmt.Errorf("store audit record: %w", err)
	}
	return nil
}

// QueryByPathSubstring scans every record newest first.
func (s *Sink) QueryByPathSubstring(ctx context.Context, text string) ([]audit.Record, error) {
	start := time.Now()
	var out []audit.Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = logPrefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		scanned := 0
		for it.Seek(seekEnd(logPrefix)); it.Valid(); it.Next() {
			scanned++
			if scanned%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			rec, err := decode(it.Item())
			if err != nil {
				return err
			}
			if strings.Contains(rec.SourcePath, text) ||
				(rec.DestinationPath != "" && strings.Contains(rec.DestinationPath, text)) {
				out = append(out, rec)
			}
		}
		return nil
	})
	metrics.RecordDBQuery("audit_by_path", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("query audit by path: %w", err)
	}
	return out, nil
}

// QueryByUsername walks the user index newest first.
func (s *Sink) QueryByUsername(ctx context.Context, username string) ([]audit.Record, error) {
	start := time.Now()
	prefix := userIndexPrefix(username)
	var out []audit.Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seekEnd(prefix)); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			suffix := it.Item().KeyCopy(nil)[len(prefix):]
			item, err := txn.Get(logKey(suffix))
			if err == badger.ErrKeyNotFound {
				continue
			}
			if err != nil {
				return err
			}
			rec, err := decode(item)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	metrics.RecordDBQuery("audit_by_user", time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("query audit by user: %w", err)
	}
	return out, nil
}

// seekEnd returns a key sorting after every key with prefix.
func seekEnd(prefix []byte) []byte {
	return append(append([]byte{}, prefix...), 0xFF)
}

func decode(item *badger.Item) (audit.Record, error) {
	var sr storedRecord
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &sr)
	})
	if err != nil {
		return audit.Record{}, fmt.Errorf("decode audit record: %w", err)
	}
	return audit.Record{
		ID:              sr.ID,
		Username:        sr.Username,
		Operation:       audit.Operation(sr.Operation),
		SourcePath:      sr.SourcePath,
		DestinationPath: sr.DestinationPath,
		Timestamp:       sr.Timestamp,
		Status:          audit.Status(sr.Status),
		ErrorDetail:     sr.ErrorDetail,
	}, nil
}
