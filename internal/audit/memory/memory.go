// Package memory provides an in-process audit sink.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/manishnupt/mynx-file-hive/internal/audit"
)

// Sink keeps records in a slice.
type Sink struct {
	mu      sync.RWMutex
	records []audit.Record
}

var _ audit.Sink = (*Sink)(nil)

// New creates an empty sink.
func New() *Sink {
	return &Sink{}
}

// Append stores rec.
func (s *Sink) Append(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return nil
}

// QueryByPathSubstring returns records whose source or destination contains text.
func (s *Sink) QueryByPathSubstring(_ context.Context, text string) ([]audit.Record, error) {
	return s.filter(func(r audit.Record) bool {
		return strings.Contains(r.SourcePath, text) ||
			(r.DestinationPath != "" && strings.Contains(r.DestinationPath, text))
	}), nil
}

// QueryByUsername returns records of username.
func (s *Sink) QueryByUsername(_ context.Context, username string) ([]audit.Record, error) {
	return s.filter(func(r audit.Record) bool { return r.Username == username }), nil
}

// All returns every record, newest first.
func (s *Sink) All() []audit.Record {
	return s.filter(func(audit.Record) bool { return true })
}

// Len returns the number of stored records.
func (s *Sink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close is a no-op.
func (s *Sink) Close() error { return nil }

func (s *Sink) filter(match func(audit.Record) bool) []audit.Record {
	s.mu.RLock()
	out := make([]audit.Record, 0, len(s.records))
	for _, r := range s.records {
		if match(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
