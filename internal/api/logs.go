package api

import (
	"net/http"

	"github.com/manishnupt/mynx-file-hive/internal/audit"
	"github.com/manishnupt/mynx-file-hive/pkg/protocol"
)

func toOperationLogs(recs []audit.Record) []protocol.OperationLog {
	out := make([]protocol.OperationLog, 0, len(recs))
	for _, rec := range recs {
		out = append(out, protocol.OperationLog{
			ID:              rec.ID.String(),
			Username:        rec.Username,
			Operation:       string(rec.Operation),
			FilePath:        rec.SourcePath,
			DestinationPath: rec.DestinationPath,
			Timestamp:       rec.Timestamp,
			Status:          string(rec.Status),
			ErrorMessage:    rec.ErrorDetail,
		})
	}
	return out
}

func (s *Server) handleLogsByPath(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.sendError(w, http.StatusBadRequest, "path is required")
		return
	}
	recs, err := s.logs.LogsByPath(r.Context(), path)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, toOperationLogs(recs))
}

func (s *Server) handleLogsByUser(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("username")
	if name == "" {
		s.sendError(w, http.StatusBadRequest, "username is required")
		return
	}
	recs, err := s.logs.LogsByUser(r.Context(), name)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, toOperationLogs(recs))
}
