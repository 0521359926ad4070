// Package api provides the HTTP server and handlers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/manishnupt/mynx-file-hive/internal/audit"
	"github.com/manishnupt/mynx-file-hive/internal/auth"
	"github.com/manishnupt/mynx-file-hive/internal/logging"
	"github.com/manishnupt/mynx-file-hive/internal/metrics"
	"github.com/manishnupt/mynx-file-hive/internal/quota"
	"github.com/manishnupt/mynx-file-hive/internal/vfs"
	"github.com/manishnupt/mynx-file-hive/pkg/protocol"
)

const (
	// DefaultMaxUploadSize applies when Options.MaxUploadSize is zero.
	DefaultMaxUploadSize = 100 << 20

	maxJSONBody     = 1 << 20
	multipartMemory = 32 << 20
)

// LogReader answers audit log queries.
type LogReader interface {
	LogsByPath(ctx context.Context, text string) ([]audit.Record, error)
	LogsByUser(ctx context.Context, username string) ([]audit.Record, error)
}

// Options configures a Server.
type Options struct {
	MaxUploadSize     int64
	CORSOrigins       []string
	RequestsPerMinute int
	StorageType       string
}

// Server is the HTTP server.
type Server struct {
	files       *vfs.Service
	logs        LogReader
	auth        *auth.Auth
	rateLimiter *quota.RateLimiter
	opts        Options
}

// NewServer creates a new server. authHandler and rateLimiter may be nil.
func NewServer(files *vfs.Service, logs LogReader, authHandler *auth.Auth, rateLimiter *quota.RateLimiter, opts Options) *Server {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	if rateLimiter == nil {
		rateLimiter = quota.NewRateLimiter()
	}
	return &Server{
		files:       files,
		logs:        logs,
		auth:        authHandler,
		rateLimiter: rateLimiter,
		opts:        opts,
	}
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()

	api.HandleFunc("POST /api/files/upload", s.handleUpload)
	api.HandleFunc("GET /api/files/download", s.handleDownload)
	api.HandleFunc("DELETE /api/files", s.handleDeleteFile)
	api.HandleFunc("PUT /api/files/rename", s.handleRenameFile)
	api.HandleFunc("PUT /api/files/move", s.handleMoveFile)
	api.HandleFunc("GET /api/files/list", s.handleListFiles)
	api.HandleFunc("GET /api/files/info", s.handleFileInfo)
	api.HandleFunc("GET /api/files/logs", s.handleLogsByPath)
	api.HandleFunc("GET /api/files/logs/user", s.handleLogsByUser)

	api.HandleFunc("POST /api/folders", s.handleCreateFolder)
	api.HandleFunc("DELETE /api/folders", s.handleDeleteFolder)
	api.HandleFunc("PUT /api/folders/rename", s.handleRenameFolder)
	api.HandleFunc("PUT /api/folders/move", s.handleMoveFolder)
	api.HandleFunc("GET /api/folders/list", s.handleListFolder)
	api.HandleFunc("GET /api/folders/hierarchy", s.handleHierarchy)

	// metrics wraps the mux directly so it sees the matched pattern.
	var protected http.Handler = metrics.Middleware(api)
	protected = quota.RateLimitMiddleware(s.rateLimiter, s.opts.RequestsPerMinute, rateLimitKey)(protected)
	if s.auth != nil {
		protected = s.auth.Middleware(protected)
	}

	root := http.NewServeMux()
	root.Handle("GET /health", metrics.Middleware(http.HandlerFunc(s.handleHealth)))
	root.Handle("/api/", protected)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", logging.RequestIDHeader},
		ExposedHeaders:   []string{"Content-Disposition", logging.RequestIDHeader, "Retry-After"},
		AllowCredentials: true,
	})
	return c.Handler(logging.Middleware(root))
}

// rateLimitKey charges verified callers by name and everyone else by IP.
func rateLimitKey(r *http.Request) string {
	if claims := auth.GetClaims(r.Context()); claims != nil {
		return "user:" + claims.Name()
	}
	return "ip:" + quota.ClientIP(r)
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, protocol.HealthResponse{Status: "ok", Storage: s.opts.StorageType})
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Server) sendJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("response encode failed", zap.Error(err))
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	s.sendErrorDetails(w, code, message, nil)
}

func (s *Server) sendErrorDetails(w http.ResponseWriter, code int, message string, details map[string]any) {
	s.sendJSON(w, code, protocol.ErrorResponse{
		Status:    code,
		Error:     http.StatusText(code),
		Message:   message,
		Timestamp: time.Now().UTC(),
		Details:   details,
	})
}

// sendServiceError maps an operation error onto its HTTP status.
func (s *Server) sendServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code, details := statusFor(err)
	if code >= http.StatusInternalServerError {
		logging.WithContext(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	}
	s.sendErrorDetails(w, code, err.Error(), details)
}

func statusFor(err error) (int, map[string]any) {
	var (
		partial  *vfs.PartialFolderOperationError
		maxBytes *http.MaxBytesError
		invalid  validation.Errors
	)
	switch {
	case errors.As(err, &partial):
		return http.StatusConflict, map[string]any{
			"operation": string(partial.Operation),
			"completed": partial.Completed,
			"total":     partial.Total,
		}
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, nil
	case errors.As(err, &invalid), errors.Is(err, vfs.ErrInvalidPath), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, nil
	case errors.Is(err, vfs.ErrNotFound):
		return http.StatusNotFound, nil
	case errors.Is(err, vfs.ErrConflict):
		return http.StatusConflict, nil
	case errors.Is(err, vfs.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, nil
	case errors.Is(err, context.Canceled):
		return 499, nil
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, nil
	default:
		return http.StatusInternalServerError, nil
	}
}

var errBadRequest = errors.New("bad request")

// decodeOperation reads an OperationRequest from the JSON body, falling
// back to query parameters when the body is empty.
func decodeOperation(w http.ResponseWriter, r *http.Request) (*protocol.OperationRequest, error) {
	var req protocol.OperationRequest
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if !errors.Is(err, io.EOF) {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: malformed JSON body: %v", errBadRequest, err)
		}
		q := r.URL.Query()
		req = protocol.OperationRequest{
			Path:            q.Get("path"),
			DestinationPath: q.Get("destinationPath"),
			NewName:         q.Get("newName"),
			Username:        q.Get("username"),
		}
	}
	return &req, nil
}

func username(r *http.Request, requested string) string {
	return auth.ResolveUsername(r.Context(), requested)
}
