package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/manishnupt/mynx-file-hive/internal/logging"
	"github.com/manishnupt/mynx-file-hive/internal/metrics"
	"github.com/manishnupt/mynx-file-hive/internal/vfs"
	"github.com/manishnupt/mynx-file-hive/pkg/protocol"
)

var singleSegment = regexp.MustCompile(`^[^/]+$`)

func validateRename(req *protocol.OperationRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Path, validation.Required),
		validation.Field(&req.NewName,
			validation.Required,
			validation.Match(singleSegment).Error("must not contain '/'"),
		),
	)
}

func validateMove(req *protocol.OperationRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Path, validation.Required),
		validation.Field(&req.DestinationPath, validation.Required),
	)
}

func validatePath(req *protocol.OperationRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Path, validation.Required),
	)
}

func toFileResponse(n vfs.FileNode) protocol.FileResponse {
	return protocol.FileResponse{
		Name:         n.Name,
		Path:         n.Path,
		Size:         n.Size,
		LastModified: n.LastModified,
		Type:         string(n.Kind),
		ContentType:  n.ContentType,
	}
}

func toFileResponses(nodes []vfs.FileNode) []protocol.FileResponse {
	out := make([]protocol.FileResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, toFileResponse(n))
	}
	return out
}

// contentDisposition builds an attachment header safe for any file name.
func contentDisposition(name string) string {
	enc := strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, enc, enc)
}

// ─── Upload / Download ──────────────────────────────────────────────────────

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.opts.MaxUploadSize {
		s.sendError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload exceeds limit of %d bytes", s.opts.MaxUploadSize))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadSize)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.sendError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %d bytes", s.opts.MaxUploadSize))
			return
		}
		s.sendError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	res, err := s.files.UploadFile(r.Context(), vfs.UploadInput{
		FolderPath:  r.FormValue("path"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
		Username:    username(r, r.FormValue("username")),
	})
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	s.sendJSON(w, http.StatusCreated, protocol.UploadResponse{
		FileName:    res.FileName,
		FilePath:    res.FilePath,
		ContentType: res.ContentType,
		Size:        res.Size,
		Message:     res.Message,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		s.sendError(w, http.StatusBadRequest, "path is required")
		return
	}

	obj, err := s.files.DownloadFile(r.Context(), path, username(r, q.Get("username")))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", vfs.OctetStream)
	w.Header().Set("Content-Disposition", contentDisposition(vfs.BaseName(obj.Info.Key)))
	if obj.Info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, obj.Body)
	metrics.RecordContentDownload(n)
	if err != nil {
		logging.WithContext(r.Context()).Warn("download interrupted",
			zap.String("path", obj.Info.Key), zap.Int64("written", n), zap.Error(err))
	}
}

// ─── File mutations ─────────────────────────────────────────────────────────

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOperation(w, r)
	if err == nil {
		err = validatePath(req)
	}
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	if err := s.files.DeleteFile(r.Context(), req.Path, username(r, req.Username)); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenameFile(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOperation(w, r)
	if err == nil {
		err = validateRename(req)
	}
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	newKey, err := s.files.RenameFile(r.Context(), req.Path, req.NewName, username(r, req.Username))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.PathResponse{Path: newKey})
}

func (s *Server) handleMoveFile(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOperation(w, r)
	if err == nil {
		err = validateMove(req)
	}
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	newKey, err := s.files.MoveFile(r.Context(), req.Path, req.DestinationPath, username(r, req.Username))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.PathResponse{Path: newKey})
}

// ─── File queries ───────────────────────────────────────────────────────────

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.files.ListFiles(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, toFileResponses(files))
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.sendError(w, http.StatusBadRequest, "path is required")
		return
	}
	node, err := s.files.FileDetails(r.Context(), path)
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, toFileResponse(*node))
}
