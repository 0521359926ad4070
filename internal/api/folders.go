package api

import (
	"net/http"

	"github.com/manishnupt/mynx-file-hive/internal/vfs"
	"github.com/manishnupt/mynx-file-hive/pkg/protocol"
)

func toFolderResponse(f *vfs.FolderNode) protocol.FolderResponse {
	out := protocol.FolderResponse{
		Name:       f.Name,
		Path:       f.Path,
		Files:      make([]protocol.FileResponse, 0, len(f.Files)),
		SubFolders: make([]protocol.FolderResponse, 0, len(f.SubFolders)),
	}
	for _, file := range f.Files {
		out.Files = append(out.Files, toFileResponse(*file))
	}
	for _, sub := range f.SubFolders {
		out.SubFolders = append(out.SubFolders, toFolderResponse(sub))
	}
	return out
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOperation(w, r)
	if err == nil {
		err = validatePath(req)
	}
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	prefix, err := s.files.CreateFolder(r.Context(), req.Path, username(r, req.Username))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, protocol.PathResponse{Path: prefix})
}

func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOperation(w, r)
	if err == nil {
		err = validatePath(req)
	}
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	if err := s.files.DeleteFolder(r.Context(), req.Path, username(r, req.Username)); err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenameFolder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOperation(w, r)
	if err == nil {
		err = validateRename(req)
	}
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	prefix, err := s.files.RenameFolder(r.Context(), req.Path, req.NewName, username(r, req.Username))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.PathResponse{Path: prefix})
}

func (s *Server) handleMoveFolder(w http.ResponseWriter, r *http.Request) {
	req, err := decodeOperation(w, r)
	if err == nil {
		err = validateMove(req)
	}
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}

	prefix, err := s.files.MoveFolder(r.Context(), req.Path, req.DestinationPath, username(r, req.Username))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, protocol.PathResponse{Path: prefix})
}

func (s *Server) handleListFolder(w http.ResponseWriter, r *http.Request) {
	entries, err := s.files.ListFolder(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, toFileResponses(entries))
}

func (s *Server) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	root, err := s.files.Hierarchy(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		s.sendServiceError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, toFolderResponse(root))
}
