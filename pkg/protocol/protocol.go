// Package protocol defines the JSON bodies exchanged over the HTTP API.
package protocol

import "time"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Status    int            `json:"status"`
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// OperationRequest is the JSON body of file and folder mutations.
type OperationRequest struct {
	Path            string `json:"path"`
	DestinationPath string `json:"destinationPath,omitempty"`
	NewName         string `json:"newName,omitempty"`
	Username        string `json:"username,omitempty"`
}

// UploadResponse is returned by POST /api/files/upload.
type UploadResponse struct {
	FileName    string `json:"fileName"`
	FilePath    string `json:"filePath"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	Message     string `json:"message"`
}

// FileResponse describes a file, or a folder entry in a listing.
type FileResponse struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	Type         string    `json:"type"` // FILE or FOLDER
	ContentType  string    `json:"contentType,omitempty"`
}

// FolderResponse is a node of the folder hierarchy.
type FolderResponse struct {
	Name       string           `json:"name"`
	Path       string           `json:"path"`
	Files      []FileResponse   `json:"files"`
	SubFolders []FolderResponse `json:"subFolders"`
}

// PathResponse carries the key or prefix produced by a mutation.
type PathResponse struct {
	Path string `json:"path"`
}

// OperationLog is one audit record.
type OperationLog struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Operation       string    `json:"operation"`
	FilePath        string    `json:"filePath"`
	DestinationPath string    `json:"destinationPath,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Status          string    `json:"status"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage,omitempty"`
}
