package models

import (
	"io"
	"time"
)

// Document is file metadata attached to a request.
type Document struct {
	ID         int64     `json:"document_id" example:"3"`
	RequestID  int64     `json:"request_id" example:"42"`
	FileName   string    `json:"file_name" example:"birth_certificate.pdf"`
	FilePath   string    `json:"file_path" example:"requests/42/5f1c9a0e.pdf"`
	FileType   string    `json:"file_type" example:"application/pdf"`
	FileSize   int64     `json:"file_size" example:"20480"`
	UploadedBy int64     `json:"uploaded_by" example:"7"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// UploadedFile is one incoming file of an upload.
type UploadedFile struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// UploadResult is returned after documents are attached.
type UploadResult struct {
	Message   string     `json:"message" example:"Files uploaded"`
	RequestID int64      `json:"request_id" example:"42"`
	Documents []Document `json:"documents"`
}
