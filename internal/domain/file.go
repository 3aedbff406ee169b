package domain

import (
	"time"
)

// FileObject is the metadata record for an uploaded file. StorageKey locates
// the blob in the storage backend and is never exposed to clients.
type FileObject struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}
