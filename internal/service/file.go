package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/veldtlabs/identity/internal/domain"
	"github.com/veldtlabs/identity/internal/repository"
	"github.com/veldtlabs/identity/internal/storage"
	apperrors "github.com/veldtlabs/identity/pkg/errors"
)

// FileService implements owner-scoped file upload, download, and deletion.
// Metadata lives in the database; blobs live in the configured storage
// backend under a generated key.
type FileService struct {
	files    repository.FileRepository
	store    storage.Storage
	maxBytes int64
	logger   *slog.Logger
}

// NewFileService creates a new file service.
func NewFileService(files repository.FileRepository, store storage.Storage, maxBytes int64, logger *slog.Logger) *FileService {
	return &FileService{
		files:    files,
		store:    store,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// UploadInput holds the parameters for uploading a file.
type UploadInput struct {
	OwnerID     string
	FileName    string
	ContentType string
	Size        int64
	Data        io.Reader
}

// Upload stores the blob and records its metadata.
func (s *FileService) Upload(ctx context.Context, input UploadInput) (*domain.FileObject, error) {
	if input.FileName == "" {
		return nil, apperrors.InvalidInput("file name is required")
	}
	if input.Size > s.maxBytes {
		return nil, apperrors.InvalidInput(fmt.Sprintf("file exceeds maximum size of %d bytes", s.maxBytes))
	}
	if input.ContentType == "" {
		input.ContentType = "application/octet-stream"
	}

	key := uuid.New().String()

	// Guard against clients understating Content-Length.
	written, err := s.store.Save(ctx, key, io.LimitReader(input.Data, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}
	if written > s.maxBytes {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.ErrorContext(ctx, "failed to remove oversized blob",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperrors.InvalidInput(fmt.Sprintf("file exceeds maximum size of %d bytes", s.maxBytes))
	}

	file := &domain.FileObject{
		ID:          uuid.New().String(),
		OwnerID:     input.OwnerID,
		FileName:    input.FileName,
		ContentType: input.ContentType,
		SizeBytes:   written,
		StorageKey:  key,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.files.Create(ctx, file); err != nil {
		// Metadata insert failed; don't leave an orphaned blob behind.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to remove orphaned blob",
				slog.String("key", key),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("save file metadata: %w", err)
	}

	s.logger.InfoContext(ctx, "file uploaded",
		slog.String("file_id", file.ID),
		slog.String("owner_id", file.OwnerID),
		slog.Int64("size_bytes", file.SizeBytes),
	)

	return file, nil
}

// List returns all files owned by the given user.
func (s *FileService) List(ctx context.Context, ownerID string) ([]domain.FileObject, error) {
	files, err := s.files.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// Get returns a file's metadata, owner-scoped like Download.
func (s *FileService) Get(ctx context.Context, requesterID, fileID string) (*domain.FileObject, error) {
	return s.getOwned(ctx, requesterID, fileID)
}

// Download returns the metadata and an open reader for a file. Only the
// owner may download; anyone else gets NotFound rather than Forbidden so
// file IDs are not probeable.
func (s *FileService) Download(ctx context.Context, requesterID, fileID string) (*domain.FileObject, io.ReadCloser, error) {
	file, err := s.getOwned(ctx, requesterID, fileID)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.store.Open(ctx, file.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.ErrorContext(ctx, "file metadata exists but blob is missing",
				slog.String("file_id", file.ID),
				slog.String("key", file.StorageKey),
			)
			return nil, nil, apperrors.NotFound("file", fileID)
		}
		return nil, nil, fmt.Errorf("open blob: %w", err)
	}

	return file, rc, nil
}

// Delete removes a file's metadata and blob. Only the owner may delete.
func (s *FileService) Delete(ctx context.Context, requesterID, fileID string) error {
	file, err := s.getOwned(ctx, requesterID, fileID)
	if err != nil {
		return err
	}

	if err := s.files.Delete(ctx, fileID); err != nil {
		return fmt.Errorf("delete file metadata: %w", err)
	}

	if err := s.store.Delete(ctx, file.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.logger.ErrorContext(ctx, "failed to delete blob",
			slog.String("file_id", fileID),
			slog.String("key", file.StorageKey),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "file deleted",
		slog.String("file_id", fileID),
		slog.String("owner_id", file.OwnerID),
	)

	return nil
}

func (s *FileService) getOwned(ctx context.Context, requesterID, fileID string) (*domain.FileObject, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound("file", fileID)
		}
		return nil, fmt.Errorf("get file: %w", err)
	}
	if file.OwnerID != requesterID {
		return nil, apperrors.NotFound("file", fileID)
	}
	return file, nil
}
