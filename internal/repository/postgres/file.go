package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/veldtlabs/identity/internal/domain"
	apperrors "github.com/veldtlabs/identity/pkg/errors"
)

// FileRepository implements repository.FileRepository using PostgreSQL.
type FileRepository struct {
	pool DB
}

// NewFileRepository creates a new PostgreSQL-backed file metadata repository.
func NewFileRepository(pool DB) *FileRepository {
	return &FileRepository{pool: pool}
}

// Create inserts a new file metadata record.
func (r *FileRepository) Create(ctx context.Context, f *domain.FileObject) error {
	query := `
		INSERT INTO files (id, owner_id, file_name, content_type, size_bytes, storage_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		f.ID,
		f.OwnerID,
		f.FileName,
		f.ContentType,
		f.SizeBytes,
		f.StorageKey,
		f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}

	return nil
}

// GetByID retrieves a file record by its ID.
func (r *FileRepository) GetByID(ctx context.Context, id string) (*domain.FileObject, error) {
	query := `
		SELECT id, owner_id, file_name, content_type, size_bytes, storage_key, created_at
		FROM files
		WHERE id = $1`

	var f domain.FileObject
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&f.ID,
		&f.OwnerID,
		&f.FileName,
		&f.ContentType,
		&f.SizeBytes,
		&f.StorageKey,
		&f.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return &f, nil
}

// ListByOwner returns all files owned by the given user, newest first.
func (r *FileRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.FileObject, error) {
	query := `
		SELECT id, owner_id, file_name, content_type, size_bytes, storage_key, created_at
		FROM files
		WHERE owner_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := []domain.FileObject{}
	for rows.Next() {
		var f domain.FileObject
		if err := rows.Scan(
			&f.ID,
			&f.OwnerID,
			&f.FileName,
			&f.ContentType,
			&f.SizeBytes,
			&f.StorageKey,
			&f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan file row: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file rows: %w", err)
	}

	return files, nil
}

// Delete removes a file record by its ID.
func (r *FileRepository) Delete(ctx context.Context, id string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM files WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("file", id)
	}
	return nil
}
