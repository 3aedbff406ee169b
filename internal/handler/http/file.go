package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/veldtlabs/identity/internal/service"
	"github.com/veldtlabs/identity/pkg/httputil"
	"github.com/veldtlabs/identity/pkg/middleware"
)

// FileHandler handles HTTP requests for file upload and download.
type FileHandler struct {
	service  *service.FileService
	maxBytes int64
	logger   *slog.Logger
}

// NewFileHandler creates a new file HTTP handler.
func NewFileHandler(svc *service.FileService, maxBytes int64, logger *slog.Logger) *FileHandler {
	return &FileHandler{service: svc, maxBytes: maxBytes, logger: logger}
}

// Upload handles POST /api/v1/files/upload (multipart form, field "file").
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	// Slack for the multipart framing around the file part.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+maxBodyBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, httputil.Response{
				Error: &httputil.ErrorResponse{
					Code:    "FILE_TOO_LARGE",
					Message: fmt.Sprintf("file exceeds maximum size of %d bytes", h.maxBytes),
				},
			})
			return
		}
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "multipart form field \"file\" is required"},
		})
		return
	}
	defer file.Close()

	uploaded, err := h.service.Upload(r.Context(), service.UploadInput{
		OwnerID:     userID,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Data:        file,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: uploaded})
}

// List handles GET /api/v1/files
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserIDFromContext(r.Context())

	files, err := h.service.List(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: files})
}

// Get handles GET /api/v1/files/{id}
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	file, err := h.service.Get(r.Context(), middleware.UserIDFromContext(r.Context()), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: file})
}

// Download handles GET /api/v1/files/{id}/download
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	meta, rc, err := h.service.Download(r.Context(), middleware.UserIDFromContext(r.Context()), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", meta.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.SizeBytes, 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.FileName))

	if _, err := io.Copy(w, rc); err != nil {
		// Response is already streaming; log and give up.
		h.logger.ErrorContext(r.Context(), "file download interrupted",
			slog.String("file_id", meta.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Delete handles DELETE /api/v1/files/{id}
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), middleware.UserIDFromContext(r.Context()), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"id": id.String(), "status": "deleted"},
	})
}
