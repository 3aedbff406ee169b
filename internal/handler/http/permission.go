package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/veldtlabs/identity/internal/service"
	"github.com/veldtlabs/identity/pkg/httputil"
	"github.com/veldtlabs/identity/pkg/validator"
)

// PermissionHandler handles HTTP requests for permission management.
type PermissionHandler struct {
	service *service.RBACService
	logger  *slog.Logger
}

// NewPermissionHandler creates a new permission HTTP handler.
func NewPermissionHandler(svc *service.RBACService, logger *slog.Logger) *PermissionHandler {
	return &PermissionHandler{service: svc, logger: logger}
}

// PermissionRequest is the JSON request body for creating a permission.
type PermissionRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=100,lowercase"`
	Description string `json:"description" validate:"omitempty,max=500"`
}

// List handles GET /api/v1/permissions
func (h *PermissionHandler) List(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: perms})
}

// Create handles POST /api/v1/permissions
func (h *PermissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req PermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	perm, err := h.service.CreatePermission(r.Context(), service.PermissionInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: perm})
}

// Delete handles DELETE /api/v1/permissions/{id}
func (h *PermissionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeletePermission(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"id": id.String(), "status": "deleted"},
	})
}
