package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/veldtlabs/identity/internal/service"
	"github.com/veldtlabs/identity/pkg/httputil"
	"github.com/veldtlabs/identity/pkg/i18n"
)

// ExportHandler handles HTTP requests for user data exports. Column labels
// are localized from the Accept-Language header.
type ExportHandler struct {
	service    *service.ExportService
	translator *i18n.Translator
	logger     *slog.Logger
}

// NewExportHandler creates a new export HTTP handler.
func NewExportHandler(svc *service.ExportService, translator *i18n.Translator, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{service: svc, translator: translator, logger: logger}
}

// UsersCSV handles GET /api/v1/export/users/csv
func (h *ExportHandler) UsersCSV(w http.ResponseWriter, r *http.Request) {
	filter := exportFilterFrom(r)
	tag := h.translator.Match(r.Header.Get("Accept-Language"))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "users-"+time.Now().Format("2006-01-02")+".csv"))

	if err := h.service.WriteUsersCSV(r.Context(), w, tag, filter); err != nil {
		// The CSV header may already be on the wire; reset content type only
		// if nothing was written yet.
		w.Header().Set("Content-Type", "application/json")
		w.Header().Del("Content-Disposition")
		httputil.WriteError(w, r, err, h.logger)
	}
}

// Fields handles GET /api/v1/export/users/fields
func (h *ExportHandler) Fields(w http.ResponseWriter, r *http.Request) {
	tag := h.translator.Match(r.Header.Get("Accept-Language"))
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.service.Fields(tag)})
}

// Stats handles GET /api/v1/export/users/stats
func (h *ExportHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), exportFilterFrom(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stats})
}

func exportFilterFrom(r *http.Request) service.ExportFilter {
	q := r.URL.Query()
	filter := service.ExportFilter{
		From: q.Get("from"),
		To:   q.Get("to"),
	}
	if cols := q.Get("fields"); cols != "" {
		filter.Columns = strings.Split(cols, ",")
	}
	return filter
}
