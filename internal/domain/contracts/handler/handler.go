// Package handler implements the contracts dashboard HTTP endpoints:
// workbook upload, dashboard query, and remote refresh.
package handler

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
	analyticshandler "github.com/FACorreiaa/analytics-portal/internal/domain/analytics/handler"
	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics/loader"
	"github.com/FACorreiaa/analytics-portal/internal/domain/contracts"
	"github.com/FACorreiaa/analytics-portal/internal/domain/contracts/service"
)

const maxUploadBytes = 64 << 20

// Handler serves the contracts dashboard endpoints.
type Handler struct {
	svc       *service.Service
	syncToken string // required X-Portal-Token for manual refresh, "" allows any
	logger    *slog.Logger
}

// New constructs a Handler backed by svc.
func New(svc *service.Service, syncToken string, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, syncToken: syncToken, logger: logger}
}

// Routes registers the dashboard endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/dashboard/upload", h.Upload)
	r.Post("/api/dashboard/fixed-upload", h.UploadFixed)
	r.Post("/api/dashboard/query", h.Query)
	r.Post("/api/dashboard/refresh-drive", h.RefreshRemote)
	r.Post("/api/dashboard/overrides", h.SetOverride)
}

type uploadEnvelope struct {
	Dataset  contracts.DatasetRef   `json:"dataset"`
	Datasets []contracts.DatasetRef `json:"datasets"`
}

// Upload normalizes a multipart workbook upload into a contracts dataset.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, analytics.NewError(analytics.CodeMalformed, "parsing multipart form", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, analytics.NewError(analytics.CodeMalformed, "missing \"file\" field", err))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, analytics.NewError(analytics.CodeMalformed, "reading upload body", err))
		return
	}

	result, err := loader.Load(header.Filename, raw)
	if err != nil {
		h.writeError(w, err)
		return
	}

	stored, err := h.svc.Ingest(header.Filename, result.Table, result.Schema)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.logger.Info("dashboard workbook ingested",
		slog.String("dataset_id", stored.ID),
		slog.String("name", stored.Name),
		slog.Int("rows", stored.Table.RowCount),
	)
	h.writeJSON(w, http.StatusOK, uploadEnvelope{
		Dataset:  contracts.DatasetRef{ID: stored.ID, Name: stored.Name},
		Datasets: h.svc.Datasets(),
	})
}

// UploadFixed indexes a fixed-variables workbook whose records overlay
// contract rows on every subsequent ingestion.
func (h *Handler) UploadFixed(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, analytics.NewError(analytics.CodeMalformed, "parsing multipart form", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, analytics.NewError(analytics.CodeMalformed, "missing \"file\" field", err))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, analytics.NewError(analytics.CodeMalformed, "reading upload body", err))
		return
	}

	result, err := loader.Load(header.Filename, raw)
	if err != nil {
		h.writeError(w, err)
		return
	}

	indexed := h.svc.SetFixedVariables(result.Table, result.Schema)
	h.logger.Info("fixed-variables workbook indexed",
		slog.String("name", header.Filename),
		slog.Int("records", indexed),
	)
	h.writeJSON(w, http.StatusOK, map[string]int{"records": indexed})
}

// Query computes a dashboard view with filters and scenario adjustments.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var in service.QueryInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, analytics.NewError(analytics.CodeMalformed, "decoding dashboard query", err))
		return
	}

	view, err := h.svc.Query(in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// RefreshRemote re-downloads the primary workbook. When the server is
// configured with a sync token, the X-Portal-Token header must match it
// byte-for-byte.
func (h *Handler) RefreshRemote(w http.ResponseWriter, r *http.Request) {
	if h.syncToken != "" {
		token := r.Header.Get("X-Portal-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.syncToken)) != 1 {
			h.writeError(w, analytics.NewError(analytics.CodeForbidden, "invalid refresh token", nil))
			return
		}
	}

	stored, err := h.svc.RefreshRemote(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, uploadEnvelope{
		Dataset:  contracts.DatasetRef{ID: stored.ID, Name: stored.Name},
		Datasets: h.svc.Datasets(),
	})
}

type overrideRequest struct {
	Raw       string `json:"raw"`
	Canonical string `json:"canonical"`
}

// SetOverride records a UGR spelling correction applied to every
// subsequent workbook ingestion, answering with similar canonical terms
// already known.
func (h *Handler) SetOverride(w http.ResponseWriter, r *http.Request) {
	var in overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.writeError(w, analytics.NewError(analytics.CodeMalformed, "decoding override", err))
		return
	}
	if in.Raw == "" || in.Canonical == "" {
		h.writeError(w, analytics.NewError(analytics.CodeMalformed, "raw and canonical are required", nil))
		return
	}

	h.svc.Overrides().Set(in.Raw, in.Canonical)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"raw":         in.Raw,
		"canonical":   in.Canonical,
		"suggestions": h.svc.Overrides().Suggest(in.Raw, 5),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	aerr, ok := err.(*analytics.Error)
	if !ok {
		aerr = analytics.NewError(analytics.CodeInternal, "internal error", err)
	}
	if aerr.Code == analytics.CodeInternal || aerr.Code == analytics.CodeRemoteFetchFailed {
		h.logger.Error("dashboard request failed", slog.String("code", string(aerr.Code)), slog.Any("error", err))
	}
	h.writeJSON(w, analyticshandler.StatusFor(aerr.Code), map[string]string{
		"code":    string(aerr.Code),
		"message": aerr.Message,
	})
}
