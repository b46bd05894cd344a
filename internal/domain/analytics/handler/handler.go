// Package handler implements the HTTP Facade for the tabular analytics
// engine: upload, filter-values, pivot, export, and dataset delete.
// Endpoints are stateless; all state flows through the Dataset Store.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics/export"
	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics/loader"
	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics/pivot"
	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics/store"
)

const maxUploadBytes = 64 << 20 // 64 MiB

// Handler serves the analytics pivot workbench endpoints.
type Handler struct {
	store  *store.Store
	logger *slog.Logger
}

// New constructs a Handler backed by store.
func New(s *store.Store, logger *slog.Logger) *Handler {
	return &Handler{store: s, logger: logger}
}

// Routes registers the Handler's endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/dataset", h.Upload)
	r.Delete("/api/dataset/{id}", h.Delete)
	r.Put("/api/dataset/{id}/calculations", h.UpdateCalculations)
	r.Get("/api/filter-values", h.FilterValues)
	r.Post("/api/pivot", h.Pivot)
	r.Post("/api/export", h.Export)
}

type uploadResponse struct {
	DatasetID    string                       `json:"datasetId"`
	Name         string                       `json:"name"`
	Columns      []string                     `json:"columns"`
	Dimensions   []string                     `json:"dimensions"`
	Measures     []string                     `json:"measures"`
	Schema       map[string]string            `json:"schema"`
	RowCount     int                          `json:"rowCount"`
	Aggregations []analytics.AggregatorOption `json:"aggregations"`
}

// Upload decodes a multipart/form-data "file" field into a Dataset.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, analytics.NewError(analytics.CodeMalformed, "parsing multipart form", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, analytics.NewError(analytics.CodeMalformed, "missing \"file\" field", err))
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		writeError(w, analytics.NewError(analytics.CodeMalformed, "reading upload body", err))
		return
	}
	if len(raw) == 0 {
		writeError(w, analytics.NewError(analytics.CodeEmptyInput, "empty upload", nil))
		return
	}

	result, err := loader.Load(header.Filename, raw)
	if err != nil {
		writeError(w, err)
		return
	}

	ds := h.store.Put(header.Filename, result.Table, result.Schema)
	h.logger.Info("dataset uploaded",
		slog.String("dataset_id", ds.ID),
		slog.String("name", ds.Name),
		slog.Int("rows", ds.Table.RowCount),
		slog.Int("columns", len(ds.Schema)),
	)
	writeJSON(w, http.StatusOK, toUploadResponse(ds))
}

func toUploadResponse(ds *analytics.Dataset) uploadResponse {
	resp := uploadResponse{
		DatasetID:    ds.ID,
		Name:         ds.Name,
		RowCount:     ds.Table.RowCount,
		Schema:       make(map[string]string, len(ds.Schema)),
		Aggregations: ds.Aggregations,
	}
	for _, entry := range ds.Schema {
		resp.Columns = append(resp.Columns, entry.Key)
		resp.Schema[entry.Key] = string(entry.Kind)
		if entry.IsMeasure {
			resp.Measures = append(resp.Measures, entry.Key)
		} else {
			resp.Dimensions = append(resp.Dimensions, entry.Key)
		}
	}
	return resp
}

// Delete removes a dataset, returning 204 whether or not it existed.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.store.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

// FilterValues returns the distinct values for one dataset column. An
// optional "q" parameter switches to relevance-ranked typeahead search over
// the distinct values.
func (h *Handler) FilterValues(w http.ResponseWriter, r *http.Request) {
	datasetID := r.URL.Query().Get("datasetId")
	field := r.URL.Query().Get("field")
	query := r.URL.Query().Get("q")

	ds, ok := h.store.Get(datasetID)
	if !ok {
		writeError(w, analytics.NewError(analytics.CodeUnknownDataset, datasetID, nil))
		return
	}
	if ds.Table.ColumnByKey(field) == nil {
		writeError(w, analytics.NewError(analytics.CodeUnknownColumn, field, nil))
		return
	}

	var (
		values []string
		err    error
	)
	if query != "" {
		values, err = store.SearchFilterValues(ds, field, query, 100)
	} else {
		values, err = store.DistinctValues(ds, field)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"values": values})
}

// UpdateCalculations persists pre/post calculated-column definitions on a
// dataset, materializing pre-calc columns into the stored table.
func (h *Handler) UpdateCalculations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var calcs analytics.Calculations
	if err := json.NewDecoder(r.Body).Decode(&calcs); err != nil {
		writeError(w, analytics.NewError(analytics.CodeMalformed, "decoding calculations", err))
		return
	}

	ds, err := h.store.UpdateCalculations(id, calcs.Pre, calcs.Post)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUploadResponse(ds))
}

// Pivot runs a PivotQuery against the Dataset Store.
func (h *Handler) Pivot(w http.ResponseWriter, r *http.Request) {
	var q analytics.PivotQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, analytics.NewError(analytics.CodeMalformed, "decoding pivot query", err))
		return
	}

	ds, ok := h.store.Get(q.DatasetID)
	if !ok {
		writeError(w, analytics.NewError(analytics.CodeUnknownDataset, q.DatasetID, nil))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), pivot.HardDeadline)
	defer cancel()

	result, err := pivot.Plan(ctx, ds, q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type exportRequest struct {
	analytics.PivotQuery
	Format string `json:"format"`
}

// Export runs a PivotQuery and renders the result to Excel or PDF.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, analytics.NewError(analytics.CodeMalformed, "decoding export request", err))
		return
	}

	ds, ok := h.store.Get(req.DatasetID)
	if !ok {
		writeError(w, analytics.NewError(analytics.CodeUnknownDataset, req.DatasetID, nil))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), pivot.HardDeadline)
	defer cancel()

	result, err := pivot.Plan(ctx, ds, req.PivotQuery)
	if err != nil {
		writeError(w, err)
		return
	}

	stamp := time.Now().Format("20060102_150405")
	var (
		body        []byte
		contentType string
		filename    string
	)
	switch req.Format {
	case "excel":
		body, err = export.ToExcel(ctx, result)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		filename = fmt.Sprintf("%s_%s.xlsx", ds.Name, stamp)
	case "pdf":
		body, err = export.ToPDF(ctx, ds.Name, result)
		contentType = "application/pdf"
		filename = fmt.Sprintf("%s_%s.pdf", ds.Name, stamp)
	default:
		writeError(w, analytics.NewError(analytics.CodeMalformed, fmt.Sprintf("unsupported export format %q", req.Format), nil))
		return
	}
	if err != nil {
		writeError(w, analytics.NewError(analytics.CodeInternal, "rendering export", err))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a typed analytics.Error to its HTTP status; any
// other error is a 500 with no leaked internal detail.
func writeError(w http.ResponseWriter, err error) {
	var aerr *analytics.Error
	if e, ok := err.(*analytics.Error); ok {
		aerr = e
	} else {
		aerr = analytics.NewError(analytics.CodeInternal, "internal error", err)
	}
	writeJSON(w, StatusFor(aerr.Code), map[string]string{
		"code":    string(aerr.Code),
		"message": aerr.Message,
	})
}

// StatusFor maps an error taxonomy code to its HTTP status.
func StatusFor(code analytics.Code) int {
	switch code {
	case analytics.CodeForbidden:
		return http.StatusForbidden
	case analytics.CodeUnknownDataset:
		return http.StatusNotFound
	case analytics.CodeTimeout:
		return http.StatusRequestTimeout
	case analytics.CodeCancelled:
		return 499
	case analytics.CodeRemoteFetchFailed:
		return http.StatusBadGateway
	case analytics.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
