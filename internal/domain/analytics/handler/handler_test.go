package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics"
	"github.com/FACorreiaa/analytics-portal/internal/domain/analytics/store"
)

func newTestRouter() (*chi.Mux, *Handler) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(store.NewStore(), logger)
	r := chi.NewRouter()
	h.Routes(r)
	return r, h
}

func multipartCSV(t *testing.T, name, csv string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload_RegistersDatasetAndReturnsSchema(t *testing.T) {
	r, _ := newTestRouter()
	body, contentType := multipartCSV(t, "sample.csv", "region,units\nN,10\nS,3\n")

	req := httptest.NewRequest(http.MethodPost, "/api/dataset", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.DatasetID)
	assert.Equal(t, 2, resp.RowCount)
	assert.Contains(t, resp.Measures, "units")
	assert.Contains(t, resp.Dimensions, "region")
}

func TestUpload_EmptyFileReturns400(t *testing.T) {
	r, _ := newTestRouter()
	body, contentType := multipartCSV(t, "sample.csv", "")

	req := httptest.NewRequest(http.MethodPost, "/api/dataset", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPivot_UnknownDatasetReturns404(t *testing.T) {
	r, _ := newTestRouter()
	q := analytics.PivotQuery{DatasetID: "missing", Measures: []string{"units"}, Aggregator: analytics.AggSum}
	payload, err := json.Marshal(q)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/pivot", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPivot_EndToEnd(t *testing.T) {
	r, h := newTestRouter()
	ds := h.store.Put("sample", sampleTable(), sampleSchema())

	q := analytics.PivotQuery{
		DatasetID:  ds.ID,
		Rows:       []string{"region"},
		Measures:   []string{"units"},
		Aggregator: analytics.AggSum,
	}
	payload, err := json.Marshal(q)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/pivot", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result analytics.PivotResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 18.0, result.GrandTotal)
}

func TestUpdateCalculations_MaterializesPreCalc(t *testing.T) {
	r, h := newTestRouter()
	ds := h.store.Put("sample", sampleTable(), sampleSchema())

	payload, err := json.Marshal(analytics.Calculations{
		Pre: []analytics.CalculationSpec{{
			Name: "Dobro", Stage: analytics.StagePre,
			Operation: "expression", Expression: "{units} * 2",
			ResultField: "dobro",
		}},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPut, "/api/dataset/"+ds.ID+"/calculations", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Measures, "dobro")
}

func TestFilterValues_UnknownColumnReturns400(t *testing.T) {
	r, h := newTestRouter()
	ds := h.store.Put("sample", sampleTable(), sampleSchema())

	req := httptest.NewRequest(http.MethodGet, "/api/filter-values?datasetId="+ds.ID+"&field=bogus", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDelete_IsIdempotent(t *testing.T) {
	r, h := newTestRouter()
	ds := h.store.Put("sample", sampleTable(), sampleSchema())

	req := httptest.NewRequest(http.MethodDelete, "/api/dataset/"+ds.ID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req2 := httptest.NewRequest(http.MethodDelete, "/api/dataset/"+ds.ID, nil)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusNoContent, rec2.Code)
}

func TestExport_UnsupportedFormatReturns400(t *testing.T) {
	r, h := newTestRouter()
	ds := h.store.Put("sample", sampleTable(), sampleSchema())

	req := exportRequest{
		PivotQuery: analytics.PivotQuery{DatasetID: ds.ID, Measures: []string{"units"}, Aggregator: analytics.AggSum},
		Format:     "csv",
	}
	payload, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/api/export", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httpReq)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExport_ExcelProducesAttachment(t *testing.T) {
	r, h := newTestRouter()
	ds := h.store.Put("sample", sampleTable(), sampleSchema())

	req := exportRequest{
		PivotQuery: analytics.PivotQuery{DatasetID: ds.ID, Rows: []string{"region"}, Measures: []string{"units"}, Aggregator: analytics.AggSum},
		Format:     "excel",
	}
	payload, err := json.Marshal(req)
	require.NoError(t, err)

	httpReq := httptest.NewRequest(http.MethodPost, "/api/export", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httpReq)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.NotEmpty(t, rec.Body.Bytes())
}

func sampleTable() *analytics.Table {
	region := &analytics.Column{Name: "region", Key: "region", Kind: analytics.KindText, Values: []analytics.Cell{
		analytics.TextCell("N"), analytics.TextCell("N"), analytics.TextCell("S"),
	}}
	units := &analytics.Column{Name: "units", Key: "units", Kind: analytics.KindReal, Values: []analytics.Cell{
		analytics.NumberCell(10), analytics.NumberCell(5), analytics.NumberCell(3),
	}}
	return &analytics.Table{Columns: []*analytics.Column{region, units}, RowCount: 3}
}

func sampleSchema() []analytics.SchemaEntry {
	return []analytics.SchemaEntry{
		{Key: "region", Label: "region", Kind: analytics.KindText},
		{Key: "units", Label: "units", Kind: analytics.KindReal, IsMeasure: true},
	}
}
