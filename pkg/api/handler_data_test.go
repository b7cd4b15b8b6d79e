package api_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uploadCSV(t *testing.T, csv, tableName string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "cars.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csv))
	require.NoError(t, err)
	if tableName != "" {
		require.NoError(t, w.WriteField("table_name", tableName))
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/data/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

const carsCSV = "VIN,Make,Year\n1HGCM82633A004352,Honda,2020\n1HGCM82633A004353,Ford,2019\n"

func TestDataUploadAndListTables(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, uploadCSV(t, carsCSV, "cars"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data/tables", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tables []string `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Tables, "cars")
}

func TestDataUploadMissingFileIsRejected(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/data/upload", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTableSchemaAndPreview(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, uploadCSV(t, carsCSV, "cars"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data/tables/cars/schema", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data/tables/cars/preview?limit=1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTableSchemaUnknownTableIs404(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data/tables/missing/schema", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTable(t *testing.T) {
	h := newHarness(t)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, uploadCSV(t, carsCSV, "cars"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/data/tables/cars", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/data/tables/cars/schema", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
