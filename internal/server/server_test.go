package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/KaramelBytes/callreport-cli/internal/pipeline"
	"github.com/KaramelBytes/callreport-cli/internal/report"
)

const exampleCSV = "Representative,Doctor,Division,Date,Call Type,Outcome,Visits\n" +
	"Rep A,Dr X,Cardio,2024-01-05,digital,positive,3\n" +
	"Rep A,Dr X,Cardio,2024-01-05,digital,positive,3\n" +
	"Rep B,Dr Y,Neuro,2024-01-10,in-person,neutral,2\n"

func newTestServer(cfg Config) *Server {
	gin.SetMode(gin.TestMode)
	cfg.Options = pipeline.DefaultOptions()
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	if cfg.GroupBy == nil {
		cfg.GroupBy = []string{"representative"}
	}
	cfg.XLSX = report.XLSXOptions{Pivot: true, Chart: true}
	return New(cfg)
}

func upload(t *testing.T, s *Server, query, filename, body string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports"+query, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestHealthz(t *testing.T) {
	s := newTestServer(Config{})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	_, err := uuid.Parse(w.Header().Get("X-Request-ID"))
	assert.NoError(t, err, "generated request id")

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestRequestIDRejectsMalformed(t *testing.T) {
	s := newTestServer(Config{})
	for _, id := range []string{strings.Repeat("a", 65), "abc def", "id;drop", "<script>"} {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("X-Request-ID", id)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)

		got := w.Header().Get("X-Request-ID")
		assert.NotEqual(t, id, got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err, "replacement id for %q", id)
	}
}

func TestReportJSON(t *testing.T) {
	s := newTestServer(Config{})
	w := upload(t, s, "", "calls.csv", exampleCSV)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var doc report.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, 5.0, doc.Summary.TotalCalls)
	assert.Equal(t, "Rep A", doc.Summary.TopPerformer)
	assert.Equal(t, 1, doc.Rejections.Duplicates)
	assert.Empty(t, doc.Clean.Rows, "clean rows are omitted by default")
	require.NotEmpty(t, doc.Metrics.Columns)
	assert.Equal(t, "representative", doc.Metrics.Columns[0])
}

func TestReportFormats(t *testing.T) {
	s := newTestServer(Config{})

	w := upload(t, s, "?format=xlsx", "calls.csv", exampleCSV)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, contentTypeXLSX, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "calls.xlsx")
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	f.Close()

	w = upload(t, s, "?format=csv&group_by=division&group_by=month", "calls.csv", exampleCSV)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Body.String(), "division,period,records,calls,"), w.Body.String())

	w = upload(t, s, "?format=md&filter=division=neuro", "calls.csv", exampleCSV)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "[RUN SUMMARY]")
	assert.NotContains(t, w.Body.String(), "Rep A")

	w = upload(t, s, "?format=prom", "calls.csv", exampleCSV)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `callreport_calls{source="calls.csv"} 5`)
}

func TestReportErrors(t *testing.T) {
	s := newTestServer(Config{MaxUploadBytes: 4096})
	for _, tc := range []struct {
		name, query, file, body string
		status                  int
		want                    string
	}{
		{"bad format", "?format=pdf", "calls.csv", exampleCSV, http.StatusBadRequest, "unsupported format"},
		{"bad group key", "?group_by=colour", "calls.csv", exampleCSV, http.StatusBadRequest, "unknown group key"},
		{"no file", "", "", "", http.StatusBadRequest, "file"},
		{"unsupported file", "", "calls.pdf", "%PDF", http.StatusBadRequest, "unsupported file format"},
		{"missing column", "", "calls.csv", "Representative,Doctor,Division\nRep A,Dr X,Cardio\n", http.StatusUnprocessableEntity, "date"},
		{"all rejected", "", "calls.csv", "Representative,Doctor,Division,Date\nRep A,Dr X,Cardio,not-a-date\n", http.StatusUnprocessableEntity, "no usable data"},
		{"filter matches nothing", "?filter=division=derm", "calls.csv", exampleCSV, http.StatusUnprocessableEntity, "no usable data"},
		{"too large", "", "calls.csv", exampleCSV + strings.Repeat("Rep C,Dr Z,Neuro,2024-02-01,digital,positive,1\n", 200), http.StatusRequestEntityTooLarge, "exceeds"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			w := upload(t, s, tc.query, tc.file, tc.body)
			require.Equal(t, tc.status, w.Code, w.Body.String())
			assert.NotEmpty(t, decode(t, w)["request_id"])
			assert.Contains(t, w.Body.String(), tc.want)
		})
	}
}

func TestSchemaErrorBody(t *testing.T) {
	s := newTestServer(Config{})
	w := upload(t, s, "", "calls.csv", "Representative,Doctor\nRep A,Dr X\n")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	var body struct {
		Missing []string `json:"missing"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"division", "date"}, body.Missing)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(Config{RatePerSec: 0.001, Burst: 1})
	require.Equal(t, http.StatusOK, upload(t, s, "", "calls.csv", exampleCSV).Code)

	w := upload(t, s, "", "calls.csv", exampleCSV)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// health checks are not throttled
	hw := httptest.NewRecorder()
	s.Handler().ServeHTTP(hw, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, hw.Code)
}
