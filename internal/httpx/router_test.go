package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/spend-dashboard/internal/analytics"
	"github.com/AngelCh415/spend-dashboard/internal/ingest"
	"github.com/AngelCh415/spend-dashboard/internal/metrics"
	"github.com/AngelCh415/spend-dashboard/internal/models"
	"github.com/AngelCh415/spend-dashboard/internal/store"
	"github.com/AngelCh415/spend-dashboard/internal/utils"
)

const reportText = "Campaign: Summer Sale\nDate: 2025-08-02\nSpend: $123.45\nCampaign: Winter Sale\nDate: 2025-08-03\nSpend: $67.00"

type gaFunc func(ctx context.Context, q analytics.Query) (*analytics.Report, error)

func (f gaFunc) Query(ctx context.Context, q analytics.Query) (*analytics.Report, error) { return f(ctx, q) }

type testEnv struct {
	h   http.Handler
	reg *prometheus.Registry
}

func newEnv(t *testing.T, mutate func(*Deps)) testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	reg := prometheus.NewRegistry()
	obs := metrics.NewObserver(reg)
	ga := gaFunc(func(ctx context.Context, q analytics.Query) (*analytics.Report, error) {
		return &analytics.Report{
			MetricHeaders: []string{"sessions", "totalUsers", "bounceRate"},
			Rows:          []analytics.Row{{MetricValues: []string{"400", "300", "0.25"}}},
		}, nil
	})
	svc := metrics.NewService(st, st, ga, log, metrics.Options{
		Channels:         []string{"Paid Search", "Display", "Paid Video"},
		AnalyticsTimeout: time.Second,
		DefaultStart:     "2025-08-01",
		DefaultEnd:       "2025-08-07",
		Observer:         obs,
	})
	ex := ingest.TextExtractorFunc(func(context.Context, []byte) (string, error) { return reportText, nil })
	up := ingest.NewUploader(st, st, ex, log, 4096).WithObserver(obs)

	d := Deps{
		Log:            log,
		Dashboard:      svc,
		Uploads:        up,
		Reports:        analytics.NewReports(ga, log, time.Second),
		Gatherer:       reg,
		MaxUploadBytes: 4096,
	}
	if mutate != nil {
		mutate(&d)
	}
	return testEnv{h: NewRouter(d), reg: reg}
}

func (e testEnv) do(t *testing.T, req *http.Request, user string) *httptest.ResponseRecorder {
	t.Helper()
	if user != "" {
		req.Header.Set(utils.UserHeader, user)
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func pdfUpload(t *testing.T, name, contentType string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload/pdf", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestDashboardMetricsResponseShape(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/dashboard/metrics?startDate=2025-08-01&endDate=2025-08-07", nil), "u1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decode(t, rec)
	assert.Equal(t, []string{
		"avgBounceRate", "clickRate", "conversions", "metadata", "mockDataFields",
		"totalCampaigns", "totalImpressions", "totalSessions", "totalSpend", "totalUsers",
	}, keys(body))
	assert.Equal(t, 400.0, body["totalSessions"])
	assert.Equal(t, 0.25, body["avgBounceRate"])

	meta := body["metadata"].(map[string]any)
	assert.Equal(t, []string{"dataSource", "dateRange", "timestamp"}, keys(meta))
	assert.Equal(t, map[string]any{"startDate": "2025-08-01", "endDate": "2025-08-07"}, meta["dateRange"])
	ds := meta["dataSource"].(map[string]any)
	assert.Equal(t, "success", ds["ga4"])
	assert.Equal(t, "success", ds["spend"])
	assert.Nil(t, ds["ga4Error"])

	_, err := time.Parse(time.RFC3339Nano, meta["timestamp"].(string))
	assert.NoError(t, err)
}

func TestDashboardMetricsDefaultsDates(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/dashboard/metrics", nil), "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	meta := decode(t, rec)["metadata"].(map[string]any)
	assert.Equal(t, map[string]any{"startDate": "2025-08-01", "endDate": "2025-08-07"}, meta["dateRange"])
}

func TestDashboardMetricsRejectsBadDates(t *testing.T) {
	env := newEnv(t, nil)
	for _, q := range []string{
		"startDate=08/01/2025&endDate=2025-08-07",
		"startDate=2025-08-07&endDate=2025-08-01",
		"channels=Email",
	} {
		rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/dashboard/metrics?"+q, nil), "u1")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		body := decode(t, rec)
		assert.Equal(t, "Invalid request", body["error"])
		assert.NotEmpty(t, body["message"])
	}
}

func TestAPIRequiresUser(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/dashboard/summary", nil), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	dev := newEnv(t, func(d *Deps) { d.DevMode = true; d.DevUserID = "dev" })
	rec = dev.do(t, httptest.NewRequest(http.MethodGet, "/api/dashboard/summary", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadFlow(t *testing.T) {
	env := newEnv(t, nil)

	rec := env.do(t, pdfUpload(t, "report.pdf", "application/pdf", []byte("%PDF-1.4\nbody\n")), "u1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode(t, rec)
	assert.Equal(t, true, res["success"])
	assert.Equal(t, 2.0, res["campaigns_found"])
	assert.Equal(t, 190.45, res["total_amount"])
	assert.Equal(t, 2.0, res["inserted_count"])
	id := res["upload_id"].(string)
	require.NotEmpty(t, id)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload/history", nil), "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode(t, rec)
	assert.Equal(t, 1.0, hist["count"])

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload/"+id, nil), "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode(t, rec)
	camps := detail["campaigns"].([]any)
	require.Len(t, camps, 2)
	var dates []any
	for _, c := range camps {
		dates = append(dates, c.(map[string]any)["date"])
	}
	assert.ElementsMatch(t, []any{"2025-08-02", "2025-08-03"}, dates)

	// other users cannot see it
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/upload/"+id, nil), "u2")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/dashboard/metrics", nil), "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 190.45, decode(t, rec)["totalSpend"])

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/dashboard/summary", nil), "u1")
	sum := decode(t, rec)
	assert.Equal(t, 1.0, sum["totalUploads"])
	assert.Equal(t, 190.45, sum["totalSpend"])
}

func TestUploadRejectsNonPDF(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, pdfUpload(t, "notes.txt", "text/plain", []byte("hello")), "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only PDF files allowed", decode(t, rec)["message"])

	rec = env.do(t, httptest.NewRequest(http.MethodPost, "/api/upload/pdf", nil), "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", decode(t, rec)["message"])
}

func TestUploadTooLarge(t *testing.T) {
	env := newEnv(t, nil)
	big := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 8192)...)
	rec := env.do(t, pdfUpload(t, "big.pdf", "application/pdf", big), "u1")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ready := true
	env := newEnv(t, func(d *Deps) {
		d.Ready = func(context.Context) error {
			if !ready {
				return fmt.Errorf("store closed")
			}
			return nil
		}
	})

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	ready = false
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/readyz", nil), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	env.do(t, httptest.NewRequest(http.MethodGet, "/api/dashboard/metrics", nil), "u1")
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `spend_dashboard_source_results_total{result="success",source="analytics"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	env := newEnv(t, func(d *Deps) { d.CORSOrigins = []string{"http://localhost:3000"} })
	req := httptest.NewRequest(http.MethodOptions, "/api/dashboard/metrics", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := env.do(t, req, "")
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

// brokenDashboard fails with a runtime panic on every call.
type brokenDashboard struct{}

func (brokenDashboard) ParseRequest(url.Values) (metrics.Request, error) { return metrics.Request{}, nil }

func (brokenDashboard) Reconcile(context.Context, string, models.DateRange, []string) models.DashboardMetrics {
	var m map[string]int
	m["sessions"]++
	return models.DashboardMetrics{}
}

func (brokenDashboard) Summary(context.Context, string) models.DashboardSummary {
	panic("summary unavailable")
}

func TestHandlerPanicReturnsInternalError(t *testing.T) {
	env := newEnv(t, func(d *Deps) { d.Dashboard = brokenDashboard{} })
	srv := httptest.NewServer(env.h)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/dashboard/metrics", nil)
	require.NoError(t, err)
	req.Header.Set(utils.UserHeader, "u1")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Internal server error", body.Error)
	assert.Equal(t, "Internal server error", body.Message)

	// dev mode shows the cause
	dev := newEnv(t, func(d *Deps) { d.Dashboard = brokenDashboard{}; d.DevMode = true })
	rec := dev.do(t, httptest.NewRequest(http.MethodGet, "/api/dashboard/summary", nil), "u1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode(t, rec)["message"], "summary unavailable")
}

func TestAnalyticsPresetReport(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/analytics/traffic-sources?startDate=2025-08-01&endDate=2025-08-07&limit=5000", nil), "u1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, []any{"sessions", "totalUsers", "bounceRate"}, data["metricHeaders"])
	assert.Len(t, data["rows"], 1)
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, "traffic_sources", meta["type"])
	assert.Equal(t, 1000.0, meta["limit"])
	assert.Equal(t, map[string]any{"startDate": "2025-08-01", "endDate": "2025-08-07"}, meta["dateRange"])

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/analytics/weather?startDate=2025-08-01&endDate=2025-08-07", nil), "u1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/analytics/devices", nil), "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyticsCustomQuery(t *testing.T) {
	env := newEnv(t, nil)
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/analytics/query?dimensions=date&metrics=sessions&metrics=totalUsers&startDate=2025-08-01&endDate=2025-08-02", nil), "u1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	meta := decode(t, rec)["metadata"].(map[string]any)
	assert.Equal(t, "custom", meta["type"])
	assert.Equal(t, []any{"sessions", "totalUsers"}, meta["metrics"])
	assert.Equal(t, 100.0, meta["limit"])

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/analytics/query?metrics=sessions&startDate=2025-08-01&endDate=2025-08-02", nil), "u1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/api/analytics", nil), "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode(t, rec)["endpoints"], "GET /campaigns")
}

func TestAnalyticsSourceFailureIsBadGateway(t *testing.T) {
	down := gaFunc(func(ctx context.Context, q analytics.Query) (*analytics.Report, error) {
		return nil, fmt.Errorf("quota exhausted")
	})
	env := newEnv(t, func(d *Deps) {
		d.Reports = analytics.NewReports(down, d.Log, time.Second)
	})
	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/api/analytics/campaigns?startDate=2025-08-01&endDate=2025-08-07", nil), "u1")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Analytics query failed", body["error"])
	assert.Equal(t, "Internal server error", body["message"])
}
