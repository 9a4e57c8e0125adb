package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/AngelCh415/spend-dashboard/internal/analytics"
	"github.com/AngelCh415/spend-dashboard/internal/apperr"
	"github.com/AngelCh415/spend-dashboard/internal/ingest"
	"github.com/AngelCh415/spend-dashboard/internal/metrics"
	"github.com/AngelCh415/spend-dashboard/internal/models"
	"github.com/AngelCh415/spend-dashboard/internal/utils"
)

// multipart framing allowance on top of the file limit
const formOverhead = 1 << 20

type Dashboard interface {
	ParseRequest(v url.Values) (metrics.Request, error)
	Reconcile(ctx context.Context, userID string, r models.DateRange, channels []string) models.DashboardMetrics
	Summary(ctx context.Context, userID string) models.DashboardSummary
}

type Uploads interface {
	Upload(ctx context.Context, userID string, fh ingest.FileHeader, data []byte) (ingest.UploadResult, error)
	History(ctx context.Context, userID string, limit, offset int) ([]models.Upload, error)
	Detail(ctx context.Context, userID, uploadID string) (ingest.UploadDetail, error)
}

type Reports interface {
	Custom(ctx context.Context, req analytics.ReportRequest) (analytics.ReportResult, error)
	Preset(ctx context.Context, slug string, r models.DateRange, limit int) (analytics.ReportResult, error)
}

type Deps struct {
	Log       *slog.Logger
	Dashboard Dashboard
	Uploads   Uploads
	// Reports is optional; without it the /api/analytics routes are not mounted.
	Reports  Reports
	Gatherer prometheus.Gatherer
	// Ready reports whether dependencies (the store) are usable; nil means always ready.
	Ready          func(ctx context.Context) error
	CORSOrigins    []string
	DevMode        bool
	DevUserID      string
	MaxUploadBytes int64
}

type api struct{ Deps }

func NewRouter(d Deps) http.Handler {
	a := &api{d}
	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(d.Log))
	mux.Use(utils.Recover(d.Log, a.recovered))

	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", a.ready)
	mux.Get("/api/health", a.ready)
	if d.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.Route("/api", func(r chi.Router) {
		fallback := ""
		if d.DevMode {
			fallback = d.DevUserID
		}
		r.Use(utils.UserID(fallback, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Missing user identity"})
		}))

		r.Get("/dashboard/metrics", a.dashboardMetrics)
		r.Get("/dashboard/summary", a.dashboardSummary)
		r.Post("/upload/pdf", a.uploadPDF)
		r.Get("/upload/history", a.uploadHistory)
		r.Get("/upload/{id}", a.uploadDetail)

		if d.Reports != nil {
			r.Get("/analytics", a.analyticsIndex)
			r.Get("/analytics/query", a.analyticsQuery)
			r.Get("/analytics/{report}", a.analyticsPreset)
		}
	})

	c := cors.New(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", utils.UserHeader},
		AllowCredentials: true,
	})
	return c.Handler(mux)
}

func (a *api) ready(w http.ResponseWriter, r *http.Request) {
	if a.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (a *api) dashboardMetrics(w http.ResponseWriter, r *http.Request) {
	req, err := a.Dashboard.ParseRequest(r.URL.Query())
	if err != nil {
		a.writeError(w, r, err, "Failed to fetch dashboard metrics")
		return
	}
	m := a.Dashboard.Reconcile(r.Context(), utils.UID(r.Context()), req.Range, req.Channels)
	writeJSON(w, http.StatusOK, m.Response())
}

func (a *api) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Dashboard.Summary(r.Context(), utils.UID(r.Context())))
}

type uploadResponse struct {
	Success bool `json:"success"`
	ingest.UploadResult
}

func (a *api) uploadPDF(w http.ResponseWriter, r *http.Request) {
	const title = "Failed to process PDF upload"
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(a.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			e := apperr.Validationf("File exceeds the %d MB limit", a.MaxUploadBytes>>20)
			e.TooLarge = true
			a.writeError(w, r, e, title)
			return
		}
		a.writeError(w, r, apperr.Validation("No file uploaded"), title)
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, hdr, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, r, apperr.Validation("No file uploaded"), title)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, a.MaxUploadBytes+1))
	if err != nil {
		a.writeError(w, r, apperr.Internal("read upload", err), title)
		return
	}

	fh := ingest.FileHeader{Name: hdr.Filename, Size: hdr.Size, ContentType: hdr.Header.Get("Content-Type")}
	res, err := a.Uploads.Upload(r.Context(), utils.UID(r.Context()), fh, data)
	if err != nil {
		a.writeError(w, r, err, title)
		return
	}
	writeJSON(w, http.StatusOK, uploadResponse{Success: true, UploadResult: res})
}

func (a *api) uploadHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	ups, err := a.Uploads.History(r.Context(), utils.UID(r.Context()), limit, offset)
	if err != nil {
		a.writeError(w, r, err, "Failed to fetch upload history")
		return
	}
	if ups == nil {
		ups = []models.Upload{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "uploads": ups, "count": len(ups)})
}

func (a *api) uploadDetail(w http.ResponseWriter, r *http.Request) {
	d, err := a.Uploads.Detail(r.Context(), utils.UID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err, "Failed to fetch upload details")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "upload": d.Upload, "campaigns": d.Campaigns})
}

func (a *api) analyticsIndex(w http.ResponseWriter, r *http.Request) {
	eps := map[string]string{"GET /query": "Custom analytics query (dimensions, metrics, startDate, endDate, limit)"}
	for _, n := range analytics.PresetNames() {
		eps["GET /"+n] = "Preset report"
	}
	writeJSON(w, http.StatusOK, map[string]any{"endpoints": eps, "limit": map[string]int{"default": analytics.DefaultReportLimit, "max": analytics.MaxReportLimit}})
}

func (a *api) analyticsQuery(w http.ResponseWriter, r *http.Request) {
	const title = "Analytics query failed"
	q := r.URL.Query()
	dr, err := metrics.ParseDateRange(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		a.writeError(w, r, err, title)
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	res, err := a.Reports.Custom(r.Context(), analytics.ReportRequest{
		Dimensions: q["dimensions"],
		Metrics:    q["metrics"],
		DateRange:  dr,
		Limit:      limit,
	})
	if err != nil {
		a.writeError(w, r, err, title)
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(res))
}

func (a *api) analyticsPreset(w http.ResponseWriter, r *http.Request) {
	const title = "Analytics query failed"
	q := r.URL.Query()
	dr, err := metrics.ParseDateRange(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		a.writeError(w, r, err, title)
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	res, err := a.Reports.Preset(r.Context(), chi.URLParam(r, "report"), dr, limit)
	if err != nil {
		a.writeError(w, r, err, title)
		return
	}
	writeJSON(w, http.StatusOK, newReportResponse(res))
}

type reportMetadata struct {
	Type       string               `json:"type"`
	Dimensions []string             `json:"dimensions"`
	Metrics    []string             `json:"metrics"`
	DateRange  models.DateRangeJSON `json:"dateRange"`
	Limit      int                  `json:"limit"`
	Timestamp  string               `json:"timestamp"`
}

type reportResponse struct {
	Success  bool              `json:"success"`
	Data     *analytics.Report `json:"data"`
	Metadata reportMetadata    `json:"metadata"`
}

func newReportResponse(res analytics.ReportResult) reportResponse {
	return reportResponse{
		Success: true,
		Data:    res.Report,
		Metadata: reportMetadata{
			Type:       res.Type,
			Dimensions: res.Dimensions,
			Metrics:    res.Metrics,
			DateRange:  models.DateRangeJSON{StartDate: res.DateRange.StartString(), EndDate: res.DateRange.EndString()},
			Limit:      res.Limit,
			Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		},
	}
}

func (a *api) recovered(w http.ResponseWriter, r *http.Request, v any) {
	a.writeError(w, r, apperr.Internal("unexpected failure", fmt.Errorf("panic: %v", v)), "Internal server error")
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError maps the error taxonomy to a status. Raw causes are only shown in dev mode.
func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error, title string) {
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		status := http.StatusBadRequest
		if apperr.IsTooLarge(err) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorBody{Error: "Invalid request", Message: apperr.Message(err)})
		return
	case apperr.CodeNotFound:
		writeJSON(w, http.StatusNotFound, errorBody{Error: apperr.Message(err)})
		return
	}

	status := http.StatusInternalServerError
	if apperr.Is(err, apperr.CodeSourceUnavailable) {
		status = http.StatusBadGateway
	}
	a.Log.Error(title, slog.String("rid", utils.RID(r.Context())), slog.String("err", err.Error()))
	msg := "Internal server error"
	if a.DevMode {
		msg = err.Error()
	}
	writeJSON(w, status, errorBody{Error: title, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	enc.Encode(v)
}
