package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/AngelCh415/spend-dashboard/internal/apperr"
	"github.com/AngelCh415/spend-dashboard/internal/models"
)

const (
	DefaultReportLimit = 100
	MaxReportLimit     = 1000
)

type Preset struct {
	Name       string
	Dimensions []string
	Metrics    []string
	OrderBy    string
}

var presets = map[string]Preset{
	"traffic-sources": {
		Name:       "traffic_sources",
		Dimensions: []string{"sessionSource", "sessionMedium", "sessionCampaignName"},
		Metrics:    []string{"sessions", "totalUsers", "bounceRate", "averageSessionDuration"},
		OrderBy:    "sessions",
	},
	"demographics": {
		Name:       "demographics",
		Dimensions: []string{"country", "city", "userAgeBracket", "userGender"},
		Metrics:    []string{"totalUsers", "sessions", "screenPageViews"},
		OrderBy:    "totalUsers",
	},
	"pages": {
		Name:       "page_performance",
		Dimensions: []string{"pagePath", "pageTitle"},
		Metrics:    []string{"screenPageViews", "averageSessionDuration", "bounceRate", "exitRate"},
		OrderBy:    "screenPageViews",
	},
	"conversions": {
		Name:       "conversions",
		Dimensions: []string{"eventName", "sessionSource", "sessionMedium"},
		Metrics:    []string{"eventCount", "conversions", "totalRevenue"},
		OrderBy:    "conversions",
	},
	"campaigns": {
		Name:       "campaigns",
		Dimensions: []string{"sessionCampaignName", "sessionCampaignId", "sessionSource", "sessionMedium"},
		Metrics:    []string{"sessions", "totalUsers", "newUsers", "bounceRate", "screenPageViews", "conversions"},
		OrderBy:    "sessions",
	},
	"devices": {
		Name:       "devices",
		Dimensions: []string{"deviceCategory", "operatingSystem", "browser"},
		Metrics:    []string{"sessions", "totalUsers", "screenPageViews", "bounceRate", "averageSessionDuration"},
		OrderBy:    "sessions",
	},
	"geographic": {
		Name:       "geographic",
		Dimensions: []string{"country", "region", "city"},
		Metrics:    []string{"sessions", "totalUsers", "newUsers", "screenPageViews", "bounceRate"},
		OrderBy:    "sessions",
	},
}

// PresetNames lists the report slugs in stable order.
func PresetNames() []string {
	out := make([]string, 0, len(presets))
	for k := range presets {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type ReportRequest struct {
	Dimensions []string
	Metrics    []string
	DateRange  models.DateRange
	Limit      int
}

type ReportResult struct {
	Type       string
	Dimensions []string
	Metrics    []string
	DateRange  models.DateRange
	Limit      int
	Report     *Report
}

// Reports runs ad-hoc and preset reports straight through to the source.
// Unlike the dashboard there is no fallback: a source failure is the caller's error.
type Reports struct {
	src     Source
	log     *slog.Logger
	timeout time.Duration
}

func NewReports(src Source, log *slog.Logger, timeout time.Duration) *Reports {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reports{src: src, log: log, timeout: timeout}
}

func (r *Reports) Custom(ctx context.Context, req ReportRequest) (ReportResult, error) {
	dims := cleanNames(req.Dimensions)
	mets := cleanNames(req.Metrics)
	if len(dims) == 0 || len(mets) == 0 {
		return ReportResult{}, apperr.Validation("dimensions and metrics are required")
	}
	return r.run(ctx, "custom", Query{
		Dimensions: dims,
		Metrics:    mets,
		DateRange:  req.DateRange,
		Limit:      ClampLimit(req.Limit),
	})
}

func (r *Reports) Preset(ctx context.Context, slug string, dr models.DateRange, limit int) (ReportResult, error) {
	p, ok := presets[slug]
	if !ok {
		return ReportResult{}, apperr.NotFound(fmt.Sprintf("Unknown report %q", slug))
	}
	return r.run(ctx, p.Name, Query{
		Dimensions: p.Dimensions,
		Metrics:    p.Metrics,
		DateRange:  dr,
		Limit:      ClampLimit(limit),
		OrderBy:    p.OrderBy,
	})
}

func (r *Reports) run(ctx context.Context, kind string, q Query) (ReportResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rep, err := r.src.Query(ctx, q)
	if err != nil {
		r.log.Warn("analytics report failed", slog.String("type", kind), slog.String("err", err.Error()))
		if !apperr.Is(err, apperr.CodeSourceUnavailable) {
			err = apperr.Unavailable(SourceName, err)
		}
		return ReportResult{}, err
	}
	if rep == nil {
		rep = &Report{}
	}
	if rep.Rows == nil {
		rep.Rows = []Row{}
	}
	return ReportResult{
		Type:       kind,
		Dimensions: q.Dimensions,
		Metrics:    q.Metrics,
		DateRange:  q.DateRange,
		Limit:      q.Limit,
		Report:     rep,
	}, nil
}

// ClampLimit defaults to 100 and caps at 1000.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultReportLimit
	case n > MaxReportLimit:
		return MaxReportLimit
	}
	return n
}

func cleanNames(in []string) []string {
	var out []string
	for _, v := range in {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
