package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/spend-dashboard/internal/apperr"
	"github.com/AngelCh415/spend-dashboard/internal/models"
)

type sourceFunc func(ctx context.Context, q Query) (*Report, error)

func (f sourceFunc) Query(ctx context.Context, q Query) (*Report, error) { return f(ctx, q) }

var augustWeek = models.DateRange{
	Start: time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2025, 8, 7, 0, 0, 0, 0, time.UTC),
}

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPresetReportQuery(t *testing.T) {
	var got Query
	r := NewReports(sourceFunc(func(ctx context.Context, q Query) (*Report, error) {
		got = q
		return &Report{}, nil
	}), quietLog(), time.Second)

	res, err := r.Preset(context.Background(), "campaigns", augustWeek, 5000)
	require.NoError(t, err)
	assert.Equal(t, "campaigns", res.Type)
	assert.Equal(t, MaxReportLimit, got.Limit)
	assert.Equal(t, "sessions", got.OrderBy)
	assert.Equal(t, augustWeek, got.DateRange)
	assert.Contains(t, got.Dimensions, "sessionCampaignName")
	assert.Nil(t, got.Filter)
	assert.NotNil(t, res.Report.Rows)

	res, err = r.Preset(context.Background(), "pages", augustWeek, 0)
	require.NoError(t, err)
	assert.Equal(t, "page_performance", res.Type)
	assert.Equal(t, DefaultReportLimit, got.Limit)
}

func TestEveryPresetHasColumns(t *testing.T) {
	names := PresetNames()
	assert.Equal(t, []string{"campaigns", "conversions", "demographics", "devices", "geographic", "pages", "traffic-sources"}, names)
	for _, n := range names {
		p := presets[n]
		assert.NotEmpty(t, p.Dimensions, n)
		assert.NotEmpty(t, p.Metrics, n)
		assert.Contains(t, p.Metrics, p.OrderBy, n)
	}
}

func TestCustomReport(t *testing.T) {
	var got Query
	r := NewReports(sourceFunc(func(ctx context.Context, q Query) (*Report, error) {
		got = q
		return &Report{MetricHeaders: []string{"sessions"}, Rows: []Row{{MetricValues: []string{"4"}}}, RowCount: 1}, nil
	}), quietLog(), time.Second)

	res, err := r.Custom(context.Background(), ReportRequest{
		Dimensions: []string{"date, country"},
		Metrics:    []string{"sessions"},
		DateRange:  augustWeek,
		Limit:      20,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "country"}, got.Dimensions)
	assert.Equal(t, 20, got.Limit)
	assert.Equal(t, 1, res.Report.RowCount)

	_, err = r.Custom(context.Background(), ReportRequest{Metrics: []string{"sessions"}, DateRange: augustWeek})
	assert.True(t, apperr.Is(err, apperr.CodeValidation))
}

func TestReportErrors(t *testing.T) {
	r := NewReports(sourceFunc(func(ctx context.Context, q Query) (*Report, error) {
		return nil, errors.New("permission denied")
	}), quietLog(), time.Second)

	_, err := r.Preset(context.Background(), "weather", augustWeek, 0)
	assert.True(t, apperr.Is(err, apperr.CodeNotFound))

	_, err = r.Preset(context.Background(), "devices", augustWeek, 0)
	assert.True(t, apperr.Is(err, apperr.CodeSourceUnavailable))
	assert.ErrorContains(t, err, "permission denied")
}

func TestBuildRequestOrdersByMetric(t *testing.T) {
	req := buildRequest(Query{Metrics: []string{"sessions"}, DateRange: augustWeek, OrderBy: "sessions"})
	require.Len(t, req.OrderBys, 1)
	assert.Equal(t, "sessions", req.OrderBys[0].Metric.MetricName)
	assert.True(t, req.OrderBys[0].Desc)

	assert.Empty(t, buildRequest(Query{DateRange: augustWeek}).OrderBys)
}
