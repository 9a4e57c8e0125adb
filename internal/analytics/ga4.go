package analytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	analyticsdata "google.golang.org/api/analyticsdata/v1beta"
	"google.golang.org/api/option"

	"github.com/AngelCh415/spend-dashboard/internal/apperr"
	"github.com/AngelCh415/spend-dashboard/internal/models"
)

const SourceName = "analytics"

type GA4Config struct {
	PropertyID      string
	CredentialsFile string
	// Endpoint overrides the API base URL and disables Google auth; used for
	// emulators and tests.
	Endpoint string
	Timeout  time.Duration
}

// GA4Adapter runs reports against the Google Analytics Data API.
type GA4Adapter struct {
	svc      *analyticsdata.Service
	property string
}

func NewGA4Adapter(ctx context.Context, cfg GA4Config) (*GA4Adapter, error) {
	if cfg.PropertyID == "" {
		return nil, errors.New("analytics property id is required (GA_PROPERTY_ID)")
	}
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		if !strings.HasSuffix(endpoint, "/") {
			endpoint += "/"
		}
		opts = append(opts,
			option.WithEndpoint(endpoint),
			option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			option.WithoutAuthentication(),
		)
	} else {
		opts = append(opts, option.WithScopes(analyticsdata.AnalyticsReadonlyScope))
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
	}
	svc, err := analyticsdata.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create analytics data client: %w", err)
	}
	return &GA4Adapter{svc: svc, property: "properties/" + cfg.PropertyID}, nil
}

func (a *GA4Adapter) Query(ctx context.Context, q Query) (*Report, error) {
	resp, err := a.svc.Properties.RunReport(a.property, buildRequest(q)).Context(ctx).Do()
	if err != nil {
		return nil, apperr.Unavailable(SourceName, fmt.Errorf("run report: %w", err))
	}
	return fromResponse(resp), nil
}

func buildRequest(q Query) *analyticsdata.RunReportRequest {
	req := &analyticsdata.RunReportRequest{
		DateRanges: []*analyticsdata.DateRange{{
			StartDate: q.DateRange.Start.Format(models.DateLayout),
			EndDate:   q.DateRange.End.Format(models.DateLayout),
		}},
		Limit: int64(q.Limit),
	}
	for _, d := range q.Dimensions {
		req.Dimensions = append(req.Dimensions, &analyticsdata.Dimension{Name: d})
	}
	for _, m := range q.Metrics {
		req.Metrics = append(req.Metrics, &analyticsdata.Metric{Name: m})
	}
	if q.Filter != nil {
		req.DimensionFilter = &analyticsdata.FilterExpression{
			Filter: &analyticsdata.Filter{
				FieldName:    q.Filter.Field,
				InListFilter: &analyticsdata.InListFilter{Values: q.Filter.Values},
			},
		}
	}
	if q.OrderBy != "" {
		req.OrderBys = []*analyticsdata.OrderBy{{
			Metric: &analyticsdata.MetricOrderBy{MetricName: q.OrderBy},
			Desc:   true,
		}}
	}
	return req
}

func fromResponse(resp *analyticsdata.RunReportResponse) *Report {
	rep := &Report{RowCount: int(resp.RowCount)}
	for _, h := range resp.DimensionHeaders {
		rep.DimensionHeaders = append(rep.DimensionHeaders, h.Name)
	}
	for _, h := range resp.MetricHeaders {
		rep.MetricHeaders = append(rep.MetricHeaders, h.Name)
	}
	for _, r := range resp.Rows {
		row := Row{
			DimensionValues: make([]string, 0, len(r.DimensionValues)),
			MetricValues:    make([]string, 0, len(r.MetricValues)),
		}
		for _, v := range r.DimensionValues {
			row.DimensionValues = append(row.DimensionValues, v.Value)
		}
		for _, v := range r.MetricValues {
			row.MetricValues = append(row.MetricValues, v.Value)
		}
		rep.Rows = append(rep.Rows, row)
	}
	return rep
}
