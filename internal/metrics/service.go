package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/AngelCh415/spend-dashboard/internal/analytics"
	"github.com/AngelCh415/spend-dashboard/internal/apperr"
	"github.com/AngelCh415/spend-dashboard/internal/models"
	"github.com/AngelCh415/spend-dashboard/internal/store"
)

const (
	spendSource = "spend"

	channelDimension = "defaultChannelGroup"
	reportRowLimit   = 10000

	analyticsWarning = "GA4 data unavailable, using fallback values for sessions, users, bounce rate, and conversions"
	spendWarning     = "Spend data unavailable, totalSpend reported as 0"
)

// Rand is the randomness used for placeholder metrics. *rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

type Options struct {
	Channels         []string
	AnalyticsTimeout time.Duration
	DefaultStart     string
	DefaultEnd       string
	Observer         *Observer
}

// Service reconciles the spend ledger with the analytics service.
type Service struct {
	spend   store.SpendStore
	uploads store.UploadStore
	ga      analytics.Source
	log     *slog.Logger
	opts    Options
	newRand func() Rand
	now     func() time.Time
}

func NewService(spend store.SpendStore, uploads store.UploadStore, ga analytics.Source, log *slog.Logger, opts Options) *Service {
	if opts.AnalyticsTimeout <= 0 {
		opts.AnalyticsTimeout = 10 * time.Second
	}
	return &Service{
		spend:   spend,
		uploads: uploads,
		ga:      ga,
		log:     log,
		opts:    opts,
		newRand: func() Rand { return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) },
		now:     time.Now,
	}
}

type outcome[T any] struct {
	value T
	err   error
}

func (o outcome[T]) ok() bool { return o.err == nil }

// Reconcile queries both sources concurrently, waits for both to settle, and
// merges them. A failing source degrades its fields; it never fails the call.
func (s *Service) Reconcile(ctx context.Context, userID string, r models.DateRange, channels []string) models.DashboardMetrics {
	start := s.now()
	if len(channels) == 0 {
		channels = s.opts.Channels
	}

	var spendRes outcome[[]models.SpendRecord]
	var gaRes outcome[*analytics.Report]
	var g errgroup.Group
	g.Go(func() error {
		spendRes = s.fetchSpend(ctx, userID, r)
		return nil
	})
	g.Go(func() error {
		gaRes = s.fetchAnalytics(ctx, r, channels)
		return nil
	})
	_ = g.Wait()

	rng := s.newRand()
	m := models.DashboardMetrics{DateRange: r, GeneratedAt: s.now()}

	if spendRes.ok() {
		m.TotalSpend = models.SumAmounts(spendRes.value)
		m.DataSource.Spend = models.SourceSuccess
	} else {
		s.log.Warn("spend source failed", slog.String("source", spendSource), slog.String("user", userID), slog.String("err", spendRes.err.Error()))
		m.TotalSpend = decimal.Zero
		m.DataSource.Spend = models.SourceError
		m.Warnings = append(m.Warnings, spendWarning)
	}
	if m.TotalSpend.IsNegative() {
		m.TotalSpend = decimal.Zero
	}

	if gaRes.ok() {
		agg := aggregate(gaRes.value)
		m.TotalSessions = agg.sessions
		m.TotalUsers = agg.users
		m.AvgBounceRate = agg.bounceRate
		m.Conversions = estimateConversions(agg.sessions, rng)
		m.DataSource.Analytics = models.SourceSuccess
	} else {
		s.log.Warn("analytics source failed", slog.String("source", analytics.SourceName), slog.String("user", userID), slog.String("err", gaRes.err.Error()))
		applyAnalyticsFallback(&m, rng)
		msg := gaRes.err.Error()
		m.DataSource.Analytics = models.SourceFallback
		m.DataSource.AnalyticsError = &msg
		m.Warnings = append(m.Warnings, analyticsWarning)
	}
	m.TotalCampaigns = estimateCampaigns(m.TotalSessions)
	applyPlaceholders(&m, rng)

	s.opts.Observer.SourceResult(spendSource, m.DataSource.Spend)
	s.opts.Observer.SourceResult(analytics.SourceName, m.DataSource.Analytics)
	s.opts.Observer.ReconcileDone(s.now().Sub(start))
	return m
}

func (s *Service) fetchSpend(ctx context.Context, userID string, r models.DateRange) outcome[[]models.SpendRecord] {
	recs, err := s.spend.ListSpend(ctx, userID, r)
	if err != nil {
		return outcome[[]models.SpendRecord]{err: apperr.Unavailable(spendSource, err)}
	}
	return outcome[[]models.SpendRecord]{value: recs}
}

// sin reintentos: un fallo va directo al fallback
func (s *Service) fetchAnalytics(ctx context.Context, r models.DateRange, channels []string) outcome[*analytics.Report] {
	ctx, cancel := context.WithTimeout(ctx, s.opts.AnalyticsTimeout)
	defer cancel()

	q := analytics.Query{
		Dimensions: []string{"date", channelDimension},
		Metrics:    []string{"sessions", "totalUsers", "bounceRate"},
		DateRange:  r,
		Filter:     &analytics.InListFilter{Field: channelDimension, Values: channels},
		Limit:      reportRowLimit,
	}
	done := make(chan outcome[*analytics.Report], 1)
	go func() {
		rep, err := s.ga.Query(ctx, q)
		done <- outcome[*analytics.Report]{value: rep, err: err}
	}()

	// deadline vs. caller going away
	interrupted := func() outcome[*analytics.Report] {
		cause := fmt.Errorf("query cancelled: %w", ctx.Err())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			cause = fmt.Errorf("query timed out after %s: %w", s.opts.AnalyticsTimeout, ctx.Err())
		}
		return outcome[*analytics.Report]{err: apperr.Unavailable(analytics.SourceName, cause)}
	}
	select {
	case res := <-done:
		if res.err != nil && ctx.Err() != nil {
			return interrupted()
		}
		if res.err == nil && res.value == nil {
			res.err = errors.New("empty analytics response")
		}
		if res.err != nil && apperr.CodeOf(res.err) != apperr.CodeSourceUnavailable {
			res.err = apperr.Unavailable(analytics.SourceName, res.err)
		}
		return res
	case <-ctx.Done():
		return interrupted()
	}
}

type analyticsTotals struct {
	sessions   int
	users      int
	bounceRate float64
}

// bounce rate ponderado por sesiones
func aggregate(rep *analytics.Report) analyticsTotals {
	idx := rep.MetricIndex()
	var t analyticsTotals
	var weighted float64
	for _, row := range rep.Rows {
		sessions := max0(idx.Int(row.MetricValues, "sessions"))
		t.sessions += sessions
		t.users += max0(idx.Int(row.MetricValues, "totalUsers"))
		weighted += float64(sessions) * clamp01(idx.Float(row.MetricValues, "bounceRate"))
	}
	t.bounceRate = clamp01(safeDivF(weighted, float64(t.sessions)))
	return t
}

// Summary reports all-time totals for the user. Store failures read as zero.
func (s *Service) Summary(ctx context.Context, userID string) models.DashboardSummary {
	uploads, err := s.uploads.CountUploads(ctx, userID)
	if err != nil {
		s.log.Warn("upload count failed", slog.String("user", userID), slog.String("err", err.Error()))
		uploads = 0
	}
	total := decimal.Zero
	recs, err := s.spend.ListSpend(ctx, userID, models.DateRange{})
	if err != nil {
		s.log.Warn("spend total failed", slog.String("user", userID), slog.String("err", err.Error()))
	} else {
		total = models.SumAmounts(recs)
	}
	return models.DashboardSummary{
		TotalUploads: uploads,
		TotalSpend:   total.Round(2).InexactFloat64(),
		Summary: models.SummaryFlags{
			HasUploads:   uploads > 0,
			HasSpendData: total.IsPositive(),
			AccountAge:   "new",
		},
		Timestamp: s.now().UTC().Format(time.RFC3339Nano),
	}
}

func safeDivF(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}
func max0(i int) int {
	if i < 0 {
		return 0
	}
	return i
}
func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
func round2(f float64) float64 { return float64(int64(f*100+0.5)) / 100 }
