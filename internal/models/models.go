package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

// SpendRecord is one campaign/date/amount triple extracted from an uploaded report.
type SpendRecord struct {
	CampaignName string          `json:"campaign_name"`
	Amount       decimal.Decimal `json:"spend_amount"`
	Date         time.Time       `json:"date"`
	Currency     string          `json:"currency"`
	UserID       string          `json:"user_id,omitempty"`
	UploadID     string          `json:"upload_id,omitempty"`
}

type spendRecordJSON SpendRecord

// MarshalJSON writes Date as a plain calendar day ("2025-06-01").
func (r SpendRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		spendRecordJSON
		Date string `json:"date"`
	}{spendRecordJSON(r), formatDay(r.Date)})
}

func (r *SpendRecord) UnmarshalJSON(b []byte) error {
	var aux struct {
		spendRecordJSON
		Date string `json:"date"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*r = SpendRecord(aux.spendRecordJSON)
	if aux.Date == "" {
		return nil
	}
	d, err := time.Parse(DateLayout, aux.Date)
	if err != nil {
		return fmt.Errorf("spend record date %q: %w", aux.Date, err)
	}
	r.Date = d
	return nil
}

func SumAmounts(records []SpendRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

// DateRange is inclusive on both ends. A zero bound is open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	if !r.Start.IsZero() && d.Before(Day(r.Start)) {
		return false
	}
	if !r.End.IsZero() && d.After(Day(r.End)) {
		return false
	}
	return true
}

func (r DateRange) StartString() string { return formatDay(r.Start) }
func (r DateRange) EndString() string   { return formatDay(r.End) }

func formatDay(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Upload struct {
	ID             string          `json:"id"`
	UserID         string          `json:"-"`
	Filename       string          `json:"filename"`
	FileSize       int64           `json:"file_size"`
	Status         string          `json:"processing_status"`
	TotalCampaigns int             `json:"total_campaigns"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	CreatedAt      time.Time       `json:"created_at"`
}

const UploadStatusCompleted = "completed"

// Per-source outcome labels reported in the dashboard metadata.
const (
	SourceSuccess  = "success"
	SourceFallback = "fallback"
	SourceError    = "error"
)

type DataSource struct {
	Analytics      string  `json:"ga4"`
	Spend          string  `json:"spend"`
	AnalyticsError *string `json:"ga4Error"`
}

// AvgBounceRate en [0,1], TotalSpend nunca negativo
type DashboardMetrics struct {
	TotalSessions    int
	TotalUsers       int
	AvgBounceRate    float64
	Conversions      int
	TotalSpend       decimal.Decimal
	TotalCampaigns   int
	TotalImpressions int
	ClickRate        float64
	MockDataFields   []string
	DataSource       DataSource
	Warnings         []string
	DateRange        DateRange
	GeneratedAt      time.Time
}

type DateRangeJSON struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type MetricsMetadata struct {
	DateRange  DateRangeJSON `json:"dateRange"`
	DataSource DataSource    `json:"dataSource"`
	Timestamp  string        `json:"timestamp"`
}

// DashboardResponse is the wire shape of GET /api/dashboard/metrics.
type DashboardResponse struct {
	TotalCampaigns   int             `json:"totalCampaigns"`
	TotalImpressions int             `json:"totalImpressions"`
	ClickRate        float64         `json:"clickRate"`
	TotalSessions    int             `json:"totalSessions"`
	TotalUsers       int             `json:"totalUsers"`
	AvgBounceRate    float64         `json:"avgBounceRate"`
	Conversions      int             `json:"conversions"`
	TotalSpend       float64         `json:"totalSpend"`
	MockDataFields   []string        `json:"mockDataFields"`
	Metadata         MetricsMetadata `json:"metadata"`
	Warnings         []string        `json:"warnings,omitempty"`
}

func (m DashboardMetrics) Response() DashboardResponse {
	mock := m.MockDataFields
	if mock == nil {
		mock = []string{}
	}
	return DashboardResponse{
		TotalCampaigns:   m.TotalCampaigns,
		TotalImpressions: m.TotalImpressions,
		ClickRate:        m.ClickRate,
		TotalSessions:    m.TotalSessions,
		TotalUsers:       m.TotalUsers,
		AvgBounceRate:    m.AvgBounceRate,
		Conversions:      m.Conversions,
		TotalSpend:       m.TotalSpend.InexactFloat64(),
		MockDataFields:   mock,
		Metadata: MetricsMetadata{
			DateRange:  DateRangeJSON{StartDate: m.DateRange.StartString(), EndDate: m.DateRange.EndString()},
			DataSource: m.DataSource,
			Timestamp:  m.GeneratedAt.UTC().Format(time.RFC3339Nano),
		},
		Warnings: m.Warnings,
	}
}

type SummaryFlags struct {
	HasUploads   bool   `json:"hasUploads"`
	HasSpendData bool   `json:"hasSpendData"`
	AccountAge   string `json:"accountAge"`
}

type DashboardSummary struct {
	TotalUploads int          `json:"totalUploads"`
	TotalSpend   float64      `json:"totalSpend"`
	Summary      SummaryFlags `json:"summary"`
	Timestamp    string       `json:"timestamp"`
}
