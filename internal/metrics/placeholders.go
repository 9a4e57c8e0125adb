package metrics

import "github.com/AngelCh415/spend-dashboard/internal/models"

// Placeholder metrics stand in for data with no real source yet (conversion
// tracking, ad-platform impressions). Every field filled here is listed in
// MockDataFields so a real source can replace it without changing the response.

var alwaysMock = []string{"totalImpressions", "clickRate", "conversions", "totalCampaigns"}

var analyticsFallbackFields = []string{"totalSessions", "totalUsers", "avgBounceRate"}

func estimateConversions(sessions int, rng Rand) int {
	rate := 0.02 + rng.Float64()*0.02
	return int(float64(sessions) * rate)
}

// ~1 campaña por cada 100 sesiones
func estimateCampaigns(sessions int) int {
	if sessions <= 0 {
		return 0
	}
	return max(1, sessions/100)
}

func applyAnalyticsFallback(m *models.DashboardMetrics, rng Rand) {
	m.TotalSessions = 500 + rng.IntN(2000)
	m.TotalUsers = 300 + rng.IntN(1500)
	m.AvgBounceRate = 0.30 + rng.Float64()*0.30
	m.Conversions = 20 + rng.IntN(50)
	m.MockDataFields = append(m.MockDataFields, analyticsFallbackFields...)
}

func applyPlaceholders(m *models.DashboardMetrics, rng Rand) {
	m.TotalImpressions = 10000 + rng.IntN(40000)
	m.ClickRate = round2(2 + rng.Float64()*3)
	m.MockDataFields = append(append([]string(nil), alwaysMock...), m.MockDataFields...)
}
