package app

import (
	"math"
	"time"

	"casegen/pkg/domain"
	"casegen/pkg/store"
)

// Caps applied in order; the second increment can pull accuracy back
// below the first cap.
const (
	accuracyCapAfterResponse = 98
	accuracyCapAfterBonus    = 95
)

// recordMessage folds one chat message into the (user, project, day)
// metric row. AI responses credit estimated time saved twice and nudge the
// accuracy estimate twice, matching the historical accounting the
// dashboards were built against.
func (a *App) recordMessage(user domain.User, projectID string, isAI bool, responseTimeMs int) error {
	now := a.now()
	unlock := a.metricLocks.lock(metricKey(user.ID, projectID, now))
	defer unlock()

	_, err := a.store.UpdateDailyMetric(user.ID, projectID, now, func(m *domain.UsageMetric) {
		m.TotalMessages++
		if !isAI {
			return
		}
		m.TotalAIResponses++
		saved := responseTimeMs / 1000
		if saved < 1 {
			saved = 1
		}
		m.TimeSavedMinutes += saved
		m.Accuracy = math.Min(m.Accuracy+0.3, accuracyCapAfterResponse)
		m.TimeSavedMinutes += 5
		m.Accuracy = math.Min(m.Accuracy+0.5, accuracyCapAfterBonus)
	})
	return err
}

// recordChatCreated counts a new session in the day's row.
func (a *App) recordChatCreated(user domain.User, projectID string) error {
	now := a.now()
	unlock := a.metricLocks.lock(metricKey(user.ID, projectID, now))
	defer unlock()

	_, err := a.store.UpdateDailyMetric(user.ID, projectID, now, func(m *domain.UsageMetric) {
		m.TotalChats++
	})
	return err
}

func metricKey(userID, projectID string, day time.Time) string {
	return userID + "|" + projectID + "|" + store.DayKey(day)
}

// DashboardSummary returns lifetime KPIs for the dashboard header.
func (a *App) DashboardSummary(user domain.User) (store.DashboardSummary, error) {
	return a.store.DashboardSummary(user.ID)
}

// DashboardCharts returns the unbounded daily and per-project series.
func (a *App) DashboardCharts(user domain.User) (store.MetricsReport, error) {
	return a.store.MetricsReport(user.ID, nil, nil)
}

// MetricsReport returns KPIs and series bounded by an optional date range.
func (a *App) MetricsReport(user domain.User, start, end *time.Time) (store.MetricsReport, error) {
	return a.store.MetricsReport(user.ID, start, end)
}
