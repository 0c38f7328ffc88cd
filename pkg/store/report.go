package store

import (
	"sort"

	"casegen/pkg/domain"
)

// Aggregation over metric rows is done in Go so the GORM and in-memory
// stores produce identical payloads.

func summaryFromMetrics(metrics []domain.UsageMetric, totalProjects, totalChats int, last *domain.ChatMessage) DashboardSummary {
	summary := DashboardSummary{
		TotalProjects: totalProjects,
		TotalChats:    totalChats,
		LastActivity:  last,
	}
	var accSum float64
	var accCount int
	for _, m := range metrics {
		summary.TotalCases += m.TotalAIResponses
		summary.TimeSavedMinutes += m.TimeSavedMinutes
		if m.Accuracy > 0 {
			accSum += m.Accuracy
			accCount++
		}
	}
	if accCount > 0 {
		summary.AccuracyAvg = accSum / float64(accCount)
	}
	return summary
}

func reportFromMetrics(metrics []domain.UsageMetric, projectNames map[string]string, totalChats int) MetricsReport {
	report := MetricsReport{
		TotalChats: totalChats,
		Daily:      []DailyPoint{},
		Projects:   []ProjectPoint{},
	}

	daily := map[string]*DailyPoint{}
	type projectAgg struct {
		point    ProjectPoint
		accSum   float64
		accCount int
	}
	projects := map[string]*projectAgg{}
	seenProjects := map[string]bool{}

	var accSum float64
	var accCount int
	for _, m := range metrics {
		report.TotalCases += m.TotalAIResponses
		report.TimeSavedMinutes += m.TimeSavedMinutes
		if m.Accuracy > 0 {
			accSum += m.Accuracy
			accCount++
		}

		key := DayKey(m.Day)
		point, ok := daily[key]
		if !ok {
			point = &DailyPoint{Day: key}
			daily[key] = point
		}
		point.Cases += m.TotalAIResponses
		point.TimeSavedMinutes += m.TimeSavedMinutes

		name := "Chats"
		if m.ProjectID != "" {
			seenProjects[m.ProjectID] = true
			if n, ok := projectNames[m.ProjectID]; ok {
				name = n
			} else {
				name = "Proyecto eliminado"
			}
		}
		agg, ok := projects[name]
		if !ok {
			agg = &projectAgg{point: ProjectPoint{Name: name}}
			projects[name] = agg
		}
		agg.point.Cases += m.TotalAIResponses
		agg.point.TimeSavedMinutes += m.TimeSavedMinutes
		if m.Accuracy > 0 {
			agg.accSum += m.Accuracy
			agg.accCount++
		}
	}
	if accCount > 0 {
		report.AccuracyAvg = accSum / float64(accCount)
	}
	report.TotalProjects = len(seenProjects)

	for _, point := range daily {
		report.Daily = append(report.Daily, *point)
	}
	sort.Slice(report.Daily, func(i, j int) bool { return report.Daily[i].Day < report.Daily[j].Day })

	for _, agg := range projects {
		point := agg.point
		if agg.accCount > 0 {
			point.AccuracyAvg = agg.accSum / float64(agg.accCount)
		}
		report.Projects = append(report.Projects, point)
	}
	sort.Slice(report.Projects, func(i, j int) bool {
		if report.Projects[i].Cases != report.Projects[j].Cases {
			return report.Projects[i].Cases > report.Projects[j].Cases
		}
		return report.Projects[i].Name < report.Projects[j].Name
	})

	return report
}
