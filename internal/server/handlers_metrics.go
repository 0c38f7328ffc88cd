package server

import (
	"net/http"
	"time"

	"casegen/pkg/domain"
)

func (s *Server) handleDashboardSummary(w http.ResponseWriter, _ *http.Request, user domain.User) {
	summary, err := s.app.DashboardSummary(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDashboardCharts(w http.ResponseWriter, _ *http.Request, user domain.User) {
	charts, err := s.app.DashboardCharts(user)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, charts)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request, user domain.User) {
	start, ok := parseDateParam(w, r, "start_date")
	if !ok {
		return
	}
	end, ok := parseDateParam(w, r, "end_date")
	if !ok {
		return
	}
	report, err := s.app.MetricsReport(user, start, end)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func parseDateParam(w http.ResponseWriter, r *http.Request, name string) (*time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "fecha invalida: "+name)
		return nil, false
	}
	return &t, true
}
