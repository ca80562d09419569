package http

import (
	"fmt"
	"net/http"
	"strings"

	"mython/internal/core"
)

type monthOption struct {
	Index core.MonthIndex `json:"index"`
	Name  string          `json:"name"`
	Short string          `json:"short"`
}

type monthsResponse struct {
	Current core.MonthIndex `json:"current"`
	Months  []monthOption   `json:"months"`
}

// handleDashboard serves the full derivation bundle for ?month=, which
// defaults to the current month.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	m := core.MonthOf(now)
	if v := strings.TrimSpace(r.URL.Query().Get("month")); v != "" {
		parsed, err := core.ParseMonth(v)
		if err != nil {
			badRequest(w, err)
			return
		}
		m = parsed
	}

	key := fmt.Sprintf("%d/%s", m, now.Format(core.DateLayout))
	if d, ok := s.dashboards.Get(key); ok {
		w.Header().Set("X-Cache", "HIT")
		writeJSON(w, http.StatusOK, d)
		return
	}

	gen := s.dashboardGen.Load()
	d := s.ledger.Dashboard(m, now)
	if s.built != nil {
		s.built()
	}
	s.dashboards.Set(key, d)
	// A mutation that landed after the snapshot may have purged before Set.
	if s.dashboardGen.Load() != gen {
		s.dashboards.Delete(key)
	}
	w.Header().Set("X-Cache", "MISS")
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleMonths(w http.ResponseWriter, r *http.Request) {
	resp := monthsResponse{Current: core.MonthOf(s.now())}
	for _, m := range core.Months() {
		resp.Months = append(resp.Months, monthOption{Index: m, Name: m.Name(), Short: m.Short()})
	}
	writeJSON(w, http.StatusOK, resp)
}
