package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mdl-rewrite/internal/domain"
	"mdl-rewrite/internal/service/refresh"
)

type refreshRunResponse struct {
	ID           int64      `json:"id"`
	Metric       string     `json:"metric"`
	Table        string     `json:"table"`
	Trigger      string     `json:"trigger"`
	Status       string     `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	RowCount     *int64     `json:"row_count,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

type cachedMetricResponse struct {
	Metric      string              `json:"metric"`
	Table       string              `json:"table"`
	RefreshTime string              `json:"refresh_time,omitempty"`
	NextRefresh *time.Time          `json:"next_refresh,omitempty"`
	LastRun     *refreshRunResponse `json:"last_run,omitempty"`
}

var errRefreshDisabled = errors.New("metric refresh is not enabled on this server")

func refreshRunToAPI(run domain.RefreshRun) refreshRunResponse {
	return refreshRunResponse{
		ID:           run.ID,
		Metric:       run.Metric,
		Table:        run.Table,
		Trigger:      run.Trigger,
		Status:       run.Status,
		ErrorMessage: run.ErrorMessage,
		RowCount:     run.RowCount,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
	}
}

// latestRuns returns the latest refresh run of every metric, or nothing when
// refresh is disabled.
func (s *Server) latestRuns(ctx context.Context) ([]domain.RefreshRun, error) {
	if s.refresher == nil {
		return nil, nil
	}
	return s.refresher.Latest(ctx)
}

func (s *Server) handleListRefreshes(w http.ResponseWriter, r *http.Request) {
	runs, err := s.latestRuns(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	last := make(map[string]domain.RefreshRun, len(runs))
	for _, run := range runs {
		last[run.Metric] = run
	}

	cat := s.holder.Current()
	now := time.Now()
	out := []cachedMetricResponse{}
	for _, mt := range cat.ListMetrics() {
		if !mt.Cached {
			continue
		}
		item := cachedMetricResponse{
			Metric:      mt.Name,
			Table:       refresh.TableName(mt.Name),
			RefreshTime: mt.RefreshTime,
		}
		if next, ok := cat.NextRefresh(mt.Name, now); ok {
			item.NextRefresh = &next
		}
		if run, ok := last[mt.Name]; ok {
			apiRun := refreshRunToAPI(run)
			item.LastRun = &apiRun
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

// handleRefresh refreshes a metric synchronously. A run that started but
// failed is reported with status FAILED rather than as an HTTP error.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		s.writeErrorStatus(w, r, http.StatusServiceUnavailable, errRefreshDisabled)
		return
	}
	run, err := s.refresher.RefreshNow(r.Context(), chi.URLParam(r, "metric"), domain.TriggerManual)
	if err != nil && run == nil {
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		s.requestLogger(r).Warn("manual refresh failed", "metric", run.Metric, "error", err)
	}
	writeJSON(w, http.StatusOK, refreshRunToAPI(*run))
}

func (s *Server) handleRefreshHistory(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		writeJSON(w, http.StatusOK, map[string]any{"data": []refreshRunResponse{}})
		return
	}
	metric := chi.URLParam(r, "metric")
	mt, ok := s.holder.Current().Metric(metric)
	if !ok {
		s.writeError(w, r, domain.ErrNotFound("metric %q not found", metric))
		return
	}
	runs, err := s.refresher.History(r.Context(), mt.Name, limitParam(r, 20))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]refreshRunResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, refreshRunToAPI(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}
