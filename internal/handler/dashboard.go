package handler

import (
	"net/http"
	"time"

	"sales-realtime-api/internal/service"
	"sales-realtime-api/pkg/apierror"
	"sales-realtime-api/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// DashboardHandler serves the real-time dashboard and leaderboards.
type DashboardHandler struct {
	agg     *service.MetricsAggregator
	ranking *service.RankingBoard
	log     zerolog.Logger
}

// NewDashboardHandler creates a new dashboard handler.
func NewDashboardHandler(agg *service.MetricsAggregator, ranking *service.RankingBoard, log zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{agg: agg, ranking: ranking, log: log}
}

// Realtime handles GET /api/v1/dashboard/realtime?date=2006-01-02
func (h *DashboardHandler) Realtime(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		d, err := h.agg.Today(r.Context())
		if err != nil {
			writeError(w, h.log, err)
			return
		}
		response.OK(w, d)
		return
	}

	day, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		writeError(w, h.log, apierror.BadRequest("date must be YYYY-MM-DD"))
		return
	}
	d, err := h.agg.Dashboard(r.Context(), day)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, d)
}

// Ranking handles GET /api/v1/ranking/{board}?limit=
func (h *DashboardHandler) Ranking(w http.ResponseWriter, r *http.Request) {
	key, ok := service.BoardKey(chi.URLParam(r, "board"))
	if !ok {
		writeError(w, h.log, apierror.NotFound("unknown board"))
		return
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	top, err := h.ranking.TopN(r.Context(), key, int64(limit))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	response.OK(w, top)
}
