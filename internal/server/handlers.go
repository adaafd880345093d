package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/internal/performance"
	"github.com/mousou2003/MouSouTrade-sub000/internal/scheduler"
	"github.com/mousou2003/MouSouTrade-sub000/internal/stream"
	"github.com/mousou2003/MouSouTrade-sub000/pkg/utils"
)

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Status       string                `json:"status"`
	MarketStatus utils.MarketStatus    `json:"market_status"`
	Uptime       string                `json:"uptime"`
	Memory       performance.MemStats  `json:"memory"`
	HeapInUse    string                `json:"heap_in_use"`
	LastRuns     map[string]*time.Time `json:"last_runs"`
	Events       *stream.HubStats      `json:"events,omitempty"`
}

// PerformanceResponse is the body of GET /api/performance.
type PerformanceResponse struct {
	Latest  *models.DailyPerformance  `json:"latest"`
	History []models.DailyPerformance `json:"history"`
	WinRate string                    `json:"win_rate"`
	PnL     string                    `json:"total_pnl"`
}

// ValidationResponse is the body of GET /api/spreads/{ticker}/validate.
type ValidationResponse struct {
	Ticker  string   `json:"ticker"`
	Checked int      `json:"checked"`
	Valid   bool     `json:"valid"`
	Errors  []string `json:"errors"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:       "healthy",
		MarketStatus: utils.GetMarketStatus(),
		Uptime:       time.Since(s.started).Round(time.Second).String(),
		Memory:       performance.MemoryStats(),
		LastRuns:     map[string]*time.Time{},
	}
	response.HeapInUse = performance.FormatBytes(response.Memory.HeapInuse)
	for _, job := range []string{scheduler.ScanJobName, scheduler.AgentJobName} {
		var last *time.Time
		if t := s.store.GetLastRun(job); !t.IsZero() {
			last = &t
		}
		response.LastRuns[job] = last
	}
	if s.events != nil {
		stats := s.events.Stats()
		response.Events = &stats
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handlePerformance returns the latest daily performance and its history.
// GET /api/performance?limit=N
func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	limit := 30
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if parsed, err := strconv.Atoi(limitParam); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	history, err := s.store.PerformanceHistory(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get performance history")
		s.writeError(w, http.StatusInternalServerError, "Failed to get performance")
		return
	}

	response := PerformanceResponse{History: history}
	if response.History == nil {
		response.History = []models.DailyPerformance{}
	}
	if len(history) > 0 {
		latest := history[0]
		response.Latest = &latest
		response.WinRate = utils.FormatRatio(latest.WinRate)
		response.PnL = utils.FormatPnL(latest.TotalPnL)
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleSpreads returns the spreads stored for an underlying.
// GET /api/spreads/{ticker}?matched=true
func (s *Server) handleSpreads(w http.ResponseWriter, r *http.Request) {
	ticker, ok := s.tickerParam(w, r)
	if !ok {
		return
	}

	spreads, err := s.store.LoadByTicker(r.Context(), ticker)
	if err != nil {
		if errors.Is(err, apperrors.ErrNoDataFound) {
			s.writeJSON(w, http.StatusOK, []*models.Spread{})
			return
		}
		s.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to load spreads")
		s.writeError(w, http.StatusInternalServerError, "Failed to load spreads")
		return
	}

	if r.URL.Query().Get("matched") == "true" {
		spreads = matchedOnly(spreads)
	}
	s.writeJSON(w, http.StatusOK, spreads)
}

// handleValidate audits the matched spreads of an underlying.
// GET /api/spreads/{ticker}/validate
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	ticker, ok := s.tickerParam(w, r)
	if !ok {
		return
	}

	spreads, err := s.store.LoadByTicker(r.Context(), ticker)
	if err != nil && !errors.Is(err, apperrors.ErrNoDataFound) {
		s.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to load spreads")
		s.writeError(w, http.StatusInternalServerError, "Failed to load spreads")
		return
	}

	matched := matchedOnly(spreads)
	errs := s.validator.ValidateSpreads(matched)
	s.writeJSON(w, http.StatusOK, ValidationResponse{
		Ticker:  ticker,
		Checked: len(matched),
		Valid:   len(errs) == 0,
		Errors:  errs,
	})
}

func (s *Server) tickerParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	ticker := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "ticker")))
	if ticker == "" || strings.ContainsAny(ticker, " /:") {
		s.writeError(w, http.StatusBadRequest, "Invalid ticker")
		return "", false
	}
	return ticker, true
}

func matchedOnly(spreads []*models.Spread) []*models.Spread {
	out := make([]*models.Spread, 0, len(spreads))
	for _, s := range spreads {
		if s.Matched {
			out = append(out, s)
		}
	}
	return out
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
