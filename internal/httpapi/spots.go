package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-api/internal/model"
	"github.com/sells-group/intake-api/internal/store"
)

func (s *Server) handleGetDailySpots(w http.ResponseWriter, r *http.Request) {
	s.getSpots(w, r, model.DailyPeriod(time.Now()), s.cfg.DailyTotal, s.store.GetDailySpots)
}

func (s *Server) handleDecrementDailySpots(w http.ResponseWriter, r *http.Request) {
	s.decrementSpots(w, r, model.DailyPeriod(time.Now()), s.store.DecrementDailySpots)
}

func (s *Server) handleGetMonthlySpots(w http.ResponseWriter, r *http.Request) {
	s.getSpots(w, r, model.MonthlyPeriod(time.Now()), s.cfg.MonthlyTotal, s.store.GetMonthlySpots)
}

func (s *Server) handleDecrementMonthlySpots(w http.ResponseWriter, r *http.Request) {
	s.decrementSpots(w, r, model.MonthlyPeriod(time.Now()), s.store.DecrementMonthlySpots)
}

func (s *Server) getSpots(w http.ResponseWriter, r *http.Request, period string, total int, get func(context.Context, string, int) (*model.SpotCount, error)) {
	count, err := get(r.Context(), period, total)
	if err != nil {
		zap.L().Error("httpapi: spots read failed", zap.String("period", period), zap.Error(err))
		writeError(w, http.StatusInternalServerError, genericError)
		return
	}
	writeJSON(w, http.StatusOK, spotsResponse(count))
}

func (s *Server) decrementSpots(w http.ResponseWriter, r *http.Request, period string, dec func(context.Context, string) (*model.SpotCount, error)) {
	count, err := dec(r.Context(), period)
	if err != nil {
		switch {
		case eris.Is(err, store.ErrExhausted):
			writeError(w, http.StatusBadRequest, "no spots remaining")
		case eris.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "no counter for the current period")
		default:
			zap.L().Error("httpapi: spots decrement failed", zap.String("period", period), zap.Error(err))
			writeError(w, http.StatusInternalServerError, genericError)
		}
		return
	}
	writeJSON(w, http.StatusOK, spotsResponse(count))
}

func spotsResponse(count *model.SpotCount) map[string]any {
	return map[string]any{
		"period":    count.Period,
		"remaining": count.Remaining,
		"total":     count.Total,
	}
}
