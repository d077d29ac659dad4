package httpapi

import (
	"encoding/json"
	"math"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/intake-api/internal/chat"
	"github.com/sells-group/intake-api/internal/ratelimit"
)

// handleChat runs one conversational turn as an SSE stream. The guard
// verdict is returned as plain JSON before any stream bytes, so the
// client can branch on status code.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	verdict := s.guard.Check(r.Context(), ratelimit.Identity(r))
	if verdict.Banned {
		writeError(w, http.StatusForbidden, "your access has been suspended")
		return
	}
	if !verdict.Allowed {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":      "too many requests",
			"retryAfter": int(math.Ceil(verdict.RetryAfter.Seconds())),
		})
		return
	}

	var req chat.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sink, err := chat.NewSSEWriter(w)
	if err != nil {
		zap.L().Error("httpapi: sse unsupported", zap.Error(err))
		writeError(w, http.StatusInternalServerError, genericError)
		return
	}
	if err := s.engine.Turn(r.Context(), req, sink); err != nil {
		// The stream is already committed; all we can do is log.
		zap.L().Error("httpapi: chat turn failed", zap.Error(err))
	}
}
