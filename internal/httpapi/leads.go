package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-api/internal/model"
	"github.com/sells-group/intake-api/internal/store"
)

type createLeadRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Idea     string `json:"idea"`
	Stage    string `json:"stage"`
	Timeline string `json:"timeline"`
	Budget   string `json:"budget"`
}

// handleCreateLead persists a static-form lead. Unlike the chat funnel,
// this path stores unqualified leads too; the verdict only changes the
// response message.
func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	var req createLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	missing := missingFields(map[string]string{
		"name": req.Name, "email": req.Email, "idea": req.Idea,
		"stage": req.Stage, "timeline": req.Timeline, "budget": req.Budget,
	})
	if len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "missing required fields: "+strings.Join(missing, ", "))
		return
	}
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	email := model.NormalizeEmail(req.Email)
	if exists, err := s.store.LeadEmailExists(r.Context(), email); err != nil {
		zap.L().Error("httpapi: email lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, genericError)
		return
	} else if exists {
		writeError(w, http.StatusConflict, "we already have a submission for this email")
		return
	}

	ip := clientIP(r)
	if ip != nil {
		if exists, err := s.store.LeadIPExists(r.Context(), *ip); err != nil {
			zap.L().Error("httpapi: ip lookup failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, genericError)
			return
		} else if exists {
			writeError(w, http.StatusConflict, "we already have a submission from this address")
			return
		}
	}

	qualified := model.Qualify(req.Timeline, req.Budget)
	lead, err := s.store.CreateLead(r.Context(), model.Lead{
		Name:      req.Name,
		Email:     email,
		Idea:      req.Idea,
		Stage:     req.Stage,
		Timeline:  req.Timeline,
		Budget:    req.Budget,
		Qualified: qualified,
		IPAddress: ip,
	})
	if err != nil {
		if eris.Is(err, store.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "we already have a submission for this email")
			return
		}
		zap.L().Error("httpapi: lead insert failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, genericError)
		return
	}

	message := "Thanks! We'll reach out shortly."
	if !qualified {
		message = "Thanks for your interest! We'll keep you posted."
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        lead.ID,
		"qualified": qualified,
		"message":   message,
	})
}

type patchLeadRequest struct {
	ID            string              `json:"id"`
	ChatResponses model.ChatResponses `json:"chat_responses"`
}

// handlePatchLead replaces the chat_responses snapshot on an existing
// lead.
func (s *Server) handlePatchLead(w http.ResponseWriter, r *http.Request) {
	var req patchLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "missing required fields: id")
		return
	}

	if err := s.store.MergeChatResponses(r.Context(), req.ID, req.ChatResponses); err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "lead not found")
			return
		}
		zap.L().Error("httpapi: chat responses merge failed", zap.String("lead_id", req.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, genericError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": req.ID, "updated": true})
}

// missingFields returns the names of empty required fields, sorted for
// stable messages.
func missingFields(fields map[string]string) []string {
	order := []string{"name", "email", "idea", "stage", "timeline", "budget"}
	var missing []string
	for _, name := range order {
		if v, ok := fields[name]; ok && strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
