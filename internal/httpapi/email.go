package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/intake-api/internal/model"
)

type checkEmailRequest struct {
	Email string `json:"email"`
}

// handleCheckEmail is a pure read used by the frontend to pre-validate
// a form: does the email already exist, and has its domain hit the
// per-domain submission cap. The two lookups are independent and run
// concurrently.
func (s *Server) handleCheckEmail(w http.ResponseWriter, r *http.Request) {
	var req checkEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing required fields: email")
		return
	}
	if !validEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	email := model.NormalizeEmail(req.Email)

	var exists bool
	var domainCount int
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		exists, err = s.store.LeadEmailExists(ctx, email)
		return err
	})
	g.Go(func() error {
		var err error
		domainCount, err = s.store.CountLeadsByEmailDomain(ctx, model.EmailDomain(email))
		return err
	})
	if err := g.Wait(); err != nil {
		zap.L().Error("httpapi: check email failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, genericError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"exists":           exists,
		"domainCapReached": domainCount >= leadDomainCap,
	})
}
