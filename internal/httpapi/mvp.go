package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-api/internal/model"
	"github.com/sells-group/intake-api/internal/store"
	"github.com/sells-group/intake-api/internal/upload"
)

// handleCreateMVPLead accepts the multipart MVP funnel form. The brief
// attachment is best-effort: validation failures reject the request,
// but an upload failure only omits the brief URL.
func (s *Server) handleCreateMVPLead(w http.ResponseWriter, r *http.Request) {
	maxUpload := s.cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = upload.DefaultMaxSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload+1<<20)
	if err := r.ParseMultipartForm(maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	fields := map[string]string{
		"name":            r.FormValue("name"),
		"email":           r.FormValue("email"),
		"idea":            r.FormValue("idea"),
		"target_audience": r.FormValue("target_audience"),
		"core_feature":    r.FormValue("core_feature"),
		"mvp_type":        r.FormValue("mvp_type"),
		"timeline":        r.FormValue("timeline"),
	}
	if missing := missingMVPFields(fields); len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "missing required fields: "+strings.Join(missing, ", "))
		return
	}
	if !validEmail(fields["email"]) {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}

	email := model.NormalizeEmail(fields["email"])
	if isDisposableDomain(model.EmailDomain(email)) {
		writeError(w, http.StatusUnprocessableEntity, "please use a permanent email address")
		return
	}

	if exists, err := s.store.MVPLeadEmailExists(r.Context(), email); err != nil {
		zap.L().Error("httpapi: mvp email lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, genericError)
		return
	} else if exists {
		writeError(w, http.StatusConflict, "we already have a submission for this email")
		return
	}

	// Validate the brief up front so a bad file rejects before the row
	// is written.
	file, header, fileErr := r.FormFile("brief")
	if fileErr == nil {
		defer file.Close()
		if err := upload.Validate(header.Filename, header.Size, maxUpload, s.cfg.AllowedExts); err != nil {
			writeError(w, http.StatusBadRequest, eris.Cause(err).Error())
			return
		}
	}

	lead, err := s.store.CreateMVPLead(r.Context(), model.MVPLead{
		Name:           fields["name"],
		Email:          email,
		Idea:           fields["idea"],
		TargetAudience: fields["target_audience"],
		CoreFeature:    fields["core_feature"],
		MVPType:        fields["mvp_type"],
		Timeline:       fields["timeline"],
		IPAddress:      clientIP(r),
	})
	if err != nil {
		if eris.Is(err, store.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "we already have a submission for this email")
			return
		}
		zap.L().Error("httpapi: mvp lead insert failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, genericError)
		return
	}

	// Monthly capacity is a side effect of a successful submission;
	// exhaustion never blocks the lead.
	month := model.MonthlyPeriod(time.Now())
	if _, err := s.store.GetMonthlySpots(r.Context(), month, s.cfg.MonthlyTotal); err != nil {
		zap.L().Warn("httpapi: monthly spots init failed", zap.Error(err))
	}
	if _, err := s.store.DecrementMonthlySpots(r.Context(), month); err != nil {
		zap.L().Info("httpapi: monthly spot not consumed", zap.Error(err))
	}

	var briefURL *string
	if fileErr == nil && s.uploader != nil {
		url, upErr := s.uploader.Upload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
		if upErr != nil {
			zap.L().Warn("httpapi: brief upload failed", zap.String("lead_id", lead.ID), zap.Error(upErr))
		} else {
			briefURL = &url
			if err := s.store.SetMVPLeadBrief(r.Context(), lead.ID, url); err != nil {
				zap.L().Warn("httpapi: brief link failed", zap.String("lead_id", lead.ID), zap.Error(err))
			}
		}
	}

	resp := map[string]any{
		"id":      lead.ID,
		"message": "Thanks! We'll review your submission and get back to you.",
	}
	if briefURL != nil {
		resp["briefUrl"] = *briefURL
	}
	writeJSON(w, http.StatusCreated, resp)
}

func missingMVPFields(fields map[string]string) []string {
	order := []string{"name", "email", "idea", "target_audience", "core_feature", "mvp_type", "timeline"}
	var missing []string
	for _, name := range order {
		if fields[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
