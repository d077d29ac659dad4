// Package model defines the domain records shared across the intake funnel.
package model

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Stage values accepted for a lead's product stage.
const (
	StageIdea       = "idea"
	StageValidating = "validating"
	StageBuilding   = "building"
	StageLaunched   = "launched"
)

// Timeline values for the chat funnel.
const (
	TimelineExploring = "exploring"
	Timeline30Days    = "30days"
	TimelineASAP      = "asap"
)

// Timeline values for the MVP funnel.
const (
	TimelineTwoWeeks = "2weeks"
	TimelineOneMonth = "1month"
)

// Budget values.
const (
	BudgetZero    = "0"
	BudgetUnder1K = "under1k"
	Budget1KTo5K  = "1k-5k"
	Budget5KPlus  = "5k+"
)

// Lead is a persisted record of one prospective customer from the chat
// or static-form funnel.
type Lead struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	Idea              string         `json:"idea"`
	Stage             string         `json:"stage"`
	Timeline          string         `json:"timeline"`
	Budget            string         `json:"budget"`
	Qualified         bool           `json:"qualified"`
	TargetUser        *string        `json:"target_user,omitempty"`
	CoreAction        *string        `json:"core_action,omitempty"`
	Features          *string        `json:"features,omitempty"`
	DesignInspiration *string        `json:"design_inspiration,omitempty"`
	ChatResponses     *ChatResponses `json:"chat_responses,omitempty"`
	Spec              *string        `json:"spec,omitempty"`
	IPAddress         *string        `json:"ip_address,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// MVPLead is a persisted record from the MVP funnel variant.
type MVPLead struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Idea           string    `json:"idea"`
	TargetAudience string    `json:"target_audience"`
	CoreFeature    string    `json:"core_feature"`
	MVPType        string    `json:"mvp_type"`
	Timeline       string    `json:"timeline"`
	BriefURL       *string   `json:"brief_url,omitempty"`
	IPAddress      *string   `json:"ip_address,omitempty"`
	Summary        *string   `json:"summary,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// emailFolder performs Unicode case folding for email comparison.
var emailFolder = cases.Fold()

// NormalizeEmail case-folds and trims an email address so that two
// spellings differing only by case compare equal.
func NormalizeEmail(email string) string {
	return emailFolder.String(strings.TrimSpace(email))
}

// EmailDomain returns the lowercased domain part of an address, or ""
// if the address has no "@".
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return NormalizeEmail(email[at+1:])
}

// Qualify applies the screening rule: a lead is rejected only when it is
// just exploring with zero budget. Every other combination qualifies.
func Qualify(timeline, budget string) bool {
	return !(timeline == TimelineExploring && budget == BudgetZero)
}
