// Package store provides relational persistence for leads and the
// period-scoped capacity counters.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/intake-api/internal/model"
)

// Sentinel errors surfaced to handlers. Wrapped with eris at each call
// site; compare with eris.Is.
var (
	ErrNotFound       = eris.New("store: not found")
	ErrDuplicateEmail = eris.New("store: duplicate email")
	ErrDuplicateIP    = eris.New("store: duplicate ip address")
	ErrExhausted      = eris.New("store: spots exhausted")
)

// Store defines the persistence interface for the intake funnel.
type Store interface {
	// Leads (chat + static form funnel)
	CreateLead(ctx context.Context, lead model.Lead) (*model.Lead, error)
	GetLead(ctx context.Context, id string) (*model.Lead, error)
	GetLeadByEmail(ctx context.Context, email string) (*model.Lead, error)
	LeadEmailExists(ctx context.Context, email string) (bool, error)
	LeadIPExists(ctx context.Context, ip string) (bool, error)
	// UpdateLeadFields patches the given columns onto an existing row.
	// Callers pass only non-empty newly-known values (coalesce semantics).
	UpdateLeadFields(ctx context.Context, id string, fields map[string]any) error
	// SetLeadSpec overwrites the generated spec and chat_responses
	// snapshot. Overwrite keeps retries idempotent.
	SetLeadSpec(ctx context.Context, id string, spec string, responses *model.ChatResponses) error
	// MergeChatResponses replaces the stored chat_responses snapshot.
	MergeChatResponses(ctx context.Context, id string, responses model.ChatResponses) error
	CountLeadsByEmailDomain(ctx context.Context, domain string) (int, error)

	// MVP funnel leads
	CreateMVPLead(ctx context.Context, lead model.MVPLead) (*model.MVPLead, error)
	MVPLeadEmailExists(ctx context.Context, email string) (bool, error)
	SetMVPLeadBrief(ctx context.Context, id string, briefURL string) error

	// Capacity counters. Get lazily initializes the period row with
	// remaining = total. Decrement is atomic and never goes below zero:
	// it returns ErrExhausted once the period is spent and ErrNotFound
	// when the period row was never initialized.
	GetDailySpots(ctx context.Context, date string, total int) (*model.SpotCount, error)
	DecrementDailySpots(ctx context.Context, date string) (*model.SpotCount, error)
	GetMonthlySpots(ctx context.Context, month string, total int) (*model.SpotCount, error)
	DecrementMonthlySpots(ctx context.Context, month string) (*model.SpotCount, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
