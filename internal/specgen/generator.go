// Package specgen produces a build-ready product spec for a completed
// lead. Generation runs after the chat stream has already closed, so
// nothing here can surface an error to the client; failures are logged
// and the lead row simply keeps a null spec.
package specgen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-api/internal/model"
	"github.com/sells-group/intake-api/internal/resilience"
	"github.com/sells-group/intake-api/internal/store"
	"github.com/sells-group/intake-api/pkg/anthropic"
)

const specSystemPrompt = `You are a senior product engineer writing an internal build spec from a sales-intake conversation.

Produce a concise markdown document with these sections:
# Overview, # Target User, # Core User Flow, # Feature List (MoSCoW), # Design Direction, # Suggested Stack, # Open Questions.

Ground every section in what the prospect actually said. Where the conversation is silent, state the assumption explicitly instead of inventing detail.`

const specUserPrompt = `Conversation transcript:

%s

Extracted profile:
%s

Write the build spec.`

// timeout bounds one generation attempt end to end.
const timeout = 3 * time.Minute

// Generator writes product specs onto lead rows.
type Generator struct {
	client    anthropic.Client
	store     store.Store
	model     string
	maxTokens int64
}

// New creates a Generator.
func New(client anthropic.Client, st store.Store, modelName string, maxTokens int64) *Generator {
	return &Generator{
		client:    client,
		store:     st,
		model:     modelName,
		maxTokens: maxTokens,
	}
}

// Run generates the spec in a detached goroutine. It is safe to call
// from a request handler: the work is bound to its own context, panics
// are recovered, and transient model failures are retried. Failures are
// logged and swallowed.
func (g *Generator) Run(leadID string, turns []model.ConversationTurn, profile model.ExtractedProfile) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("specgen: panic", zap.String("lead_id", leadID), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		cfg := resilience.DefaultRetryConfig()
		cfg.MaxAttempts = 2
		cfg.OnRetry = func(attempt int, err error) {
			zap.L().Warn("specgen: retrying", zap.String("lead_id", leadID), zap.Int("attempt", attempt), zap.Error(err))
		}

		err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
			return g.Generate(ctx, leadID, turns, profile)
		})
		if err != nil {
			zap.L().Error("specgen: generation failed", zap.String("lead_id", leadID), zap.Error(err))
			return
		}
		zap.L().Info("specgen: spec written", zap.String("lead_id", leadID))
	}()
}

// Generate runs one model call and writes the spec plus the
// chat-responses snapshot onto the lead row. The write overwrites any
// previous spec, which keeps retries idempotent.
func (g *Generator) Generate(ctx context.Context, leadID string, turns []model.ConversationTurn, profile model.ExtractedProfile) error {
	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		System:    specSystemPrompt,
		Messages: []anthropic.Message{
			{Role: model.RoleUser, Content: fmt.Sprintf(specUserPrompt, formatTranscript(turns), formatProfile(profile))},
		},
	})
	if err != nil {
		return eris.Wrap(err, "specgen: create message")
	}
	resp.Usage.LogUsage(g.model, "specgen")

	spec := strings.TrimSpace(resp.Text())
	if spec == "" {
		return eris.New("specgen: empty model output")
	}

	responses := Snapshot(profile)
	if err := g.store.SetLeadSpec(ctx, leadID, spec, responses); err != nil {
		return eris.Wrap(err, "specgen: write spec")
	}
	return nil
}

// snapshotFields maps profile fields to the question labels stored in
// chat_responses, in the order the questions are asked.
var snapshotFields = []struct {
	label string
	get   func(model.ExtractedProfile) *string
}{
	{"What do you want to build?", func(p model.ExtractedProfile) *string { return p.Idea }},
	{"What stage is it at?", func(p model.ExtractedProfile) *string { return p.Stage }},
	{"What's your timeline?", func(p model.ExtractedProfile) *string { return p.Timeline }},
	{"What's your budget?", func(p model.ExtractedProfile) *string { return p.Budget }},
	{"Who is it for?", func(p model.ExtractedProfile) *string { return p.TargetUser }},
	{"What's the core action?", func(p model.ExtractedProfile) *string { return p.CoreAction }},
	{"Must-have features?", func(p model.ExtractedProfile) *string { return p.Features }},
	{"Design inspiration?", func(p model.ExtractedProfile) *string { return p.DesignInspiration }},
}

// Snapshot derives the ordered chat-responses snapshot from a profile.
// Only answered questions appear; nil means nothing was answered.
func Snapshot(profile model.ExtractedProfile) *model.ChatResponses {
	var responses model.ChatResponses
	for _, f := range snapshotFields {
		if v := f.get(profile); v != nil && *v != "" {
			responses.Add(f.label, *v)
		}
	}
	if responses.Len() == 0 {
		return nil
	}
	return &responses
}

func formatTranscript(turns []model.ConversationTurn) string {
	var b strings.Builder
	for _, t := range turns {
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func formatProfile(profile model.ExtractedProfile) string {
	var b strings.Builder
	for _, f := range snapshotFields {
		if v := f.get(profile); v != nil && *v != "" {
			fmt.Fprintf(&b, "- %s %s\n", f.label, *v)
		}
	}
	if b.Len() == 0 {
		return "- (nothing extracted)"
	}
	return b.String()
}
