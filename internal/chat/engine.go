// Package chat implements the streaming dialogue engine behind the
// conversational intake funnel: it relays model tokens to the client as
// SSE frames and runs the lead lifecycle (extract, create or refine,
// complete) after each assistant utterance.
package chat

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-api/internal/model"
	"github.com/sells-group/intake-api/internal/store"
	"github.com/sells-group/intake-api/pkg/anthropic"
)

// TurnRequest is one client request on the chat funnel.
type TurnRequest struct {
	Messages []model.ConversationTurn `json:"messages"`
	LeadID   string                   `json:"leadId,omitempty"`
	Action   string                   `json:"action,omitempty"`
}

// ActionStart requests the canned greeting instead of a model turn.
const ActionStart = "start"

// Extractor projects a transcript into a lead profile.
type Extractor interface {
	Extract(ctx context.Context, turns []model.ConversationTurn) (model.ExtractedProfile, error)
}

// SpecRunner generates the product spec for a completed lead in the
// background.
type SpecRunner interface {
	Run(leadID string, turns []model.ConversationTurn, profile model.ExtractedProfile)
}

// Deliverer pushes a finished lead to the sales workspace.
type Deliverer interface {
	Deliver(ctx context.Context, lead model.Lead) error
}

// Config tunes the engine.
type Config struct {
	Model         string
	MaxTokens     int64
	Greeting      string
	MaxTranscript int
	DailyTotal    int
}

// Engine drives one conversational turn end to end.
type Engine struct {
	cfg       Config
	llm       anthropic.Client
	extractor Extractor
	store     store.Store
	specs     SpecRunner
	deliverer Deliverer
}

// NewEngine creates an Engine. specs and deliverer may be nil, which
// disables the corresponding completion side effect.
func NewEngine(cfg Config, llm anthropic.Client, extractor Extractor, st store.Store, specs SpecRunner, deliverer Deliverer) *Engine {
	if cfg.Greeting == "" {
		cfg.Greeting = DefaultGreeting
	}
	if cfg.MaxTranscript <= 0 {
		cfg.MaxTranscript = 60
	}
	return &Engine{
		cfg:       cfg,
		llm:       llm,
		extractor: extractor,
		store:     st,
		specs:     specs,
		deliverer: deliverer,
	}
}

// Turn runs one conversational turn, emitting frames to sink in order:
// text* then message_done then done. An empty transcript (outside the
// start action) or an upstream model failure emits a terminal error
// frame instead; lead lifecycle failures are logged and never interrupt
// the stream.
func (e *Engine) Turn(ctx context.Context, req TurnRequest, sink FrameSink) error {
	if req.Action == ActionStart && len(req.Messages) == 0 {
		if err := sink.Send(TextFrame(e.cfg.Greeting)); err != nil {
			return err
		}
		if err := sink.Send(MessageDoneFrame()); err != nil {
			return err
		}
		return sink.Send(Frame{Type: FrameDone})
	}

	if len(req.Messages) == 0 {
		return sink.Send(ErrorFrame("Send a message to continue."))
	}

	turns := capTranscript(req.Messages, e.cfg.MaxTranscript)

	reply, err := e.llm.StreamMessage(ctx, anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System:    chatSystemPrompt,
		Messages:  toAnthropicMessages(turns),
	}, func(fragment string) {
		if err := sink.Send(TextFrame(fragment)); err != nil {
			zap.L().Warn("chat: client write failed mid-stream", zap.Error(err))
		}
	})
	if err != nil {
		zap.L().Error("chat: stream failed", zap.Error(err))
		return sink.Send(ErrorFrame("The assistant is unavailable right now. Please try again."))
	}
	reply.Usage.LogUsage(e.cfg.Model, "chat")

	if err := sink.Send(MessageDoneFrame()); err != nil {
		return err
	}

	transcript := append(append([]model.ConversationTurn{}, turns...), model.ConversationTurn{
		Role:    model.RoleAssistant,
		Content: reply.Text(),
	})

	profile, err := e.extractor.Extract(ctx, transcript)
	if err != nil {
		// Extraction is best-effort; the stream already succeeded.
		zap.L().Warn("chat: extraction failed", zap.Error(err))
	}

	done := e.runLifecycle(ctx, req.LeadID, transcript, profile)
	return sink.Send(done)
}

// runLifecycle applies the creation gate, refinement patch, and
// completion side effects, and returns the done frame to emit.
func (e *Engine) runLifecycle(ctx context.Context, leadID string, transcript []model.ConversationTurn, profile model.ExtractedProfile) Frame {
	done := Frame{Type: FrameDone}

	switch {
	case leadID == "" && profile.HasIdentity() && profile.HasQualifiers():
		if !profile.Qualified {
			// Screened out: tell the client, write nothing.
			done.Rejected = true
			done.Email = model.NormalizeEmail(*profile.Email)
			return done
		}
		leadID, done.LeadCreated = e.createLead(ctx, profile)

	case leadID != "":
		e.refineLead(ctx, leadID, profile)
	}

	done.LeadID = leadID

	if profile.ConversationComplete {
		done.IsComplete = true
		if profile.Email != nil {
			done.Email = model.NormalizeEmail(*profile.Email)
		}
		if leadID != "" {
			e.complete(ctx, leadID, transcript, profile)
		}
	}
	return done
}

// createLead inserts a qualified lead and reports whether a new row was
// written. A duplicate email coalesces into a refinement patch on the
// existing row; any other failure is logged and the turn proceeds
// without a lead id.
func (e *Engine) createLead(ctx context.Context, profile model.ExtractedProfile) (string, bool) {
	lead := model.Lead{
		Name:              *profile.Name,
		Email:             model.NormalizeEmail(*profile.Email),
		Idea:              *profile.Idea,
		Stage:             *profile.Stage,
		Timeline:          *profile.Timeline,
		Budget:            *profile.Budget,
		Qualified:         true,
		TargetUser:        profile.TargetUser,
		CoreAction:        profile.CoreAction,
		Features:          profile.Features,
		DesignInspiration: profile.DesignInspiration,
	}

	created, err := e.store.CreateLead(ctx, lead)
	if err == nil {
		zap.L().Info("chat: lead created", zap.String("lead_id", created.ID), zap.String("email", created.Email))
		return created.ID, true
	}
	if !eris.Is(err, store.ErrDuplicateEmail) {
		zap.L().Error("chat: lead insert failed", zap.Error(err))
		return "", false
	}

	existing, lookupErr := e.store.GetLeadByEmail(ctx, lead.Email)
	if lookupErr != nil {
		zap.L().Error("chat: duplicate lead lookup failed", zap.Error(lookupErr))
		return "", false
	}
	e.refineLead(ctx, existing.ID, profile)
	return existing.ID, false
}

// refineLead patches newly-known fields onto an existing row.
func (e *Engine) refineLead(ctx context.Context, leadID string, profile model.ExtractedProfile) {
	patch := profile.Patch()
	if len(patch) == 0 {
		return
	}
	if err := e.store.UpdateLeadFields(ctx, leadID, patch); err != nil {
		zap.L().Warn("chat: lead patch failed", zap.String("lead_id", leadID), zap.Error(err))
	}
}

// complete runs the completion side effects: a daily spot is consumed
// and spec generation plus delivery are kicked off detached from the
// request. The lead row must exist and be qualified; a client-supplied
// leadId can point at an unqualified static-form row, which gets no
// spec or delivery. None of these can fail the turn.
func (e *Engine) complete(ctx context.Context, leadID string, transcript []model.ConversationTurn, profile model.ExtractedProfile) {
	lead, err := e.store.GetLead(ctx, leadID)
	if err != nil {
		zap.L().Warn("chat: completion lookup failed", zap.String("lead_id", leadID), zap.Error(err))
		return
	}
	if !lead.Qualified {
		zap.L().Info("chat: completion skipped for unqualified lead", zap.String("lead_id", leadID))
		return
	}

	today := model.DailyPeriod(time.Now())
	if _, err := e.store.GetDailySpots(ctx, today, e.cfg.DailyTotal); err != nil {
		zap.L().Warn("chat: daily spots init failed", zap.Error(err))
	}
	if _, err := e.store.DecrementDailySpots(ctx, today); err != nil {
		// Exhausted capacity is expected late in the day.
		zap.L().Info("chat: daily spot not consumed", zap.Error(err))
	}

	if e.specs != nil {
		e.specs.Run(leadID, transcript, profile)
	}
	if e.deliverer != nil {
		go func() {
			dctx := context.WithoutCancel(ctx)
			if err := e.deliverer.Deliver(dctx, *lead); err != nil {
				zap.L().Warn("chat: lead delivery failed", zap.String("lead_id", leadID), zap.Error(err))
			}
		}()
	}
}

// capTranscript keeps the most recent max turns.
func capTranscript(turns []model.ConversationTurn, max int) []model.ConversationTurn {
	if len(turns) <= max {
		return turns
	}
	return turns[len(turns)-max:]
}

func toAnthropicMessages(turns []model.ConversationTurn) []anthropic.Message {
	out := make([]anthropic.Message, len(turns))
	for i, t := range turns {
		out[i] = anthropic.Message{Role: t.Role, Content: t.Content}
	}
	return out
}
