// Package extract turns a chat transcript into a structured lead
// profile. Extraction is best-effort by contract: the chat funnel must
// keep streaming even when the model returns garbage, so Extract never
// propagates parse failures.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-api/internal/model"
	"github.com/sells-group/intake-api/pkg/anthropic"
)

// Extractor runs one non-streaming completion per transcript. Parsing
// never fails: malformed model output yields an empty profile.
type Extractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New creates an Extractor using the given model.
func New(client anthropic.Client, modelName string) *Extractor {
	return &Extractor{
		client:    client,
		model:     modelName,
		maxTokens: 1024,
	}
}

// Extract projects the transcript into an ExtractedProfile. The model
// call can fail (and its error is returned for logging), but a bad
// response body is not an error: any unparseable output yields the
// zero profile, meaning "no new information".
func (e *Extractor) Extract(ctx context.Context, turns []model.ConversationTurn) (model.ExtractedProfile, error) {
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    extractSystemPrompt,
		Messages: []anthropic.Message{
			{Role: model.RoleUser, Content: fmt.Sprintf(extractUserPrompt, formatTranscript(turns))},
		},
	})
	if err != nil {
		return model.ExtractedProfile{}, eris.Wrap(err, "extract: create message")
	}
	resp.Usage.LogUsage(e.model, "extract")

	return Parse(resp.Text()), nil
}

// Parse converts raw model output into a profile. Parse never fails;
// malformed input produces the zero profile.
func Parse(text string) model.ExtractedProfile {
	var raw map[string]any
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		zap.L().Debug("extract: unparseable model output", zap.Error(err))
		return model.ExtractedProfile{}
	}

	var p model.ExtractedProfile
	p.Name = stringField(raw, "name")
	p.Email = stringField(raw, "email")
	p.Idea = stringField(raw, "idea")
	p.TargetUser = stringField(raw, "target_user")
	p.CoreAction = stringField(raw, "core_action")
	p.Features = stringField(raw, "features")
	p.DesignInspiration = stringField(raw, "design_inspiration")

	p.Stage = normalizeEnum(stringField(raw, "stage"), stageByPosition, stageSynonyms)
	p.Timeline = normalizeEnum(stringField(raw, "timeline"), timelineByPosition, timelineSynonyms)
	p.Budget = normalizeEnum(stringField(raw, "budget"), budgetByPosition, budgetSynonyms)

	if v, ok := raw["conversation_complete"].(bool); ok {
		p.ConversationComplete = v
	}
	// Qualification is decided here, never trusted from the model.
	if p.HasQualifiers() {
		p.Qualified = model.Qualify(*p.Timeline, *p.Budget)
	}
	return p
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

// formatTranscript renders turns as "role: content" lines for the
// extraction prompt.
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

// stringField reads a key as a string pointer, tolerating numbers the
// model emitted unquoted (a bare 0 budget comes back as float64).
func stringField(raw map[string]any, key string) *string {
	switch v := raw[key].(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" || strings.EqualFold(s, "null") {
			return nil
		}
		return &s
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		return &s
	default:
		return nil
	}
}

var stageSynonyms = map[string]string{
	"just an idea":  "idea",
	"concept":       "idea",
	"validation":    "validating",
	"mvp":           "building",
	"in progress":   "building",
	"live":          "launched",
	"shipped":       "launched",
	"in the market": "launched",
}

var timelineSynonyms = map[string]string{
	"now":              "asap",
	"immediately":      "asap",
	"right away":       "asap",
	"30 days":          "30days",
	"within 30 days":   "30days",
	"a month":          "30days",
	"next month":       "30days",
	"just exploring":   "exploring",
	"no rush":          "exploring",
	"looking around":   "exploring",
	"browsing":         "exploring",
	"not sure yet":     "exploring",
	"sometime":         "exploring",
	"no timeline":      "exploring",
	"just researching": "exploring",
}

var budgetSynonyms = map[string]string{
	"zero":         "0",
	"none":         "0",
	"nothing":      "0",
	"no budget":    "0",
	"$0":           "0",
	"under 1k":     "under1k",
	"under $1k":    "under1k",
	"< 1k":         "under1k",
	"less than 1k": "under1k",
	"1k to 5k":     "1k-5k",
	"$1k-$5k":      "1k-5k",
	"1-5k":         "1k-5k",
	"5k plus":      "5k+",
	"over 5k":      "5k+",
	"more than 5k": "5k+",
	"$5k+":         "5k+",
}

// normalizeEnum maps model output onto a canonical enum value: exact
// matches pass through, 1-based numeric shorthand resolves against the
// question's option order, and common phrasings map via the synonym
// table. Unrecognized values pass through untouched so the store keeps
// what the user actually said.
func normalizeEnum(v *string, byPosition []string, synonyms map[string]string) *string {
	if v == nil {
		return nil
	}
	s := strings.ToLower(strings.TrimSpace(*v))

	for _, canon := range byPosition {
		if s == canon {
			return &canon
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(byPosition) {
		// Bare "0" is positional shorthand for stage/timeline but a
		// literal value for budget, which lists "0" as an option and is
		// caught by the canonical loop above.
		return &byPosition[n-1]
	}
	if canon, ok := synonyms[s]; ok {
		return &canon
	}
	return &s
}
