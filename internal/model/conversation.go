package model

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationTurn is one message in a chat transcript. Turns are never
// persisted directly; the client resends the full ordered sequence on
// every request and conversation state is reconstructed from it.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ExtractedProfile is the structured projection of a transcript produced
// by the conversation extractor. Every field is independently optional;
// a parse failure yields the zero value ("no new information").
type ExtractedProfile struct {
	Name              *string `json:"name,omitempty"`
	Email             *string `json:"email,omitempty"`
	Idea              *string `json:"idea,omitempty"`
	Stage             *string `json:"stage,omitempty"`
	Timeline          *string `json:"timeline,omitempty"`
	Budget            *string `json:"budget,omitempty"`
	TargetUser        *string `json:"target_user,omitempty"`
	CoreAction        *string `json:"core_action,omitempty"`
	Features          *string `json:"features,omitempty"`
	DesignInspiration *string `json:"design_inspiration,omitempty"`

	Qualified            bool `json:"qualified"`
	ConversationComplete bool `json:"conversation_complete"`
}

// HasIdentity reports whether the minimum fields for lead creation
// (name, email, idea) are all present and non-empty.
func (p ExtractedProfile) HasIdentity() bool {
	return strPresent(p.Name) && strPresent(p.Email) && strPresent(p.Idea)
}

// HasQualifiers reports whether the qualifying triad (stage, timeline,
// budget) is fully populated.
func (p ExtractedProfile) HasQualifiers() bool {
	return strPresent(p.Stage) && strPresent(p.Timeline) && strPresent(p.Budget)
}

// Patch returns the non-nil chat-derived fields as a column→value map
// for a coalescing update. Identity and qualifier fields are included
// only when present; nothing is ever nulled out.
func (p ExtractedProfile) Patch() map[string]any {
	patch := make(map[string]any)
	put := func(col string, v *string) {
		if strPresent(v) {
			patch[col] = *v
		}
	}
	put("name", p.Name)
	put("idea", p.Idea)
	put("stage", p.Stage)
	put("timeline", p.Timeline)
	put("budget", p.Budget)
	put("target_user", p.TargetUser)
	put("core_action", p.CoreAction)
	put("features", p.Features)
	put("design_inspiration", p.DesignInspiration)
	if strPresent(p.Email) {
		patch["email"] = NormalizeEmail(*p.Email)
	}
	return patch
}

func strPresent(s *string) bool {
	return s != nil && *s != ""
}
