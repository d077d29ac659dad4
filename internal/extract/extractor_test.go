package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFullProfile(t *testing.T) {
	text := `{"name": "Ada", "email": "Ada@Example.COM", "idea": "a bakery marketplace",
		"stage": "validating", "timeline": "asap", "budget": "1k-5k",
		"target_user": "home bakers", "core_action": "list and sell goods",
		"features": "payments, reviews", "design_inspiration": "etsy",
		"conversation_complete": true}`

	p := Parse(text)
	require.NotNil(t, p.Name)
	assert.Equal(t, "Ada", *p.Name)
	require.NotNil(t, p.Email)
	assert.Equal(t, "Ada@Example.COM", *p.Email)
	assert.True(t, p.HasIdentity())
	assert.True(t, p.HasQualifiers())
	assert.True(t, p.Qualified)
	assert.True(t, p.ConversationComplete)
}

func TestParseCodeFenced(t *testing.T) {
	text := "Here is the extraction:\n```json\n{\"name\": \"Bob\", \"conversation_complete\": false}\n```"

	p := Parse(text)
	require.NotNil(t, p.Name)
	assert.Equal(t, "Bob", *p.Name)
	assert.False(t, p.ConversationComplete)
}

func TestParseGarbageYieldsZeroProfile(t *testing.T) {
	for _, text := range []string{
		"",
		"not json at all",
		"{truncated",
		`["an", "array"]`,
	} {
		p := Parse(text)
		assert.False(t, p.HasIdentity(), "input %q", text)
		assert.False(t, p.Qualified, "input %q", text)
		assert.False(t, p.ConversationComplete, "input %q", text)
	}
}

func TestParseNumericShorthand(t *testing.T) {
	// A bare answer like "2" resolves against the question's option list,
	// including when the model leaves it as a JSON number.
	text := `{"stage": 2, "timeline": "3", "budget": "4"}`

	p := Parse(text)
	require.NotNil(t, p.Stage)
	assert.Equal(t, "validating", *p.Stage)
	require.NotNil(t, p.Timeline)
	assert.Equal(t, "exploring", *p.Timeline)
	require.NotNil(t, p.Budget)
	assert.Equal(t, "5k+", *p.Budget)
}

func TestParseBudgetZeroIsLiteral(t *testing.T) {
	// "0" is a canonical budget value, not positional shorthand.
	p := Parse(`{"budget": 0}`)
	require.NotNil(t, p.Budget)
	assert.Equal(t, "0", *p.Budget)
}

func TestParseSynonyms(t *testing.T) {
	text := `{"stage": "MVP", "timeline": "Just exploring", "budget": "under $1k"}`

	p := Parse(text)
	assert.Equal(t, "building", *p.Stage)
	assert.Equal(t, "exploring", *p.Timeline)
	assert.Equal(t, "under1k", *p.Budget)
}

func TestParseUnknownEnumPassesThrough(t *testing.T) {
	p := Parse(`{"timeline": "when the stars align"}`)
	require.NotNil(t, p.Timeline)
	assert.Equal(t, "when the stars align", *p.Timeline)
}

func TestParseDisqualification(t *testing.T) {
	p := Parse(`{"timeline": "exploring", "budget": "0", "stage": "idea"}`)
	assert.True(t, p.HasQualifiers())
	assert.False(t, p.Qualified)

	// Either axis alone is not disqualifying.
	p = Parse(`{"timeline": "exploring", "budget": "5k+", "stage": "idea"}`)
	assert.True(t, p.Qualified)
	p = Parse(`{"timeline": "asap", "budget": "0", "stage": "idea"}`)
	assert.True(t, p.Qualified)
}

func TestParseIgnoresModelQualifiedClaim(t *testing.T) {
	// The decision is recomputed locally even if the model asserts it.
	p := Parse(`{"timeline": "exploring", "budget": "0", "qualified": true}`)
	assert.False(t, p.Qualified)
}

func TestCleanJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", `Sure! {"a":1} Hope that helps.`, `{"a":1}`},
		{"no object", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSON(tt.input))
		})
	}
}
