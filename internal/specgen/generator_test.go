package specgen

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-api/internal/model"
	"github.com/sells-group/intake-api/internal/store"
	"github.com/sells-group/intake-api/pkg/anthropic"
)

type fakeLLM struct {
	text  string
	err   error
	calls int
}

func (f *fakeLLM) CreateMessage(context.Context, anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.text}},
	}, nil
}

func (f *fakeLLM) StreamMessage(context.Context, anthropic.MessageRequest, func(string)) (*anthropic.MessageResponse, error) {
	return nil, eris.New("not used")
}

type specStore struct {
	store.Store

	leadID    string
	spec      string
	responses *model.ChatResponses
	err       error
}

func (s *specStore) SetLeadSpec(_ context.Context, id, spec string, responses *model.ChatResponses) error {
	if s.err != nil {
		return s.err
	}
	s.leadID = id
	s.spec = spec
	s.responses = responses
	return nil
}

func strp(s string) *string { return &s }

func fullProfile() model.ExtractedProfile {
	return model.ExtractedProfile{
		Idea:       strp("bakery marketplace"),
		Stage:      strp("idea"),
		Timeline:   strp("asap"),
		Budget:     strp("1k-5k"),
		TargetUser: strp("home bakers"),
		Features:   strp("payments, reviews"),
	}
}

func TestGenerateWritesSpecAndSnapshot(t *testing.T) {
	llm := &fakeLLM{text: "# Overview\nA marketplace for home bakers."}
	st := &specStore{}
	gen := New(llm, st, "test-model", 4096)

	turns := []model.ConversationTurn{{Role: model.RoleUser, Content: "I want a bakery marketplace"}}
	err := gen.Generate(context.Background(), "lead-1", turns, fullProfile())
	require.NoError(t, err)

	assert.Equal(t, "lead-1", st.leadID)
	assert.Equal(t, "# Overview\nA marketplace for home bakers.", st.spec)
	require.NotNil(t, st.responses)
	assert.Equal(t, "What do you want to build?", st.responses.Entries[0].Label)
	assert.Equal(t, "bakery marketplace", st.responses.Entries[0].Text)
}

func TestGenerateEmptyOutputIsError(t *testing.T) {
	llm := &fakeLLM{text: "   "}
	st := &specStore{}
	gen := New(llm, st, "test-model", 4096)

	err := gen.Generate(context.Background(), "lead-1", nil, fullProfile())
	require.Error(t, err)
	assert.Empty(t, st.leadID)
}

func TestGenerateModelFailurePropagates(t *testing.T) {
	llm := &fakeLLM{err: eris.New("overloaded")}
	gen := New(llm, &specStore{}, "test-model", 4096)

	err := gen.Generate(context.Background(), "lead-1", nil, fullProfile())
	require.Error(t, err)
}

func TestSnapshotOrderAndOmission(t *testing.T) {
	profile := model.ExtractedProfile{
		Idea:     strp("an app"),
		Budget:   strp("5k+"),
		Features: strp("offline mode"),
	}
	responses := Snapshot(profile)
	require.NotNil(t, responses)
	require.Equal(t, 3, responses.Len())

	// Question order is preserved in the marshaled object.
	data, err := json.Marshal(responses)
	require.NoError(t, err)
	assert.Equal(t, `{"What do you want to build?":"an app","What's your budget?":"5k+","Must-have features?":"offline mode"}`, string(data))
}

func TestSnapshotEmptyProfile(t *testing.T) {
	assert.Nil(t, Snapshot(model.ExtractedProfile{}))
}
