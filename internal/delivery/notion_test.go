package delivery

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/intake-api/internal/model"
)

type fakeNotion struct {
	existing  bool
	queryErr  error
	createErr error
	created   []*notionapi.PageCreateRequest
}

func (f *fakeNotion) CreatePage(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, req)
	return &notionapi.Page{ID: "page-1"}, nil
}

func (f *fakeNotion) QueryDatabase(context.Context, string, *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	resp := &notionapi.DatabaseQueryResponse{}
	if f.existing {
		resp.Results = []notionapi.Page{{ID: "page-0"}}
	}
	return resp, nil
}

func testLead() model.Lead {
	return model.Lead{
		ID:       "lead-1",
		Name:     "Ada",
		Email:    "ada@example.com",
		Idea:     "bakery marketplace",
		Stage:    model.StageIdea,
		Timeline: model.TimelineASAP,
		Budget:   model.Budget1KTo5K,
	}
}

func TestDeliverCreatesPage(t *testing.T) {
	client := &fakeNotion{}
	d := NewNotion(client, "db-1")

	err := d.Deliver(context.Background(), testLead())
	require.NoError(t, err)
	require.Len(t, client.created, 1)

	req := client.created[0]
	assert.Equal(t, notionapi.DatabaseID("db-1"), req.Parent.DatabaseID)
	title := req.Properties["Name"].(notionapi.TitleProperty)
	assert.Equal(t, "Ada", title.Title[0].Text.Content)
	stage := req.Properties["Stage"].(notionapi.SelectProperty)
	assert.Equal(t, "idea", stage.Select.Name)
}

func TestDeliverSkipsExistingPage(t *testing.T) {
	client := &fakeNotion{existing: true}
	d := NewNotion(client, "db-1")

	err := d.Deliver(context.Background(), testLead())
	require.NoError(t, err)
	assert.Empty(t, client.created)
}

func TestDeliverCreatesDespiteDedupeFailure(t *testing.T) {
	client := &fakeNotion{queryErr: eris.New("notion down")}
	d := NewNotion(client, "db-1")

	err := d.Deliver(context.Background(), testLead())
	require.NoError(t, err)
	assert.Len(t, client.created, 1)
}

func TestDeliverCreateFailure(t *testing.T) {
	client := &fakeNotion{createErr: eris.New("validation_error")}
	d := NewNotion(client, "db-1")

	err := d.Deliver(context.Background(), testLead())
	require.Error(t, err)
}
