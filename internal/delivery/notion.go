// Package delivery hands finished leads off to the sales team's Notion
// workspace. Delivery runs fire-and-forget next to spec generation; a
// failed hand-off is an operational annoyance, never a lost lead, since
// the row is already persisted.
package delivery

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-api/internal/model"
	"github.com/sells-group/intake-api/pkg/notion"
)

// Deliverer pushes one lead to an external destination.
type Deliverer interface {
	Deliver(ctx context.Context, lead model.Lead) error
}

// NotionDeliverer creates one page per lead in the configured lead
// database.
type NotionDeliverer struct {
	client notion.Client
	leadDB string
}

// NewNotion creates a NotionDeliverer writing into leadDB.
func NewNotion(client notion.Client, leadDB string) *NotionDeliverer {
	return &NotionDeliverer{client: client, leadDB: leadDB}
}

// Deliver creates the lead page. An existing page with the same email
// is treated as already delivered.
func (d *NotionDeliverer) Deliver(ctx context.Context, lead model.Lead) error {
	exists, err := d.alreadyDelivered(ctx, lead.Email)
	if err != nil {
		// Dedupe is best-effort; a duplicate page beats a dropped lead.
		zap.L().Warn("delivery: dedupe query failed", zap.String("email", lead.Email), zap.Error(err))
	}
	if exists {
		zap.L().Info("delivery: lead already in notion", zap.String("email", lead.Email))
		return nil
	}

	page, err := d.client.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(d.leadDB),
		},
		Properties: d.properties(lead),
	})
	if err != nil {
		return eris.Wrap(err, "delivery: create lead page")
	}
	zap.L().Info("delivery: lead delivered",
		zap.String("lead_id", lead.ID),
		zap.String("page_id", string(page.ID)),
	)
	return nil
}

func (d *NotionDeliverer) alreadyDelivered(ctx context.Context, email string) (bool, error) {
	resp, err := d.client.QueryDatabase(ctx, d.leadDB, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Email",
			RichText: &notionapi.TextFilterCondition{Equals: email},
		},
		PageSize: 1,
	})
	if err != nil {
		return false, err
	}
	return len(resp.Results) > 0, nil
}

func (d *NotionDeliverer) properties(lead model.Lead) notionapi.Properties {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: lead.Name}}},
		},
		"Email": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: lead.Email}}},
		},
		"Idea": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: lead.Idea}}},
		},
		"Stage": notionapi.SelectProperty{
			Select: notionapi.Option{Name: lead.Stage},
		},
		"Timeline": notionapi.SelectProperty{
			Select: notionapi.Option{Name: lead.Timeline},
		},
		"Budget": notionapi.SelectProperty{
			Select: notionapi.Option{Name: lead.Budget},
		},
	}
	return props
}
