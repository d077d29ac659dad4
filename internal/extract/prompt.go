package extract

// The intake script asks six questions in a fixed order. Numbered
// option lists are part of the assistant's wording, so the legend below
// is given to the extractor verbatim: a bare "2" in a user turn resolves
// against the options of the question that preceded it.

const stageOptionsLegend = `stage question options: 1=idea, 2=validating, 3=building, 4=launched`
const timelineOptionsLegend = `timeline question options: 1=asap, 2=30days, 3=exploring`
const budgetOptionsLegend = `budget question options: 1=0, 2=under1k, 3=1k-5k, 4=5k+`

// stageByPosition etc. mirror the legends for in-code normalization of
// numeric shorthand the model passed through untranslated.
var (
	stageByPosition    = []string{"idea", "validating", "building", "launched"}
	timelineByPosition = []string{"asap", "30days", "exploring"}
	budgetByPosition   = []string{"0", "under1k", "1k-5k", "5k+"}
)

const extractSystemPrompt = `You extract structured lead data from a product-intake conversation.

Return ONLY a JSON object, no prose, no code fences, with exactly these keys (use null for anything not yet answered):
{"name": <string|null>, "email": <string|null>, "idea": <string|null>, "stage": <string|null>, "timeline": <string|null>, "budget": <string|null>, "target_user": <string|null>, "core_action": <string|null>, "features": <string|null>, "design_inspiration": <string|null>, "conversation_complete": <bool>}

Allowed enum values:
- stage: "idea", "validating", "building", "launched"
- timeline: "asap", "30days", "exploring"
- budget: "0", "under1k", "1k-5k", "5k+"

When the user answered a numbered question with a bare number, resolve it with this legend:
- ` + stageOptionsLegend + `
- ` + timelineOptionsLegend + `
- ` + budgetOptionsLegend + `

Set conversation_complete to true only when the assistant has wrapped up the conversation after all six questions were answered.`

const extractUserPrompt = `Conversation transcript:

%s

Extract the lead data as JSON.`
