package specialists

import (
	"context"

	chatmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/resilitix/assistant/internal/agent/model"
	"github.com/resilitix/assistant/internal/agent/prompts"
	"github.com/resilitix/assistant/internal/gateway"
)

// docsDefaultText is the output when the session never searched and produced
// no answer text.
const docsDefaultText = "No information found in the knowledge base."

// Docs is the document-search specialist: one retrieval round against the
// managed search service, then a final natural-language answer grounded in
// the returned summary.
type Docs struct {
	sp *specialist
}

// NewDocs builds the document-search specialist.
func NewDocs(ctx context.Context, cm chatmodel.ToolCallingChatModel, gw *gateway.Client, cfg model.SpecialistConfig) (*Docs, error) {
	sp, err := newSpecialist(ctx, model.SpecialistDocs, cm, newSearchTool(gw),
		normalizeMaxCalls(cfg.MaxToolCalls, DefaultDocsMaxCalls), cfg.Model)
	if err != nil {
		return nil, err
	}
	sp.finalFromText = true
	sp.defaultText = docsDefaultText
	return &Docs{sp: sp}, nil
}

// Invoke runs one document-search request.
func (d *Docs) Invoke(ctx context.Context, userQuery string) model.SpecialistResult {
	systemPrompt, err := prompts.RenderDocsSystem(ctx)
	if err != nil {
		return model.SpecialistResult{Name: model.SpecialistDocs, Query: userQuery, Err: err.Error()}
	}
	return d.sp.run(ctx, systemPrompt, userQuery)
}

func newSearchTool(gw *gateway.Client) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: model.ToolSearchKB,
			Desc: "Search the document knowledge base for contextual information and facts.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "The search query to find relevant document context.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *queryArgs) (*gateway.SearchResult, error) {
			return gw.SearchKnowledgeBase(ctx, in.Query), nil
		},
	)
}
