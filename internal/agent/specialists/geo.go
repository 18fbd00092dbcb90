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

// Geo is the geospatial specialist: generates a query whose result carries a
// hex-grid cell column and a numeric value column for map rendering. The
// column contract is enforced at the prompt level; the rendering boundary
// validates the actual shape.
type Geo struct {
	sp     *specialist
	shared string
}

// NewGeo builds the geospatial specialist.
func NewGeo(ctx context.Context, cm chatmodel.ToolCallingChatModel, gw *gateway.Client, sharedConfig string, cfg model.SpecialistConfig) (*Geo, error) {
	sp, err := newSpecialist(ctx, model.SpecialistGeo, cm, newRunMapSQLTool(gw),
		normalizeMaxCalls(cfg.MaxToolCalls, DefaultGeoMaxCalls), cfg.Model)
	if err != nil {
		return nil, err
	}
	return &Geo{sp: sp, shared: sharedConfig}, nil
}

// Invoke runs one geospatial request. referenceQuery is the structured-data
// specialist's generated query for this turn (may be empty) so the session
// can build on prior filtering instead of starting from nothing.
func (g *Geo) Invoke(ctx context.Context, userQuery, referenceQuery string) model.SpecialistResult {
	systemPrompt, err := prompts.RenderGeoSystem(ctx, g.shared, referenceQuery)
	if err != nil {
		return model.SpecialistResult{Name: model.SpecialistGeo, Query: userQuery, Err: err.Error()}
	}
	return g.sp.run(ctx, systemPrompt, userQuery)
}

func newRunMapSQLTool(gw *gateway.Client) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: model.ToolRunMapSQL,
			Desc: "Executes SQL. Must return the 'hex_id' (H3 index) and a 'value' column.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "The Standard SQL query to execute. Must select a 'hex_id' column and a numeric 'value' column.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *queryArgs) (*gateway.QueryResult, error) {
			return gw.RunStructuredQuery(ctx, in.Query), nil
		},
	)
}
