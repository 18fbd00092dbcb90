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

type queryArgs struct {
	Query string `json:"query"`
}

// SQL is the structured-data specialist: converts the user request into a
// Standard SQL query and executes it through the gateway, retrying on upstream
// errors up to its ceiling.
type SQL struct {
	sp     *specialist
	shared string
}

// NewSQL builds the structured-data specialist.
func NewSQL(ctx context.Context, cm chatmodel.ToolCallingChatModel, gw *gateway.Client, sharedConfig string, cfg model.SpecialistConfig) (*SQL, error) {
	sp, err := newSpecialist(ctx, model.SpecialistSQL, cm, newRunSQLTool(gw),
		normalizeMaxCalls(cfg.MaxToolCalls, DefaultSQLMaxCalls), cfg.Model)
	if err != nil {
		return nil, err
	}
	return &SQL{sp: sp, shared: sharedConfig}, nil
}

// Invoke runs one structured-data request.
func (s *SQL) Invoke(ctx context.Context, userQuery string) model.SpecialistResult {
	systemPrompt, err := prompts.RenderSQLSystem(ctx, s.shared)
	if err != nil {
		return model.SpecialistResult{Name: model.SpecialistSQL, Query: userQuery, Err: err.Error()}
	}
	return s.sp.run(ctx, systemPrompt, userQuery)
}

func newRunSQLTool(gw *gateway.Client) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{
			Name: model.ToolRunSQL,
			Desc: "Executes a Standard SQL query on the analytics dataset.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "The Standard SQL query to execute. Must begin with SELECT.",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *queryArgs) (*gateway.QueryResult, error) {
			return gw.RunStructuredQuery(ctx, in.Query), nil
		},
	)
}
