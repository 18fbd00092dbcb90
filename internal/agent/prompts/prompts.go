// Package prompts renders the embedded system/user prompt templates through
// the Eino prompt component so prompt callbacks fire on every render.
package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/resilitix/assistant/internal/agent/model"
)

//go:embed template/sql_system.txt
var sqlSystemPrompt string

//go:embed template/docs_system.txt
var docsSystemPrompt string

//go:embed template/geo_system.txt
var geoSystemPrompt string

//go:embed template/synthesis_system.txt
var synthesisSystemPrompt string

//go:embed template/synthesis_user.txt
var synthesisUserPrompt string

//go:embed template/dispatch_system.txt
var dispatchSystemPrompt string

// RenderSQLSystem renders the structured-data specialist's system prompt with
// the shared instructions/examples context spliced in verbatim.
func RenderSQLSystem(ctx context.Context, sharedConfig string) (string, error) {
	return renderSystem(ctx, sqlSystemPrompt, map[string]any{
		"SharedConfig": sharedConfig,
		"Tool":         model.ToolRunSQL,
	})
}

// RenderDocsSystem renders the document-search specialist's system prompt.
func RenderDocsSystem(ctx context.Context) (string, error) {
	return renderSystem(ctx, docsSystemPrompt, map[string]any{
		"Tool": model.ToolSearchKB,
	})
}

// RenderGeoSystem renders the geospatial specialist's system prompt.
// referenceQuery is the structured-data specialist's generated query for this
// turn (may be empty) so the specialist can build on prior filtering.
func RenderGeoSystem(ctx context.Context, sharedConfig, referenceQuery string) (string, error) {
	return renderSystem(ctx, geoSystemPrompt, map[string]any{
		"SharedConfig":   sharedConfig,
		"ReferenceQuery": referenceQuery,
		"Tool":           model.ToolRunMapSQL,
	})
}

// SynthesisSystem returns the strict non-fabrication synthesis instruction.
func SynthesisSystem() string {
	return synthesisSystemPrompt
}

// DispatchSystem returns the single-dispatch orchestrator instruction.
func DispatchSystem() string {
	return dispatchSystemPrompt
}

// RenderSynthesisUser renders the synthesis step's user message from the
// accumulated specialist blocks.
func RenderSynthesisUser(ctx context.Context, question, sqlContext, ragContext string) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.UserMessage(synthesisUserPrompt),
	)
	msgs, err := tpl.Format(ctx, map[string]any{
		"Question":   question,
		"SQLContext": sqlContext,
		"RAGContext": ragContext,
	})
	if err != nil {
		return "", fmt.Errorf("synthesis prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("synthesis prompt render: empty result")
	}
	return msgs[0].Content, nil
}

func renderSystem(ctx context.Context, template string, vars map[string]any) (string, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(template),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0].Content, nil
}
