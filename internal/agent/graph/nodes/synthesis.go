package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	chatmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/resilitix/assistant/internal/agent/model"
	"github.com/resilitix/assistant/internal/agent/prompts"
	logx "github.com/resilitix/assistant/pkg/logger"
)

// Placeholders inserted when a specialist produced nothing usable. The
// synthesis model is instructed to say so rather than invent content.
const (
	NoSQLResultPlaceholder = "No SQL results available."
	NoRAGResultPlaceholder = "No RAG context available."
)

// SynthesisBlocks builds the two context blocks handed to the synthesis
// model. A present-but-errored specialist result degrades to the placeholder,
// exactly like an absent one.
func SynthesisBlocks(results []model.SpecialistResult) (sqlContext, ragContext string) {
	sqlContext = NoSQLResultPlaceholder
	ragContext = NoRAGResultPlaceholder

	for _, r := range results {
		if r.Failed() {
			continue
		}
		block, err := json.MarshalIndent(map[string]string{
			"query":  r.Query,
			"output": r.Output,
		}, "", "  ")
		if err != nil {
			continue
		}
		switch r.Name {
		case model.SpecialistSQL:
			sqlContext = string(block)
		case model.SpecialistDocs:
			ragContext = string(block)
		}
	}
	return sqlContext, ragContext
}

// NewSummarizeNode issues the single synthesis call and assembles the turn
// output from the accumulated state.
func NewSummarizeNode(cm chatmodel.ToolCallingChatModel, modelName string) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (*model.TurnOutput, error) {
		logx.Debug().Msg("Inside summarize node")

		var results []model.SpecialistResult
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			results = append(results, s.Results...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access state: %w", err)
		}

		sqlContext, ragContext := SynthesisBlocks(results)
		userPrompt, err := prompts.RenderSynthesisUser(ctx, in.Task, sqlContext, ragContext)
		if err != nil {
			return nil, err
		}

		out, err := cm.Generate(ctx, []*schema.Message{
			schema.SystemMessage(prompts.SynthesisSystem()),
			schema.UserMessage(userPrompt),
		})
		if err != nil {
			return nil, fmt.Errorf("synthesis call: %w", err)
		}
		recordSynthesisUsage(ctx, out, modelName)

		answer := strings.TrimSpace(out.Content)
		perr := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			s.Messages = append(s.Messages, schema.AssistantMessage(answer, nil))
			return nil
		})
		if perr != nil {
			return nil, fmt.Errorf("failed to access state: %w", perr)
		}

		return &model.TurnOutput{Answer: answer, Results: results}, nil
	})
}

func recordSynthesisUsage(ctx context.Context, out *schema.Message, modelName string) {
	if !model.CostEnabled() || out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return
	}
	usage := out.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
	logx.Debug().
		Str("node", NodeSummarize).
		Str("model", modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")

	perr := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
		s.TotalCostUSD += totalC
		return nil
	})
	if perr != nil {
		logx.Warn().Err(perr).Msg("Could not accumulate synthesis cost into state")
	}
}
