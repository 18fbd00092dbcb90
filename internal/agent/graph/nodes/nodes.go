package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/resilitix/assistant/internal/agent/model"
	"github.com/resilitix/assistant/internal/agent/specialists"
	logx "github.com/resilitix/assistant/pkg/logger"
)

// Node names of the fixed pipeline.
const (
	NodeSQLAgent  = "sql_agent"
	NodeRAGAgent  = "rag_agent"
	NodePlotAgent = "plot_agent"
	NodeSummarize = "summarize_agent"
)

// NewTurnStatePreHandler initializes the per-turn state when the turn enters
// the pipeline.
func NewTurnStatePreHandler() func(context.Context, model.TurnInput, *model.TurnState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.TurnState) (model.TurnInput, error) {
		s.ConversationID = in.ConversationID
		s.Task = in.Task
		s.Results = nil
		s.TotalCostUSD = 0
		s.Messages = []*schema.Message{schema.UserMessage(in.Task)}
		return in, nil
	}
}

// NewSQLAgentNode invokes the structured-data specialist and records its
// result. A failed result is recorded too; downstream treats it as "no
// information available", never as a turn-fatal condition.
func NewSQLAgentNode(sql *specialists.SQL) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (model.TurnInput, error) {
		logx.Debug().Str("task", in.Task).Msg("Inside SQL agent node")
		result := sql.Invoke(ctx, in.Task)
		return in, recordResult(ctx, result)
	})
}

// NewRAGAgentNode invokes the document-search specialist.
func NewRAGAgentNode(docs *specialists.Docs) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (model.TurnInput, error) {
		logx.Debug().Str("task", in.Task).Msg("Inside RAG agent node")
		result := docs.Invoke(ctx, in.Task)
		return in, recordResult(ctx, result)
	})
}

// NewPlotAgentNode invokes the geospatial specialist, handing it the
// structured-data specialist's generated query as contextual reference.
func NewPlotAgentNode(geo *specialists.Geo) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (model.TurnInput, error) {
		logx.Debug().Str("task", in.Task).Msg("Inside plot agent node")

		var referenceQuery string
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			if r, ok := s.ResultFor(model.SpecialistSQL); ok && !r.Failed() {
				referenceQuery = r.Query
			}
			return nil
		})
		if err != nil {
			return in, fmt.Errorf("failed to access state: %w", err)
		}

		result := geo.Invoke(ctx, in.Task, referenceQuery)
		return in, recordResult(ctx, result)
	})
}

// recordResult appends a specialist result and its transcript entry to the
// turn state.
func recordResult(ctx context.Context, result model.SpecialistResult) error {
	return compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
		s.Results = append(s.Results, result)
		if result.Failed() {
			s.Messages = append(s.Messages, schema.AssistantMessage("Error: "+result.Err, nil))
		} else {
			s.Messages = append(s.Messages,
				schema.AssistantMessage(fmt.Sprintf("%s query: %s\nOutput:\n%s", result.Name, result.Query, result.Output), nil))
		}
		return nil
	})
}
