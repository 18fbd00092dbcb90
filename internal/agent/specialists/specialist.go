// Package specialists implements the three narrowly-scoped conversational
// sessions: structured-data query, document retrieval, and geospatial query.
// All three share one behavioral loop: send the user query to a dedicated
// model session, execute the session's capability requests against the tool
// gateway, feed each result back into the session so the model can
// self-correct, and stop when the model answers in text or the round ceiling
// is hit.
package specialists

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	chatmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/resilitix/assistant/internal/agent/model"
	errx "github.com/resilitix/assistant/internal/core/error"
	logx "github.com/resilitix/assistant/pkg/logger"
)

// Default retry ceilings per specialist. Configurable, not universal.
const (
	DefaultSQLMaxCalls  = 10
	DefaultDocsMaxCalls = 5
	DefaultGeoMaxCalls  = 5
)

// specialist is the shared session shape. A specialist is bound to exactly
// one capability and used for exactly one user request per invocation; the
// message history never carries across turns.
type specialist struct {
	name      string
	toolName  string
	cm        chatmodel.ToolCallingChatModel // tool already bound
	tl        tool.InvokableTool
	maxRounds int
	modelName string

	// finalFromText accepts a text-only model response as the result
	// (document-search produces a final natural-language answer).
	finalFromText bool
	// defaultText is the output when the model never invoked its capability
	// and produced no text (document-search only).
	defaultText string
}

func newSpecialist(
	ctx context.Context,
	name string,
	cm chatmodel.ToolCallingChatModel,
	tl tool.InvokableTool,
	maxRounds int,
	modelName string,
) (*specialist, error) {
	info, err := tl.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("tool info for %s: %w", name, err)
	}
	bound, err := cm.WithTools([]*schema.ToolInfo{info})
	if err != nil {
		return nil, fmt.Errorf("bind tool to %s: %w", name, err)
	}
	return &specialist{
		name:      name,
		toolName:  info.Name,
		cm:        bound,
		tl:        tl,
		maxRounds: maxRounds,
		modelName: modelName,
	}, nil
}

// run drives one bounded capability loop. The session moves through
// awaiting-decision -> executing-capability cycles until the model stops
// requesting its capability (done) or the ceiling is hit (exhausted).
func (s *specialist) run(ctx context.Context, systemPrompt, userQuery string) model.SpecialistResult {
	res := model.SpecialistResult{Name: s.name, Query: userQuery}

	msgs := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userQuery),
	}

	var (
		generatedQuery string
		lastToolOutput string
		final          *schema.Message
		toolRounds     int
		callIDSeq      int
		totalCostUSD   float64
	)

	for {
		out, err := s.cm.Generate(ctx, msgs)
		if err != nil {
			logx.Error().Err(err).Str("specialist", s.name).Msg("Model call failed")
			res.Err = fmt.Sprintf("%s internal error: %v", s.name, err)
			return res
		}
		totalCostUSD += s.recordUsage(out)

		if len(out.ToolCalls) == 0 {
			final = out
			break
		}

		if toolRounds >= s.maxRounds {
			logx.Warn().
				Str("specialist", s.name).
				Int("tool_rounds", toolRounds).
				Int("max_rounds", s.maxRounds).
				Msg("Capability loop exhausted")
			res.Err = errx.LoopExhaustedMessage
			return res
		}

		msgs = append(msgs, out)
		for i := range out.ToolCalls {
			call := &out.ToolCalls[i]
			if strings.TrimSpace(call.ID) == "" {
				// Synthesize an id when the provider omits one.
				callIDSeq++
				call.ID = fmt.Sprintf("call_%d", callIDSeq)
			}
			toolOutput, query := s.execute(ctx, call)
			if query != "" {
				generatedQuery = query
				lastToolOutput = toolOutput
			}
			msgs = append(msgs, schema.ToolMessage(toolOutput, call.ID))
		}
		toolRounds++
	}

	logx.Debug().
		Str("specialist", s.name).
		Int("tool_rounds", toolRounds).
		Float64("total_cost_usd", totalCostUSD).
		Msg("Specialist session finished")

	if s.finalFromText {
		text := strings.TrimSpace(final.Content)
		if text == "" {
			text = s.defaultText
		}
		res.Output = text
		return res
	}

	// Structured specialists must have executed their capability at least once.
	if generatedQuery == "" {
		logx.Warn().Str("specialist", s.name).Msg("Session ended without invoking its capability")
		res.Err = errx.LoopExhaustedMessage
		return res
	}

	res.Query = generatedQuery
	res.Output = lastToolOutput
	return res
}

// execute validates and dispatches one capability-invocation request.
// Returns the payload to feed back into the session and, when the capability
// was actually dispatched, the query argument that was executed.
func (s *specialist) execute(ctx context.Context, call *schema.ToolCall) (string, string) {
	if call.Function.Name != s.toolName {
		// Hallucinated capability name; feed a structured error back instead
		// of failing the session.
		logx.Warn().
			Str("specialist", s.name).
			Str("tool_name", call.Function.Name).
			Msg("Unknown capability requested")
		return errPayload(fmt.Sprintf("unknown capability %q, only %q is available", call.Function.Name, s.toolName)), ""
	}

	query, err := extractQueryArgument(call.Function.Arguments)
	if err != nil {
		// Declared schema not honored: do not dispatch, synthesize a local
		// error the model can correct against.
		logx.Warn().
			Str("specialist", s.name).
			Str("arguments", call.Function.Arguments).
			Err(err).
			Msg("Capability arguments rejected")
		return errPayload(fmt.Sprintf("invalid arguments for %s: %v", s.toolName, err)), ""
	}

	logx.Debug().Str("specialist", s.name).Str("query", query).Msg("Executing capability")

	args, _ := json.Marshal(map[string]string{"query": query})
	out, err := s.tl.InvokableRun(ctx, string(args))
	if err != nil {
		// Gateway-backed tools fold failures into their payloads, so this
		// only fires on marshaling problems inside the tool wrapper.
		return errPayload(err.Error()), ""
	}
	return out, query
}

// recordUsage logs token usage and returns the USD cost of one model call.
func (s *specialist) recordUsage(out *schema.Message) float64 {
	if !model.CostEnabled() || out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
		return 0
	}
	usage := out.ResponseMeta.Usage
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(s.modelName))
	logx.Debug().
		Str("specialist", s.name).
		Str("model", s.modelName).
		Int("prompt_tokens", usage.PromptTokens).
		Int("completion_tokens", usage.CompletionTokens).
		Int("total_tokens", usage.TotalTokens).
		Float64("input_cost_usd", inC).
		Float64("output_cost_usd", outC).
		Float64("total_cost_usd", totalC).
		Msg("LLM usage")
	return totalC
}

// extractQueryArgument validates the single declared argument: a required,
// non-empty string field named "query".
func extractQueryArgument(arguments string) (string, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	raw, ok := args["query"]
	if !ok {
		return "", fmt.Errorf("missing required field %q", "query")
	}
	query, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("field %q must be a string", "query")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("field %q must not be empty", "query")
	}
	return query, nil
}

func errPayload(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

// normalizeMaxCalls returns the specialist default when the configured value
// is unset or invalid.
func normalizeMaxCalls(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}
