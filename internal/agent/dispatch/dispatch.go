// Package dispatch implements the model-driven orchestration mode: a single
// dispatcher session analyzes the user request, delegates it to one
// specialist through a delegate capability, and phrases the specialist's
// output as the final answer. Unlike the fixed pipeline, routing decisions
// here belong to the model.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	chatmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/resilitix/assistant/internal/agent/conversations"
	"github.com/resilitix/assistant/internal/agent/llm"
	"github.com/resilitix/assistant/internal/agent/model"
	"github.com/resilitix/assistant/internal/agent/prompts"
	"github.com/resilitix/assistant/internal/agent/specialists"
	errx "github.com/resilitix/assistant/internal/core/error"
	"github.com/resilitix/assistant/internal/gateway"
	logx "github.com/resilitix/assistant/pkg/logger"
)

// DefaultMaxRounds bounds the dispatcher's own delegation loop.
const DefaultMaxRounds = 5

// defaultAnswer is returned when the dispatcher session ends without any
// usable answer text.
const defaultAnswer = "I'm not sure how to handle that request."

// Config holds everything needed to build the dispatcher end-to-end.
type Config struct {
	Client       llm.ClientConfig
	Dispatcher   model.SpecialistConfig
	SQLModel     model.SpecialistConfig
	DocsModel    model.SpecialistConfig
	GeoModel     model.SpecialistConfig
	Gateway      *gateway.Client
	SharedConfig string
	Transcripts  *conversations.Manager // optional
}

// Dispatcher is the single-dispatch orchestrator. It satisfies the same
// Invoke contract as the pipeline runner.
type Dispatcher struct {
	cm          chatmodel.ToolCallingChatModel // delegate tools already bound
	sql         *specialists.SQL
	docs        *specialists.Docs
	geo         *specialists.Geo
	store       *ContextStore
	transcripts *conversations.Manager
	modelName   string
	maxRounds   int
}

// requestArgs is the declared argument shape of every delegate capability.
type requestArgs struct {
	Request string `json:"request"`
}

// Build constructs chat models, specialists, and the dispatcher session.
func Build(ctx context.Context, cfg Config) (*Dispatcher, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway client is nil")
	}

	factory, err := llm.NewFactory(ctx, cfg.Client)
	if err != nil {
		return nil, err
	}

	dispCM, err := factory.SpecialistChatModel(ctx, cfg.Dispatcher)
	if err != nil {
		return nil, err
	}
	sqlCM, err := factory.SpecialistChatModel(ctx, cfg.SQLModel)
	if err != nil {
		return nil, err
	}
	docsCM, err := factory.SpecialistChatModel(ctx, cfg.DocsModel)
	if err != nil {
		return nil, err
	}
	geoCM, err := factory.SpecialistChatModel(ctx, cfg.GeoModel)
	if err != nil {
		return nil, err
	}

	sql, err := specialists.NewSQL(ctx, sqlCM, cfg.Gateway, cfg.SharedConfig, cfg.SQLModel)
	if err != nil {
		return nil, err
	}
	docs, err := specialists.NewDocs(ctx, docsCM, cfg.Gateway, cfg.DocsModel)
	if err != nil {
		return nil, err
	}
	geo, err := specialists.NewGeo(ctx, geoCM, cfg.Gateway, cfg.SharedConfig, cfg.GeoModel)
	if err != nil {
		return nil, err
	}

	return New(dispCM, sql, docs, geo, cfg.Dispatcher.Model, cfg.Transcripts)
}

// New wires an already-built chat model and specialists into a Dispatcher.
func New(
	cm chatmodel.ToolCallingChatModel,
	sql *specialists.SQL,
	docs *specialists.Docs,
	geo *specialists.Geo,
	modelName string,
	transcripts *conversations.Manager,
) (*Dispatcher, error) {
	bound, err := cm.WithTools(delegateToolInfos())
	if err != nil {
		return nil, fmt.Errorf("bind delegate tools: %w", err)
	}
	return &Dispatcher{
		cm:          bound,
		sql:         sql,
		docs:        docs,
		geo:         geo,
		store:       NewContextStore(),
		transcripts: transcripts,
		modelName:   modelName,
		maxRounds:   DefaultMaxRounds,
	}, nil
}

// Invoke runs one user turn through the dispatcher session.
func (d *Dispatcher) Invoke(ctx context.Context, in model.TurnInput) (out *model.TurnOutput, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logx.Error().Interface("panic", rec).Msg("Turn aborted by escaped panic")
			out = nil
			err = errx.New(fmt.Errorf("panic: %v", rec), http.StatusInternalServerError, errx.SystemErrorMessage)
		}
	}()

	d.store.Clear()

	msgs := []*schema.Message{
		schema.SystemMessage(prompts.DispatchSystem()),
		schema.UserMessage(in.Task),
	}

	var (
		results    []model.SpecialistResult
		final      *schema.Message
		rounds     int
		callIDSeq  int
		noticeSent bool
	)

	for {
		resp, gerr := d.cm.Generate(ctx, msgs)
		if gerr != nil {
			logx.Error().Err(gerr).Msg("Dispatcher model call failed")
			return nil, errx.New(gerr, http.StatusBadGateway, errx.SystemErrorMessage)
		}

		if len(resp.ToolCalls) == 0 || noticeSent {
			final = resp
			break
		}

		if rounds >= d.maxRounds {
			// Give the session one last chance to wrap up in text.
			msgs = append(msgs, resp, &schema.Message{
				Role: schema.System,
				Content: fmt.Sprintf(
					"SYSTEM NOTICE: You have reached the maximum delegation limit (%d). "+
						"Please synthesize a helpful response using the information you've already gathered. "+
						"Acknowledge any limitations in your response if you couldn't complete all necessary delegations.",
					d.maxRounds,
				),
			})
			noticeSent = true
			continue
		}

		msgs = append(msgs, resp)
		for i := range resp.ToolCalls {
			call := &resp.ToolCalls[i]
			if strings.TrimSpace(call.ID) == "" {
				callIDSeq++
				call.ID = fmt.Sprintf("call_%d", callIDSeq)
			}
			payload, res := d.delegate(ctx, call)
			if res != nil {
				results = append(results, *res)
			}
			msgs = append(msgs, schema.ToolMessage(payload, call.ID))
		}
		rounds++
	}

	answer := strings.TrimSpace(final.Content)
	if answer == "" {
		answer = defaultAnswer
	}

	logx.Debug().
		Int("delegation_rounds", rounds).
		Int("results", len(results)).
		Msg("Dispatcher session finished")

	out = &model.TurnOutput{Answer: answer, Results: results}

	if d.transcripts != nil && in.ConversationID != "" {
		if rerr := d.transcripts.RecordTurn(ctx, in.ConversationID, in.Task, out.Answer); rerr != nil {
			logx.Error().Err(rerr).Str("conversation_id", in.ConversationID).Msg("Error saving turn transcript")
		}
	}
	return out, nil
}

// delegate routes one delegate-capability request to its specialist. The
// returned payload is fed back into the dispatcher session; the result (nil
// for rejected requests) is collected for the presentation boundary.
func (d *Dispatcher) delegate(ctx context.Context, call *schema.ToolCall) (string, *model.SpecialistResult) {
	request, err := extractRequestArgument(call.Function.Arguments)
	if err != nil {
		logx.Warn().
			Str("tool_name", call.Function.Name).
			Str("arguments", call.Function.Arguments).
			Err(err).
			Msg("Delegate arguments rejected")
		return errPayload(fmt.Sprintf("invalid arguments for %s: %v", call.Function.Name, err)), nil
	}

	logx.Debug().Str("tool_name", call.Function.Name).Str("request", request).Msg("Delegating to specialist")

	var res model.SpecialistResult
	switch call.Function.Name {
	case model.ToolCallSQL:
		res = d.sql.Invoke(ctx, request)
		if !res.Failed() {
			d.store.Put(res.Query)
		}
	case model.ToolCallRAG:
		res = d.docs.Invoke(ctx, request)
	case model.ToolCallMap:
		res = d.geo.Invoke(ctx, request, d.store.Get())
	default:
		logx.Warn().Str("tool_name", call.Function.Name).Msg("Unknown delegate capability requested")
		return errPayload(fmt.Sprintf("unknown capability %q", call.Function.Name)), nil
	}

	return resultPayload(res), &res
}

func resultPayload(res model.SpecialistResult) string {
	if res.Failed() {
		return errPayload(res.Err)
	}
	b, _ := json.Marshal(map[string]string{
		"query":  res.Query,
		"output": res.Output,
	})
	return string(b)
}

func errPayload(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

// extractRequestArgument validates the single declared argument: a required,
// non-empty string field named "request".
func extractRequestArgument(arguments string) (string, error) {
	var args map[string]any
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	raw, ok := args["request"]
	if !ok {
		return "", fmt.Errorf("missing required field %q", "request")
	}
	request, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("field %q must be a string", "request")
	}
	request = strings.TrimSpace(request)
	if request == "" {
		return "", fmt.Errorf("field %q must not be empty", "request")
	}
	return request, nil
}

func delegateToolInfos() []*schema.ToolInfo {
	requestParam := func(desc string) map[string]*schema.ParameterInfo {
		return map[string]*schema.ParameterInfo{
			"request": {
				Type:     "string",
				Desc:     desc,
				Required: true,
			},
		}
	}
	return []*schema.ToolInfo{
		{
			Name:        model.ToolCallSQL,
			Desc:        "Delegate a structured-data question to the SQL specialist. Use for counts, aggregates, and tabular lookups.",
			ParamsOneOf: schema.NewParamsOneOfByParams(requestParam("The user's data question, phrased as a standalone request.")),
		},
		{
			Name:        model.ToolCallRAG,
			Desc:        "Delegate a contextual or documentation question to the knowledge-base specialist.",
			ParamsOneOf: schema.NewParamsOneOfByParams(requestParam("The user's question, phrased as a standalone request.")),
		},
		{
			Name:        model.ToolCallMap,
			Desc:        "Delegate a map or geographic visualization request to the geospatial specialist.",
			ParamsOneOf: schema.NewParamsOneOfByParams(requestParam("The user's map request, phrased as a standalone request.")),
		},
	}
}
