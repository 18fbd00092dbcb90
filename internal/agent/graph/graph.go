// Package graph composes the fixed-pipeline orchestrator: structured-data
// query first, document search second, a deterministic branch into the
// geospatial specialist when the utterance calls for it, then one synthesis
// call over everything gathered.
package graph

import (
	"context"
	"fmt"
	"net/http"

	chatmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	"github.com/resilitix/assistant/internal/agent/conversations"
	"github.com/resilitix/assistant/internal/agent/graph/nodes"
	"github.com/resilitix/assistant/internal/agent/graph/observers"
	"github.com/resilitix/assistant/internal/agent/llm"
	"github.com/resilitix/assistant/internal/agent/model"
	"github.com/resilitix/assistant/internal/agent/specialists"
	errx "github.com/resilitix/assistant/internal/core/error"
	"github.com/resilitix/assistant/internal/gateway"
	logx "github.com/resilitix/assistant/pkg/logger"
)

// Runner executes one user turn start-to-finish. Turns are processed
// serially; there is no parallel specialist invocation.
type Runner interface {
	Invoke(ctx context.Context, in model.TurnInput) (*model.TurnOutput, error)
}

// Config holds everything needed to compose the pipeline end-to-end.
// This is a convenience layer over GraphConfig that also constructs the chat
// models and specialists.
type Config struct {
	Client       llm.ClientConfig
	SQLModel     model.SpecialistConfig
	DocsModel    model.SpecialistConfig
	GeoModel     model.SpecialistConfig
	Synthesis    model.SynthesisConfig
	Gateway      *gateway.Client
	SharedConfig string
	Transcripts  *conversations.Manager // optional
}

// GraphConfig holds the already-built components the graph wires together.
type GraphConfig struct {
	SQL                *specialists.SQL
	Docs               *specialists.Docs
	Geo                *specialists.Geo
	SynthesisModel     chatmodel.ToolCallingChatModel
	SynthesisModelName string
}

// GraphBuilder handles the construction of the orchestration graph.
type GraphBuilder struct {
	config *GraphConfig
	graph  *compose.Graph[model.TurnInput, *model.TurnOutput]
}

type graphRunner struct {
	runnable    compose.Runnable[model.TurnInput, *model.TurnOutput]
	transcripts *conversations.Manager
}

// Invoke runs one turn. This is the orchestrator's outermost boundary: any
// panic escaping a node is converted into a generic turn failure and the turn
// state is discarded, never retried automatically.
func (r *graphRunner) Invoke(ctx context.Context, in model.TurnInput) (out *model.TurnOutput, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logx.Error().Interface("panic", rec).Msg("Turn aborted by escaped panic")
			out = nil
			err = errx.New(fmt.Errorf("panic: %v", rec), http.StatusInternalServerError, errx.SystemErrorMessage)
		}
	}()

	out, err = r.runnable.Invoke(ctx, in, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		return nil, err
	}

	if r.transcripts != nil && in.ConversationID != "" {
		if rerr := r.transcripts.RecordTurn(ctx, in.ConversationID, in.Task, out.Answer); rerr != nil {
			logx.Error().Err(rerr).Str("conversation_id", in.ConversationID).Msg("Error saving turn transcript")
		}
	}
	return out, nil
}

// BuildPipeline constructs chat models and specialists from config, builds
// the graph, and returns a Runner.
func BuildPipeline(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("gateway client is nil")
	}

	factory, err := llm.NewFactory(ctx, cfg.Client)
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
	synthCM, err := factory.SynthesisChatModel(ctx, cfg.Synthesis)
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

	runnable, err := BuildGraph(ctx, &GraphConfig{
		SQL:                sql,
		Docs:               docs,
		Geo:                geo,
		SynthesisModel:     synthCM,
		SynthesisModelName: cfg.Synthesis.Model,
	})
	if err != nil {
		return nil, err
	}

	logx.Debug().Msg("Pipeline graph built successfully")
	return &graphRunner{runnable: runnable, transcripts: cfg.Transcripts}, nil
}

// NewRunner wraps an already-compiled graph, mainly for tests.
func NewRunner(runnable compose.Runnable[model.TurnInput, *model.TurnOutput], transcripts *conversations.Manager) Runner {
	return &graphRunner{runnable: runnable, transcripts: transcripts}
}

// BuildGraph constructs and compiles the orchestration graph.
func BuildGraph(ctx context.Context, config *GraphConfig) (compose.Runnable[model.TurnInput, *model.TurnOutput], error) {
	if config == nil {
		return nil, fmt.Errorf("graph config is nil")
	}
	if config.SQL == nil || config.Docs == nil || config.Geo == nil {
		return nil, fmt.Errorf("specialists are not properly initialized")
	}
	if config.SynthesisModel == nil {
		return nil, fmt.Errorf("synthesis model is nil")
	}

	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.TurnInput, *model.TurnOutput](
			compose.WithGenLocalState(func(ctx context.Context) *model.TurnState {
				return &model.TurnState{}
			}),
		),
	}

	builder.addNodes()
	builder.addEdges()

	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph.
func (b *GraphBuilder) addNodes() {
	b.graph.AddLambdaNode(nodes.NodeSQLAgent,
		nodes.NewSQLAgentNode(b.config.SQL),
		compose.WithStatePreHandler(nodes.NewTurnStatePreHandler()),
	)

	b.graph.AddLambdaNode(nodes.NodeRAGAgent,
		nodes.NewRAGAgentNode(b.config.Docs),
	)

	b.graph.AddLambdaNode(nodes.NodePlotAgent,
		nodes.NewPlotAgentNode(b.config.Geo),
	)

	b.graph.AddLambdaNode(nodes.NodeSummarize,
		nodes.NewSummarizeNode(b.config.SynthesisModel, b.config.SynthesisModelName),
	)
}

// addEdges creates the fixed flow connections between nodes.
func (b *GraphBuilder) addEdges() {
	edges := [][2]string{
		{compose.START, nodes.NodeSQLAgent},
		{nodes.NodeSQLAgent, nodes.NodeRAGAgent},
		{nodes.NodePlotAgent, nodes.NodeSummarize},
		{nodes.NodeSummarize, compose.END},
	}

	for _, edge := range edges {
		b.graph.AddEdge(edge[0], edge[1])
	}
}

// addBranches creates the conditional plot routing branch.
func (b *GraphBuilder) addBranches() error {
	plotBranch := compose.NewGraphBranch(
		nodes.NewPlotBranchCondition(),
		map[string]bool{
			nodes.NodePlotAgent: true,
			nodes.NodeSummarize: true,
		},
	)
	if err := b.graph.AddBranch(nodes.NodeRAGAgent, plotBranch); err != nil {
		logx.Error().Err(err).Msg("Error adding plot branch")
		return fmt.Errorf("error adding plot branch: %w", err)
	}
	return nil
}

// compile finalizes and compiles the graph.
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *model.TurnOutput], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(20))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}
