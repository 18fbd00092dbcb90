package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/resilitix/assistant/internal/agent/conversations"
	"github.com/resilitix/assistant/internal/agent/dispatch"
	"github.com/resilitix/assistant/internal/agent/graph"
	"github.com/resilitix/assistant/internal/agent/knowledge"
	"github.com/resilitix/assistant/internal/agent/llm"
	"github.com/resilitix/assistant/internal/agent/model"
	"github.com/resilitix/assistant/internal/core"
	errx "github.com/resilitix/assistant/internal/core/error"
	"github.com/resilitix/assistant/internal/gateway"
	"github.com/resilitix/assistant/internal/render"
	"github.com/resilitix/assistant/internal/repo"
	logx "github.com/resilitix/assistant/pkg/logger"
	pkgredis "github.com/resilitix/assistant/pkg/redis"
)

// AppConfig defines all configurable parameters for the assistant, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	// Infrastructure. An empty REDIS_URL keeps transcripts in process memory.
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Orchestration
	Orchestration model.OrchestrationConfig
	Dispatcher    model.SpecialistConfig
	SQL           model.SpecialistConfig
	Docs          model.SpecialistConfig
	Geo           model.SpecialistConfig
	Synthesis     model.SynthesisConfig

	// External services and prompt context
	Gateway      model.GatewayConfig
	Knowledge    model.KnowledgeConfig
	Conversation model.ConversationConfig
}

func main() {
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	sharedConfig := knowledge.Load(cfg.Knowledge)

	gwCfg, err := gateway.FromModel(cfg.Gateway)
	if err != nil {
		log.Fatalf("Invalid gateway config: %v", err)
	}
	gw := gateway.NewClient(gwCfg)

	transcripts, closeFn, err := buildTranscripts(cfg)
	if err != nil {
		log.Fatalf("Failed to initialise transcript store: %v", err)
	}
	defer closeFn()

	runner, err := buildRunner(ctx, cfg, gw, sharedConfig, transcripts)
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}

	runREPL(ctx, runner)
}

// buildTranscripts picks the transcript backend: Redis when configured,
// otherwise in-process memory.
func buildTranscripts(cfg AppConfig) (*conversations.Manager, func(), error) {
	if cfg.Redis.URL == "" {
		logx.Debug().Msg("No Redis URL configured, keeping transcripts in memory")
		return conversations.NewManager(repo.NewMemoryTranscriptRepository()), func() {}, nil
	}

	ttl, err := time.ParseDuration(cfg.Conversation.TTL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid CONVERSATION_TTL %q: %w", cfg.Conversation.TTL, err)
	}

	rdb, err := cfg.Redis.New()
	if err != nil {
		return nil, nil, err
	}
	return conversations.NewManager(repo.NewRedisTranscriptRepository(rdb, ttl)), func() { rdb.Close() }, nil
}

// buildRunner constructs the orchestrator for the configured mode.
func buildRunner(
	ctx context.Context,
	cfg AppConfig,
	gw *gateway.Client,
	sharedConfig string,
	transcripts *conversations.Manager,
) (graph.Runner, error) {
	client := llm.ClientConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL}

	switch cfg.Orchestration.Mode {
	case model.ModeDispatch:
		return dispatch.Build(ctx, dispatch.Config{
			Client:       client,
			Dispatcher:   cfg.Dispatcher,
			SQLModel:     cfg.SQL,
			DocsModel:    cfg.Docs,
			GeoModel:     cfg.Geo,
			Gateway:      gw,
			SharedConfig: sharedConfig,
			Transcripts:  transcripts,
		})
	case model.ModePipeline, "":
		return graph.BuildPipeline(ctx, graph.Config{
			Client:       client,
			SQLModel:     cfg.SQL,
			DocsModel:    cfg.Docs,
			GeoModel:     cfg.Geo,
			Synthesis:    cfg.Synthesis,
			Gateway:      gw,
			SharedConfig: sharedConfig,
			Transcripts:  transcripts,
		})
	default:
		return nil, fmt.Errorf("unknown orchestration mode %q", cfg.Orchestration.Mode)
	}
}

// runREPL reads user utterances line-by-line and prints the synthesized
// answer plus a map layer when the turn produced one.
func runREPL(ctx context.Context, runner graph.Runner) {
	conversationID := fmt.Sprintf("cli-%d", time.Now().Unix())
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("Data assistant ready. Type a question, or 'exit' to quit.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		task := strings.TrimSpace(scanner.Text())
		if task == "" {
			continue
		}
		if task == "exit" || task == "quit" {
			break
		}

		out, err := runner.Invoke(ctx, model.TurnInput{
			ConversationID: conversationID,
			Task:           task,
		})
		if err != nil {
			fmt.Println(failureMessage(err))
			continue
		}

		fmt.Println(out.Answer)
		printMapLayer(out)
	}
}

// failureMessage maps turn errors to their user-facing text without leaking
// internals.
func failureMessage(err error) string {
	var appErr *errx.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return errx.SystemErrorMessage
}

// printMapLayer renders the geospatial layer when the turn produced one.
// A turn without a geospatial result is the common case, not an error.
func printMapLayer(out *model.TurnOutput) {
	layer, err := render.FromTurnOutput(out)
	if err != nil {
		if !errors.Is(err, render.ErrNoGeoResult) {
			logx.Warn().Err(err).Msg("Geospatial result not renderable")
		}
		return
	}
	b, err := json.MarshalIndent(layer, "", "  ")
	if err != nil {
		logx.Warn().Err(err).Msg("Failed to encode map layer")
		return
	}
	fmt.Printf("[map layer: %d cells]\n%s\n", len(layer.Cells), string(b))
}
