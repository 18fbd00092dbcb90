// Package llm builds the hosted-model chat sessions used by specialists, the
// synthesis step, and the dispatcher. One API client is shared; each session
// gets its own model configuration.
package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	chatmodel "github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/resilitix/assistant/internal/agent/model"
	logx "github.com/resilitix/assistant/pkg/logger"
)

// ClientConfig holds provider credentials.
type ClientConfig struct {
	APIKey  string
	BaseURL string
}

// Factory creates chat models off a shared provider client.
type Factory struct {
	client *genai.Client
}

// NewFactory creates the shared Gemini client.
func NewFactory(ctx context.Context, cfg ClientConfig) (*Factory, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return &Factory{client: client}, nil
}

// ChatModel creates one chat model session configuration. Every specialist
// invocation starts a fresh message history on top of it, so a session handle
// is never reused across turns.
func (f *Factory) ChatModel(ctx context.Context, modelName string, maxTokens int, temperature float32) (chatmodel.ToolCallingChatModel, error) {
	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      f.client,
		Model:       modelName,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Str("model", modelName).Msg("Error creating chat model")
		return nil, fmt.Errorf("error creating chat model %s: %w", modelName, err)
	}
	return cm, nil
}

// SpecialistChatModel creates the chat model for one specialist config.
func (f *Factory) SpecialistChatModel(ctx context.Context, cfg model.SpecialistConfig) (chatmodel.ToolCallingChatModel, error) {
	return f.ChatModel(ctx, cfg.Model, cfg.MaxTokens, cfg.Temperature)
}

// SynthesisChatModel creates the chat model for the synthesis step. It is
// never bound to tools; synthesis is a single plain-text call.
func (f *Factory) SynthesisChatModel(ctx context.Context, cfg model.SynthesisConfig) (chatmodel.ToolCallingChatModel, error) {
	return f.ChatModel(ctx, cfg.Model, cfg.MaxTokens, cfg.Temperature)
}
