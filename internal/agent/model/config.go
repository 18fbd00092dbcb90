package model

// ================ Config ================

// Orchestration modes. The fixed pipeline always gathers structured-data and
// document context before synthesizing; dispatch lets a model session pick a
// single specialist per turn.
const (
	ModePipeline = "pipeline"
	ModeDispatch = "dispatch"
)

type OrchestrationConfig struct {
	Mode string `envconfig:"ORCHESTRATION_MODE" default:"pipeline"`
}

// SpecialistConfig configures one specialist's model session and retry ceiling.
// MaxToolCalls <= 0 means "use the specialist's default ceiling".
type SpecialistConfig struct {
	Model        string  `default:"gemini-2.5-flash"`
	MaxTokens    int     `split_words:"true" default:"4000"`
	Temperature  float32 `default:"0.2"`
	MaxToolCalls int     `split_words:"true"`
}

type SynthesisConfig struct {
	Model       string  `envconfig:"SYNTHESIS_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"SYNTHESIS_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"SYNTHESIS_TEMPERATURE" default:"0.3"`
}

type GatewayConfig struct {
	QueryToolURL   string `envconfig:"QUERY_TOOL_URL" required:"true"`
	ProjectID      string `envconfig:"GCP_PROJECT_ID" required:"true"`
	DataStoreID    string `envconfig:"RAG_DATA_STORE_ID" required:"true"`
	CallTimeout    string `envconfig:"GATEWAY_CALL_TIMEOUT" default:"60s"`
	SearchEndpoint string `envconfig:"SEARCH_API_ENDPOINT" default:"discoveryengine.googleapis.com:443"`
}

// KnowledgeConfig points at the shared prompt context files: a free-text
// instructions document and a list of {question, sql} example pairs.
type KnowledgeConfig struct {
	InstructionsPath string `envconfig:"INSTRUCTIONS_PATH" default:"config/instructions.md"`
	ExamplesPath     string `envconfig:"SQL_EXAMPLES_PATH" default:"config/examples.json"`
}

type ConversationConfig struct {
	TTL string `envconfig:"CONVERSATION_TTL" default:"15m"`
}
