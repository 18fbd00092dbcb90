// Package knowledge assembles the shared prompt context every SQL-generating
// specialist receives: a free-text instructions document (table schemas, query
// rules) concatenated with few-shot {question, sql} example pairs.
package knowledge

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/resilitix/assistant/internal/agent/model"
	logx "github.com/resilitix/assistant/pkg/logger"
)

// DefaultInstructions is used when the instructions document is missing, so
// the assistant can still start with a generic analyst persona.
const DefaultInstructions = "You are a helpful data assistant."

// Example is one few-shot pair shown verbatim to the model.
type Example struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

// Load builds the shared config string. Missing files are not fatal; they
// degrade to the default persona / no examples, matching the runtime contract
// that these inputs are owned by an external collaborator.
func Load(cfg model.KnowledgeConfig) string {
	instructions := DefaultInstructions
	if b, err := os.ReadFile(cfg.InstructionsPath); err == nil {
		instructions = string(b)
	} else {
		logx.Warn().Err(err).Str("path", cfg.InstructionsPath).Msg("instructions document not found, using default")
	}

	examples, err := loadExamples(cfg.ExamplesPath)
	if err != nil {
		logx.Warn().Err(err).Str("path", cfg.ExamplesPath).Msg("sql examples not loaded")
		return instructions
	}

	return instructions + "\n" + formatExamples(examples)
}

func loadExamples(path string) ([]Example, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var examples []Example
	if err := json.Unmarshal(b, &examples); err != nil {
		return nil, err
	}
	return examples, nil
}

func formatExamples(examples []Example) string {
	if len(examples) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n### SQL Few-Shot Examples:\n")
	for _, ex := range examples {
		b.WriteString("User: " + ex.Question + "\n")
		b.WriteString("SQL: " + ex.SQL + "\n\n")
	}
	return b.String()
}
