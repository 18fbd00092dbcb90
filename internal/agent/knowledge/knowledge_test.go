package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resilitix/assistant/internal/agent/model"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadBothFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := model.KnowledgeConfig{
		InstructionsPath: writeFile(t, dir, "instructions.md", "# Tables\n- analytics.facilities"),
		ExamplesPath: writeFile(t, dir, "examples.json",
			`[{"question":"How many hospitals?","sql":"SELECT COUNT(*) FROM analytics.facilities"}]`),
	}

	got := Load(cfg)

	assert.Contains(t, got, "analytics.facilities")
	assert.Contains(t, got, "### SQL Few-Shot Examples:")
	assert.Contains(t, got, "User: How many hospitals?")
	assert.Contains(t, got, "SQL: SELECT COUNT(*) FROM analytics.facilities")
}

func TestLoadMissingInstructionsFallsBack(t *testing.T) {
	dir := t.TempDir()
	cfg := model.KnowledgeConfig{
		InstructionsPath: filepath.Join(dir, "nope.md"),
		ExamplesPath:     filepath.Join(dir, "nope.json"),
	}

	got := Load(cfg)

	assert.Contains(t, got, DefaultInstructions)
	assert.NotContains(t, got, "### SQL Few-Shot Examples:")
}

func TestLoadMalformedExamplesDegrades(t *testing.T) {
	dir := t.TempDir()
	cfg := model.KnowledgeConfig{
		InstructionsPath: writeFile(t, dir, "instructions.md", "real instructions"),
		ExamplesPath:     writeFile(t, dir, "examples.json", `{"not":"a list"}`),
	}

	got := Load(cfg)

	assert.Contains(t, got, "real instructions")
	assert.NotContains(t, got, "### SQL Few-Shot Examples:")
}

func TestLoadEmptyExampleList(t *testing.T) {
	dir := t.TempDir()
	cfg := model.KnowledgeConfig{
		InstructionsPath: writeFile(t, dir, "instructions.md", "instructions"),
		ExamplesPath:     writeFile(t, dir, "examples.json", `[]`),
	}

	got := Load(cfg)

	assert.Contains(t, got, "instructions")
	assert.NotContains(t, got, "### SQL Few-Shot Examples:")
}
