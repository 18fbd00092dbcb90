package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resilitix/assistant/internal/agent/conversations"
	"github.com/resilitix/assistant/internal/agent/llm/llmtest"
	"github.com/resilitix/assistant/internal/agent/model"
	"github.com/resilitix/assistant/internal/agent/specialists"
	"github.com/resilitix/assistant/internal/gateway"
	"github.com/resilitix/assistant/internal/repo"
)

type pipelineFixture struct {
	sqlCM   *llmtest.StubChatModel
	docsCM  *llmtest.StubChatModel
	geoCM   *llmtest.StubChatModel
	synthCM *llmtest.StubChatModel
	runner  Runner
}

func newPipelineFixture(t *testing.T, gatewayStatus int, gatewayPayload string, transcripts *conversations.Manager) *pipelineFixture {
	t.Helper()
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(gatewayStatus)
		fmt.Fprint(w, gatewayPayload)
	}))
	t.Cleanup(srv.Close)

	gw := gateway.NewClient(gateway.Config{
		QueryToolURL: srv.URL,
		ProjectID:    "proj",
		DataStoreID:  "store",
		CallTimeout:  5 * time.Second,
	}, gateway.WithTokenFunc(func(ctx context.Context, audience string) (string, error) {
		return "tok", nil
	}))

	f := &pipelineFixture{
		sqlCM:   llmtest.Script(),
		docsCM:  llmtest.Script(),
		geoCM:   llmtest.Script(),
		synthCM: llmtest.Script(),
	}

	cfg := model.SpecialistConfig{Model: "gemini-2.5-flash", MaxTokens: 4000, Temperature: 0.2}
	sql, err := specialists.NewSQL(ctx, f.sqlCM, gw, "shared config", cfg)
	require.NoError(t, err)
	docs, err := specialists.NewDocs(ctx, f.docsCM, gw, cfg)
	require.NoError(t, err)
	geo, err := specialists.NewGeo(ctx, f.geoCM, gw, "shared config", cfg)
	require.NoError(t, err)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		SQL:                sql,
		Docs:               docs,
		Geo:                geo,
		SynthesisModel:     f.synthCM,
		SynthesisModelName: "gemini-2.5-flash",
	})
	require.NoError(t, err)

	f.runner = NewRunner(runnable, transcripts)
	return f
}

func (f *pipelineFixture) script(cm *llmtest.StubChatModel, msgs ...*schema.Message) {
	cm.SetScript(msgs...)
}

func TestPipelineGeoBranch(t *testing.T) {
	f := newPipelineFixture(t, http.StatusOK, `{"data":[{"hex_id":"86489e2dfffffff","value":4}]}`, nil)

	const sqlQuery = "SELECT county, COUNT(*) AS n FROM analytics.facilities WHERE category = 'hospital' GROUP BY county"
	f.script(f.sqlCM,
		llmtest.ToolCallMessage("s1", model.ToolRunSQL, fmt.Sprintf(`{"query":%q}`, sqlQuery)),
		schema.AssistantMessage("done", nil),
	)
	f.script(f.docsCM,
		schema.AssistantMessage("Hospitals are classified under the 'hospital' category.", nil),
	)
	f.script(f.geoCM,
		llmtest.ToolCallMessage("g1", model.ToolRunMapSQL, `{"query":"SELECT hex_id, value FROM t"}`),
		schema.AssistantMessage("done", nil),
	)
	f.script(f.synthCM,
		schema.AssistantMessage("Brazos county has 4 hospitals; see the map.", nil),
	)

	out, err := f.runner.Invoke(context.Background(), model.TurnInput{
		ConversationID: "conv-1",
		Task:           "show hospitals by county in brazos county",
	})
	require.NoError(t, err)

	assert.Equal(t, "Brazos county has 4 hospitals; see the map.", out.Answer)

	require.Len(t, out.Results, 3)
	assert.Equal(t, model.SpecialistSQL, out.Results[0].Name)
	assert.Equal(t, model.SpecialistDocs, out.Results[1].Name)
	assert.Equal(t, model.SpecialistGeo, out.Results[2].Name)

	geoRes, ok := out.GeoResult()
	require.True(t, ok)
	assert.Contains(t, geoRes.Output, "86489e2dfffffff")

	// The geospatial session's system prompt carries the SQL query from state.
	require.NotEmpty(t, f.geoCM.Calls)
	geoSystem := f.geoCM.Calls[0][0]
	require.Equal(t, schema.System, geoSystem.Role)
	assert.Contains(t, geoSystem.Content, sqlQuery)
}

func TestPipelineSkipsGeoWhenNotRequested(t *testing.T) {
	f := newPipelineFixture(t, http.StatusOK, `{"data":[{"n":40}]}`, nil)

	f.script(f.sqlCM,
		llmtest.ToolCallMessage("s1", model.ToolRunSQL, `{"query":"SELECT COUNT(*) AS n FROM analytics.facilities"}`),
		schema.AssistantMessage("done", nil),
	)
	f.script(f.docsCM, schema.AssistantMessage("No additional context.", nil))
	f.script(f.synthCM, schema.AssistantMessage("There are 40 facilities.", nil))

	out, err := f.runner.Invoke(context.Background(), model.TurnInput{Task: "how many facilities are there"})
	require.NoError(t, err)

	assert.Equal(t, "There are 40 facilities.", out.Answer)
	require.Len(t, out.Results, 2)
	assert.Equal(t, 0, f.geoCM.CallCount())
	_, ok := out.GeoResult()
	assert.False(t, ok)
}

func TestPipelineFailedSQLDegradesToPlaceholder(t *testing.T) {
	f := newPipelineFixture(t, http.StatusOK, `{"data":[]}`, nil)

	// The SQL session answers in text without ever executing its capability,
	// which counts as a failed specialist.
	f.script(f.sqlCM, schema.AssistantMessage("I cannot query that.", nil))
	f.script(f.docsCM, schema.AssistantMessage("Some context.", nil))
	f.script(f.synthCM, schema.AssistantMessage("I don't have data for that.", nil))

	out, err := f.runner.Invoke(context.Background(), model.TurnInput{Task: "how many facilities are there"})
	require.NoError(t, err)

	require.Len(t, out.Results, 2)
	assert.True(t, out.Results[0].Failed())

	// Synthesis saw the placeholder, not fabricated data.
	require.NotEmpty(t, f.synthCM.Calls)
	synthUser := f.synthCM.Calls[0][1]
	assert.Contains(t, synthUser.Content, "No SQL results available.")
	assert.Contains(t, synthUser.Content, "Some context.")
}

func TestPipelineRecordsTranscript(t *testing.T) {
	transcripts := conversations.NewManager(repo.NewMemoryTranscriptRepository())
	f := newPipelineFixture(t, http.StatusOK, `{"data":[{"n":1}]}`, transcripts)

	f.script(f.sqlCM,
		llmtest.ToolCallMessage("s1", model.ToolRunSQL, `{"query":"SELECT 1"}`),
		schema.AssistantMessage("done", nil),
	)
	f.script(f.docsCM, schema.AssistantMessage("ctx", nil))
	f.script(f.synthCM, schema.AssistantMessage("One.", nil))

	_, err := f.runner.Invoke(context.Background(), model.TurnInput{
		ConversationID: "conv-t",
		Task:           "how many rows",
	})
	require.NoError(t, err)

	history, err := transcripts.History(context.Background(), "conv-t")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, schema.User, history[0].Role)
	assert.Equal(t, "how many rows", history[0].Content)
	assert.Equal(t, schema.Assistant, history[1].Role)
	assert.Equal(t, "One.", history[1].Content)
}
