package dispatch

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

	"github.com/resilitix/assistant/internal/agent/llm/llmtest"
	"github.com/resilitix/assistant/internal/agent/model"
	"github.com/resilitix/assistant/internal/agent/specialists"
	"github.com/resilitix/assistant/internal/gateway"
)

func newTestGateway(t *testing.T, payload string) *gateway.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, payload)
	}))
	t.Cleanup(srv.Close)

	return gateway.NewClient(gateway.Config{
		QueryToolURL: srv.URL,
		ProjectID:    "proj",
		DataStoreID:  "store",
		CallTimeout:  5 * time.Second,
	}, gateway.WithTokenFunc(func(ctx context.Context, audience string) (string, error) {
		return "tok", nil
	}))
}

func newTestSpecialists(
	t *testing.T,
	gw *gateway.Client,
	sqlCM, docsCM, geoCM *llmtest.StubChatModel,
) (*specialists.SQL, *specialists.Docs, *specialists.Geo) {
	t.Helper()
	ctx := context.Background()
	cfg := model.SpecialistConfig{Model: "gemini-2.5-flash", MaxTokens: 4000, Temperature: 0.2}

	sql, err := specialists.NewSQL(ctx, sqlCM, gw, "shared config", cfg)
	require.NoError(t, err)
	docs, err := specialists.NewDocs(ctx, docsCM, gw, cfg)
	require.NoError(t, err)
	geo, err := specialists.NewGeo(ctx, geoCM, gw, "shared config", cfg)
	require.NoError(t, err)
	return sql, docs, geo
}

func TestDispatcherDelegatesToSQLSpecialist(t *testing.T) {
	gw := newTestGateway(t, `{"data":[{"hospital_count":12}]}`)

	sqlCM := llmtest.Script(
		llmtest.ToolCallMessage("s1", model.ToolRunSQL, `{"query":"SELECT COUNT(*) FROM analytics.facilities WHERE category = 'hospital'"}`),
		schema.AssistantMessage("done", nil),
	)
	docsCM := llmtest.Script()
	geoCM := llmtest.Script()
	sql, docs, geo := newTestSpecialists(t, gw, sqlCM, docsCM, geoCM)

	dispCM := llmtest.Script(
		llmtest.ToolCallMessage("d1", model.ToolCallSQL, `{"request":"how many hospitals are there"}`),
		schema.AssistantMessage("There are 12 hospitals.", nil),
	)
	d, err := New(dispCM, sql, docs, geo, "gemini-2.5-flash", nil)
	require.NoError(t, err)

	out, err := d.Invoke(context.Background(), model.TurnInput{ConversationID: "c1", Task: "how many hospitals are there"})
	require.NoError(t, err)

	assert.Equal(t, "There are 12 hospitals.", out.Answer)
	require.Len(t, out.Results, 1)
	assert.Equal(t, model.SpecialistSQL, out.Results[0].Name)
	assert.False(t, out.Results[0].Failed())

	// The dispatcher session saw the specialist's payload as a tool message.
	finalInput := dispCM.Calls[len(dispCM.Calls)-1]
	last := finalInput[len(finalInput)-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Contains(t, last.Content, "hospital_count")

	// The specialist saw the dispatcher's rephrased request, not raw arguments.
	require.NotEmpty(t, sqlCM.Calls)
	assert.Equal(t, "how many hospitals are there", sqlCM.Calls[0][1].Content)
}

func TestDispatcherThreadsQueryToGeoSpecialist(t *testing.T) {
	gw := newTestGateway(t, `{"data":[{"hex_id":"abc","value":1}]}`)

	const sqlQuery = "SELECT county, COUNT(*) FROM analytics.facilities GROUP BY county"
	sqlCM := llmtest.Script(
		llmtest.ToolCallMessage("s1", model.ToolRunSQL, fmt.Sprintf(`{"query":%q}`, sqlQuery)),
		schema.AssistantMessage("done", nil),
	)
	docsCM := llmtest.Script()
	geoCM := llmtest.Script(
		llmtest.ToolCallMessage("g1", model.ToolRunMapSQL, `{"query":"SELECT hex_id, value FROM t"}`),
		schema.AssistantMessage("done", nil),
	)
	sql, docs, geo := newTestSpecialists(t, gw, sqlCM, docsCM, geoCM)

	dispCM := llmtest.Script(
		llmtest.ToolCallMessage("d1", model.ToolCallSQL, `{"request":"facilities by county"}`),
		llmtest.ToolCallMessage("d2", model.ToolCallMap, `{"request":"map them"}`),
		schema.AssistantMessage("Here is the map.", nil),
	)
	d, err := New(dispCM, sql, docs, geo, "gemini-2.5-flash", nil)
	require.NoError(t, err)

	out, err := d.Invoke(context.Background(), model.TurnInput{Task: "show facilities by county on a map"})
	require.NoError(t, err)
	require.Len(t, out.Results, 2)

	// The geo session's system prompt carries the SQL specialist's query.
	require.NotEmpty(t, geoCM.Calls)
	geoSystem := geoCM.Calls[0][0]
	require.Equal(t, schema.System, geoSystem.Role)
	assert.Contains(t, geoSystem.Content, sqlQuery)

	_, ok := out.GeoResult()
	assert.True(t, ok)
}

func TestDispatcherContextStoreClearedPerTurn(t *testing.T) {
	gw := newTestGateway(t, `{"data":[{"hex_id":"abc","value":1}]}`)

	sqlCM := llmtest.Script(
		llmtest.ToolCallMessage("s1", model.ToolRunSQL, `{"query":"SELECT 1"}`),
		schema.AssistantMessage("done", nil),
	)
	docsCM := llmtest.Script()
	geoCM := llmtest.Script(
		llmtest.ToolCallMessage("g1", model.ToolRunMapSQL, `{"query":"SELECT hex_id, value FROM t"}`),
		schema.AssistantMessage("done", nil),
	)
	sql, docs, geo := newTestSpecialists(t, gw, sqlCM, docsCM, geoCM)

	dispCM := llmtest.Script(
		llmtest.ToolCallMessage("d1", model.ToolCallSQL, `{"request":"count"}`),
		schema.AssistantMessage("counted", nil),
		llmtest.ToolCallMessage("d2", model.ToolCallMap, `{"request":"map it"}`),
		schema.AssistantMessage("mapped", nil),
	)
	d, err := New(dispCM, sql, docs, geo, "gemini-2.5-flash", nil)
	require.NoError(t, err)

	_, err = d.Invoke(context.Background(), model.TurnInput{Task: "count things"})
	require.NoError(t, err)

	// Second turn: the geo specialist must not see the previous turn's query.
	_, err = d.Invoke(context.Background(), model.TurnInput{Task: "map things"})
	require.NoError(t, err)

	geoSystem := geoCM.Calls[0][0]
	assert.NotContains(t, geoSystem.Content, "SELECT 1")
}

func TestDispatcherDefaultAnswerWhenSessionSaysNothing(t *testing.T) {
	gw := newTestGateway(t, `{"data":[]}`)
	sql, docs, geo := newTestSpecialists(t, gw, llmtest.Script(), llmtest.Script(), llmtest.Script())

	dispCM := llmtest.Script(schema.AssistantMessage("", nil))
	d, err := New(dispCM, sql, docs, geo, "gemini-2.5-flash", nil)
	require.NoError(t, err)

	out, err := d.Invoke(context.Background(), model.TurnInput{Task: "???"})
	require.NoError(t, err)
	assert.Equal(t, defaultAnswer, out.Answer)
	assert.Empty(t, out.Results)
}

func TestDispatcherWrapsUpAtDelegationCeiling(t *testing.T) {
	gw := newTestGateway(t, `{"data":[]}`)
	sql, docs, geo := newTestSpecialists(t, gw, llmtest.Script(), llmtest.Script(), llmtest.Script())

	// Every delegation carries invalid arguments, so nothing ever reaches a
	// specialist and the session keeps trying until the ceiling.
	responses := make([]*schema.Message, 0, DefaultMaxRounds+2)
	for i := 0; i <= DefaultMaxRounds; i++ {
		responses = append(responses, llmtest.ToolCallMessage(fmt.Sprintf("d%d", i), model.ToolCallRAG, `{}`))
	}
	responses = append(responses, schema.AssistantMessage("I could not gather everything needed.", nil))

	dispCM := llmtest.Script(responses...)
	d, err := New(dispCM, sql, docs, geo, "gemini-2.5-flash", nil)
	require.NoError(t, err)

	out, err := d.Invoke(context.Background(), model.TurnInput{Task: "looping request"})
	require.NoError(t, err)
	assert.Equal(t, "I could not gather everything needed.", out.Answer)

	// The final model call was preceded by the wrap-up notice.
	finalInput := dispCM.Calls[len(dispCM.Calls)-1]
	var sawNotice bool
	for _, m := range finalInput {
		if m.Role == schema.System && m.Content != "" && m != finalInput[0] {
			assert.Contains(t, m.Content, "SYSTEM NOTICE")
			sawNotice = true
		}
	}
	assert.True(t, sawNotice, "wrap-up notice should be injected at the ceiling")
}

func TestDispatcherRejectsInvalidDelegateArguments(t *testing.T) {
	gw := newTestGateway(t, `{"data":[]}`)
	sqlCM := llmtest.Script()
	sql, docs, geo := newTestSpecialists(t, gw, sqlCM, llmtest.Script(), llmtest.Script())

	dispCM := llmtest.Script(
		llmtest.ToolCallMessage("d1", model.ToolCallSQL, `{"query":"wrong field"}`),
		schema.AssistantMessage("sorry", nil),
	)
	d, err := New(dispCM, sql, docs, geo, "gemini-2.5-flash", nil)
	require.NoError(t, err)

	out, err := d.Invoke(context.Background(), model.TurnInput{Task: "x"})
	require.NoError(t, err)

	// The specialist was never invoked and no result was collected.
	assert.Empty(t, sqlCM.Calls)
	assert.Empty(t, out.Results)

	finalInput := dispCM.Calls[1]
	last := finalInput[len(finalInput)-1]
	assert.Equal(t, schema.Tool, last.Role)
	assert.Contains(t, last.Content, "invalid arguments")
}

func TestContextStore(t *testing.T) {
	s := NewContextStore()
	assert.Empty(t, s.Get())

	s.Put("SELECT 1")
	assert.Equal(t, "SELECT 1", s.Get())

	// Single slot: the latest write wins.
	s.Put("SELECT 2")
	assert.Equal(t, "SELECT 2", s.Get())

	s.Clear()
	assert.Empty(t, s.Get())
}
