package model

import (
	"github.com/cloudwego/eino/schema"
)

// Specialist identifiers. They double as result names in the synthesis step,
// so the order and spelling are part of the turn contract.
const (
	SpecialistSQL  = "sql_agent"
	SpecialistDocs = "rag_agent"
	SpecialistGeo  = "plot_agent"
)

// Capability names declared to the hosted-model sessions. Each specialist
// owns exactly one; the dispatcher owns the three delegate capabilities.
const (
	ToolRunSQL    = "run_sql"
	ToolSearchKB  = "search_knowledge_base"
	ToolRunMapSQL = "run_map_sql"
	ToolCallSQL   = "call_sql_agent"
	ToolCallRAG   = "call_rag_agent"
	ToolCallMap   = "call_map_agent"
)

// TurnInput is the unit of work handed to an orchestrator for one user utterance.
type TurnInput struct {
	ConversationID string `json:"conversation_id"`
	Task           string `json:"task"`
}

// SpecialistResult is the outcome of one specialist invocation. Immutable once
// produced; a non-empty Err means the specialist failed terminally and its
// output must be treated as "no information available" downstream.
type SpecialistResult struct {
	Name   string `json:"name"`
	Query  string `json:"query"`
	Output string `json:"output,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Failed reports whether the specialist ended without a usable result.
func (r SpecialistResult) Failed() bool {
	return r.Err != ""
}

// TurnState stores per-turn state for the orchestration graph.
// Concurrency model:
//   - Registered as Graph Local State via compose.WithGenLocalState.
//   - All reads/writes happen only inside Eino state handlers
//     (WithStatePreHandler, WithStatePostHandler, compose.ProcessState),
//     which Eino serializes, so no mutex is required.
//   - The state is owned by one turn and discarded when the turn ends.
type TurnState struct {
	ConversationID string
	Task           string
	Messages       []*schema.Message  // turn transcript, append-only within the turn
	Results        []SpecialistResult // in invocation order

	// Accumulated total LLM cost (USD) across model invocations for this turn.
	TotalCostUSD float64
}

// ResultFor returns the first result produced by the named specialist.
func (s *TurnState) ResultFor(name string) (SpecialistResult, bool) {
	for _, r := range s.Results {
		if r.Name == name {
			return r, true
		}
	}
	return SpecialistResult{}, false
}

// TurnOutput is what an orchestrator hands back to the presentation layer:
// the synthesized answer plus the specialist results gathered along the way
// (the last geospatial result, if any, feeds the map boundary).
type TurnOutput struct {
	Answer  string
	Results []SpecialistResult
}

// GeoResult returns the last successful geospatial result, if present.
func (o *TurnOutput) GeoResult() (SpecialistResult, bool) {
	for i := len(o.Results) - 1; i >= 0; i-- {
		if o.Results[i].Name == SpecialistGeo && !o.Results[i].Failed() {
			return o.Results[i], true
		}
	}
	return SpecialistResult{}, false
}
