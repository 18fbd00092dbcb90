package nodes

import (
	"context"
	"strings"

	"github.com/resilitix/assistant/internal/agent/model"
	logx "github.com/resilitix/assistant/pkg/logger"
)

// Geospatial vocabulary for the routing decision. A single keyword hit is
// sufficient; a visualization verb needs a regional-grouping phrase as well.
var (
	mapKeywords = []string{
		"map", "heatmap", "geo", "geospatial", "spatial",
		"location", "locations", "region", "regions",
		"area", "areas", "zone", "zones",
		"city", "state", "country", "county",
		"latitude", "longitude", "lat", "lon",
		"h3", "hex", "hexagon", "grid",
		"distribution", "density", "hotspot",
	}

	plotVerbs = []string{
		"show", "plot", "visualize", "display", "see",
		"compare", "highlight",
	}

	groupingPhrases = []string{
		"by city", "by region", "by area", "by location", "by hex",
	}
)

// PlotRequired decides whether the utterance implies a geospatial
// visualization. Pure function of the utterance text: no model call, no turn
// history, deterministic.
func PlotRequired(utterance string) bool {
	q := strings.ToLower(utterance)

	for _, k := range mapKeywords {
		if strings.Contains(q, k) {
			return true
		}
	}

	hasVerb := false
	for _, v := range plotVerbs {
		if strings.Contains(q, v) {
			hasVerb = true
			break
		}
	}
	if !hasVerb {
		return false
	}
	for _, g := range groupingPhrases {
		if strings.Contains(q, g) {
			return true
		}
	}
	return false
}

// NewPlotBranchCondition routes the turn to the geospatial specialist or
// straight to synthesis after document search.
func NewPlotBranchCondition() func(context.Context, model.TurnInput) (string, error) {
	return func(ctx context.Context, in model.TurnInput) (string, error) {
		if PlotRequired(in.Task) {
			logx.Debug().Msg("Plot required: routing to geospatial specialist")
			return NodePlotAgent, nil
		}
		logx.Debug().Msg("No plot required: routing to synthesis")
		return NodeSummarize, nil
	}
}
