// Package render is the presentation boundary for geospatial results: it
// extracts a hex-grid map layer from the geospatial specialist's raw query
// output and validates the column contract before anything reaches a map.
package render

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/resilitix/assistant/internal/agent/model"
	logx "github.com/resilitix/assistant/pkg/logger"
)

// Column contract of a renderable result set. The generation prompt asks for
// "hex_id", but upstream datasets sometimes expose the resolution-suffixed
// name, so both are accepted.
const (
	HexColumn      = "hex_id"
	HexColumnAlt   = "hex_id_l6"
	ValueColumn    = "value"
	DefaultOpacity = 0.7
)

var (
	// ErrNoGeoResult means the turn produced no successful geospatial result.
	ErrNoGeoResult = errors.New("no geospatial result in turn output")
	// ErrNotRenderable means the result set does not honor the column contract.
	ErrNotRenderable = errors.New("result set is not renderable as a map layer")
)

// HexCell is one H3 cell with its metric value.
type HexCell struct {
	HexID string  `json:"hex_id"`
	Value float64 `json:"value"`
}

// MapLayer is a renderable choropleth layer over an H3 hex grid.
type MapLayer struct {
	Query   string    `json:"query"`
	Cells   []HexCell `json:"cells"`
	Opacity float64   `json:"opacity"`
}

// FromTurnOutput extracts a map layer from a finished turn. Returns
// ErrNoGeoResult when the turn carried no successful geospatial result.
func FromTurnOutput(out *model.TurnOutput) (*MapLayer, error) {
	if out == nil {
		return nil, ErrNoGeoResult
	}
	res, ok := out.GeoResult()
	if !ok {
		return nil, ErrNoGeoResult
	}
	return FromResult(res)
}

// FromResult parses one geospatial specialist result into a map layer.
func FromResult(res model.SpecialistResult) (*MapLayer, error) {
	if res.Failed() {
		return nil, fmt.Errorf("%w: specialist failed: %s", ErrNotRenderable, res.Err)
	}

	var payload struct {
		Data  []map[string]any `json:"data"`
		Error string           `json:"error"`
	}
	if err := json.Unmarshal([]byte(res.Output), &payload); err != nil {
		return nil, fmt.Errorf("%w: output is not valid JSON: %v", ErrNotRenderable, err)
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("%w: query failed: %s", ErrNotRenderable, payload.Error)
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("%w: empty result set", ErrNotRenderable)
	}

	cells := make([]HexCell, 0, len(payload.Data))
	for i, row := range payload.Data {
		cell, err := cellFromRow(row)
		if err != nil {
			logx.Warn().Int("row", i).Err(err).Msg("Skipping non-renderable row")
			continue
		}
		cells = append(cells, cell)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("%w: no row carries both a hex cell id and a numeric value", ErrNotRenderable)
	}

	return &MapLayer{
		Query:   res.Query,
		Cells:   cells,
		Opacity: DefaultOpacity,
	}, nil
}

func cellFromRow(row map[string]any) (HexCell, error) {
	hexID, err := hexIDFromRow(row)
	if err != nil {
		return HexCell{}, err
	}
	value, err := valueFromRow(row)
	if err != nil {
		return HexCell{}, err
	}
	return HexCell{HexID: hexID, Value: value}, nil
}

func hexIDFromRow(row map[string]any) (string, error) {
	for _, col := range []string{HexColumn, HexColumnAlt} {
		raw, ok := row[col]
		if !ok {
			continue
		}
		id, ok := raw.(string)
		if !ok || id == "" {
			return "", fmt.Errorf("column %q is not a non-empty string", col)
		}
		return id, nil
	}
	return "", fmt.Errorf("missing %q column", HexColumn)
}

func valueFromRow(row map[string]any) (float64, error) {
	raw, ok := row[ValueColumn]
	if !ok {
		return 0, fmt.Errorf("missing %q column", ValueColumn)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("column %q is not numeric: %v", ValueColumn, err)
		}
		return f, nil
	case string:
		// Upstream engines sometimes serialize numerics as strings.
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
			return 0, fmt.Errorf("column %q is not numeric: %q", ValueColumn, v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("column %q is not numeric (got %T)", ValueColumn, raw)
	}
}
