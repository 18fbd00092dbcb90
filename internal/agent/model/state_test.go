package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnStateResultFor(t *testing.T) {
	s := &TurnState{
		Results: []SpecialistResult{
			{Name: SpecialistSQL, Query: "SELECT 1"},
			{Name: SpecialistDocs, Output: "ctx"},
		},
	}

	r, ok := s.ResultFor(SpecialistSQL)
	require.True(t, ok)
	assert.Equal(t, "SELECT 1", r.Query)

	_, ok = s.ResultFor(SpecialistGeo)
	assert.False(t, ok)
}

func TestTurnOutputGeoResult(t *testing.T) {
	out := &TurnOutput{
		Results: []SpecialistResult{
			{Name: SpecialistGeo, Err: "could not process request"},
			{Name: SpecialistGeo, Query: "SELECT hex_id", Output: `{"data":[]}`},
		},
	}

	r, ok := out.GeoResult()
	require.True(t, ok)
	assert.Equal(t, "SELECT hex_id", r.Query)

	// A turn where the only geospatial attempt failed yields nothing.
	failedOnly := &TurnOutput{Results: []SpecialistResult{{Name: SpecialistGeo, Err: "x"}}}
	_, ok = failedOnly.GeoResult()
	assert.False(t, ok)
}
