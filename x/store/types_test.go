package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusRoundTrip(t *testing.T) {
	for _, st := range AllStatuses {
		parsed, err := ParseStatus(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, parsed)
	}
}

func TestStatusPersistedStrings(t *testing.T) {
	assert.Equal(t, "PIE_SUBMITTED", StatusPieSubmitted.String())
	assert.Equal(t, "PIE_PROOF_GENERATED", StatusPieProofGenerated.String())
	assert.Equal(t, "BRIDGE_PROOF_SUBMITED", StatusBridgeProofSubmitted.String())
	assert.Equal(t, "COMPLETED", StatusCompleted.String())
	assert.Equal(t, "FAILED", StatusFailed.String())
}

func TestParseStatusUnknown(t *testing.T) {
	for _, s := range []string{"", "pie_submitted", "BRIDGE_PROOF_SUBMITTED", "DONE"} {
		_, err := ParseStatus(s)
		require.ErrorIs(t, err, ErrUnknownStatus, s)
	}
}

func TestStatusJSON(t *testing.T) {
	job := BlockJob{ID: 7, QueryIDStep1: "q1", Status: StatusBridgeProofSubmitted}
	b, err := json.Marshal(job)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"query_id_step1":"q1","status":"BRIDGE_PROOF_SUBMITED"}`, string(b))

	var decoded BlockJob
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, job, decoded)

	err = json.Unmarshal([]byte(`{"id":1,"status":"NOPE"}`), &decoded)
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPieSubmitted, StatusPieProofGenerated, true},
		{StatusPieProofGenerated, StatusBridgeProofSubmitted, true},
		{StatusBridgeProofSubmitted, StatusCompleted, true},
		{StatusPieSubmitted, StatusFailed, true},
		{StatusBridgeProofSubmitted, StatusFailed, true},
		{StatusPieSubmitted, StatusBridgeProofSubmitted, false},
		{StatusPieProofGenerated, StatusPieSubmitted, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusPieSubmitted, false},
		{StatusCompleted, StatusCompleted, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestParseProofStage(t *testing.T) {
	st, err := ParseProofStage("pie")
	require.NoError(t, err)
	assert.Equal(t, StagePie, st)

	st, err = ParseProofStage("bridge")
	require.NoError(t, err)
	assert.Equal(t, StageBridge, st)

	_, err = ParseProofStage("layout")
	require.Error(t, err)
}
