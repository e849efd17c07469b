// File: api/schemas/schemas_test.go
package schemas

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Verifies the five phases form a strict linear order starting at the zero value.
func TestPhase_Ordering(t *testing.T) {
	phases := []Phase{
		PhaseUploadAlign,
		PhaseProcessingValidation,
		PhaseInsightExtraction,
		PhaseGapAnalysis,
		PhaseConsolidation,
	}

	assert.Equal(t, Phase(0), PhaseUploadAlign, "the zero value must be the starting phase")
	for i := 1; i < len(phases); i++ {
		assert.Greater(t, int(phases[i]), int(phases[i-1]), "phases must be strictly increasing")
	}
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "UPLOAD_ALIGN", PhaseUploadAlign.String())
	assert.Equal(t, "CONSOLIDATION", PhaseConsolidation.String())
	assert.Equal(t, "UNKNOWN", Phase(99).String())
}

// Token usage must be omitted from serialized results when the provider never
// reported it, rather than appearing as fabricated zeros.
func TestCompletionResult_OmitsAbsentUsage(t *testing.T) {
	data, err := json.Marshal(CompletionResult{Content: "hello"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "usage")

	withUsage := CompletionResult{
		Content: "hello",
		Usage:   &TokenUsage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8},
	}
	data, err = json.Marshal(withUsage)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_tokens":8`)
}

// A request log entry must serialize its prompt pair; terminal entries omit it.
func TestAgentLogEntry_JSONShape(t *testing.T) {
	entry := AgentLogEntry{
		ID:        "abc",
		AgentName: "Planner",
		Role:      RolePlanner,
		Action:    LogActionRequest,
		Prompt:    &PromptPair{System: "sys", User: "usr"},
		Model:     "gemini-2.5-flash",
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"action":"request"`)
	assert.Contains(t, string(data), `"system":"sys"`)

	var decoded AgentLogEntry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, entry.ID, decoded.ID)
	assert.Equal(t, entry.Prompt.User, decoded.Prompt.User)
}
