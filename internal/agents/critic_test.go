// File: internal/agents/critic_test.go
package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/loupe-sh/loupe-cli/api/schemas"
)

func TestParseEvaluation_FullTemplate(t *testing.T) {
	raw := "## Source Alignment\nFAIL\n- unsupported claim A\n" +
		"## Objective Fulfillment\nScore: 62%\n" +
		"## Improvement Guidance\nAdd citations."

	evaluation := parseEvaluation(raw)

	assert.False(t, evaluation.SourceAlignment)
	assert.Equal(t, []string{"unsupported claim A"}, evaluation.SourceAlignmentIssues)
	assert.Equal(t, 62, evaluation.ObjectiveFulfillmentScore)
	assert.Equal(t, "Add citations.", evaluation.ImprovementGuidance)
	assert.Equal(t, raw, evaluation.Evaluation)
}

func TestParseEvaluation_Pass(t *testing.T) {
	raw := "## Source Alignment\nPASS\n" +
		"## Objective Fulfillment\nScore: 95%\n" +
		"## Improvement Guidance\nNothing substantial."

	evaluation := parseEvaluation(raw)
	assert.True(t, evaluation.SourceAlignment)
	assert.Empty(t, evaluation.SourceAlignmentIssues)
	assert.Equal(t, 95, evaluation.ObjectiveFulfillmentScore)
}

func TestParseEvaluation_Defaults(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty response", raw: ""},
		{name: "freeform prose", raw: "This analysis looks fine to me overall."},
		{name: "headings without bodies", raw: "## Source Alignment\n## Objective Fulfillment\n## Improvement Guidance\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			evaluation := parseEvaluation(tc.raw)

			// Absence of a verdict token means FAIL, never PASS.
			assert.False(t, evaluation.SourceAlignment)
			assert.Zero(t, evaluation.ObjectiveFulfillmentScore)
			assert.Equal(t, placeholderGuidance, evaluation.ImprovementGuidance)
		})
	}
}

func TestParseEvaluation_CaseInsensitiveTokens(t *testing.T) {
	raw := "## source alignment\npass\n## objective fulfillment\nscore: 40 %\n## improvement guidance\nTighten the summary."

	evaluation := parseEvaluation(raw)
	assert.True(t, evaluation.SourceAlignment)
	assert.Equal(t, 40, evaluation.ObjectiveFulfillmentScore)
	assert.Equal(t, "Tighten the summary.", evaluation.ImprovementGuidance)
}

func TestParseEvaluation_ScorePassthroughUnclamped(t *testing.T) {
	raw := "## Source Alignment\nPASS\n## Objective Fulfillment\nScore: 140%\n## Improvement Guidance\nNone."

	evaluation := parseEvaluation(raw)
	assert.Equal(t, 140, evaluation.ObjectiveFulfillmentScore)
}

func TestParseEvaluation_MultipleIssues(t *testing.T) {
	raw := "## Source Alignment\nFAIL\n- claim A\n* claim B\nnot a bullet\n- claim C\n" +
		"## Objective Fulfillment\nScore: 10%\n## Improvement Guidance\nRework."

	evaluation := parseEvaluation(raw)
	assert.Equal(t, []string{"claim A", "claim B", "claim C"}, evaluation.SourceAlignmentIssues)
}

func TestEvaluateSegment(t *testing.T) {
	raw := "## Source Alignment\nPASS\n## Objective Fulfillment\nScore: 80%\n## Improvement Guidance\nExpand the conclusion."

	facade := &mockFacade{}
	facade.On("GenerateCompletion", mock.Anything, defaultEvaluatePrompt, mock.Anything, "test-model").
		Return(schemas.CompletionResult{Content: raw}, nil).Once()

	deps, log := newTestDeps(t, facade)
	critic := NewCritic(deps)

	segment := schemas.FrameworkSegment{ID: "seg-1", Title: "Pricing", Objective: "Explain pricing"}
	evaluation, err := critic.EvaluateSegment(context.Background(), "transcript", segment, "analysis content")
	require.NoError(t, err)

	assert.Equal(t, "seg-1", evaluation.SegmentID)
	assert.True(t, evaluation.SourceAlignment)
	assert.Equal(t, 80, evaluation.ObjectiveFulfillmentScore)
	assert.Equal(t, "Expand the conclusion.", evaluation.ImprovementGuidance)
	assert.False(t, evaluation.GeneratedAt.IsZero())

	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, schemas.LogActionRequest, entries[0].Action)
	assert.Equal(t, schemas.LogActionResponse, entries[1].Action)
	assert.Equal(t, schemas.RoleCritic, entries[0].Role)
}

func TestEvaluateSegment_TransportErrorPropagates(t *testing.T) {
	facade := &mockFacade{}
	facade.On("GenerateCompletion", mock.Anything, mock.Anything, mock.Anything, "test-model").
		Return(schemas.CompletionResult{}, errors.New("quota exceeded")).Once()

	deps, _ := newTestDeps(t, facade)
	critic := NewCritic(deps)

	_, err := critic.EvaluateSegment(context.Background(), "transcript", schemas.FrameworkSegment{ID: "s"}, "content")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}
