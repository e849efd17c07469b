// File: internal/agents/writer_test.go
package agents

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/loupe-sh/loupe-cli/api/schemas"
)

func TestAnalyzeSegment(t *testing.T) {
	facade := &mockFacade{}
	facade.On("GenerateCompletion", mock.Anything, defaultAnalyzePrompt, mock.Anything, "test-model").
		Return(schemas.CompletionResult{Content: "  The team agreed on tiered pricing.  \n"}, nil).Once()

	deps, _ := newTestDeps(t, facade)
	writer := NewWriter(deps)

	segment := schemas.FrameworkSegment{ID: "seg-1", Title: "Pricing", Objective: "Explain pricing", Guidance: "Focus on decisions"}
	content, err := writer.AnalyzeSegment(context.Background(), "transcript", segment)
	require.NoError(t, err)
	assert.Equal(t, "The team agreed on tiered pricing.", content)

	// The user prompt embeds the segment fields and the transcript.
	call := facade.Calls[0]
	user := call.Arguments.String(2)
	assert.Contains(t, user, "Pricing")
	assert.Contains(t, user, "Focus on decisions")
	assert.Contains(t, user, "transcript")
}

func TestAnalyzeSegment_EmptyOutputIsValid(t *testing.T) {
	facade := &mockFacade{}
	facade.On("GenerateCompletion", mock.Anything, mock.Anything, mock.Anything, "test-model").
		Return(schemas.CompletionResult{Content: "   \n  "}, nil).Once()

	deps, _ := newTestDeps(t, facade)
	writer := NewWriter(deps)

	content, err := writer.AnalyzeSegment(context.Background(), "transcript", schemas.FrameworkSegment{ID: "s"})
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestAnalyzeSegmentStream(t *testing.T) {
	chunks := []string{"The team ", "agreed on ", "tiered pricing."}
	streamChunks, streamErrs := staticStream(chunks, nil)

	facade := &mockFacade{}
	facade.On("GenerateCompletionStream", mock.Anything, defaultAnalyzePrompt, mock.Anything, "test-model").
		Return(streamChunks, streamErrs).Once()

	deps, log := newTestDeps(t, facade)
	writer := NewWriter(deps)

	out, result := writer.AnalyzeSegmentStream(context.Background(), "transcript", schemas.FrameworkSegment{ID: "s", Title: "Pricing"})

	var received []string
	for chunk := range out {
		received = append(received, chunk)
	}
	final := <-result
	require.NoError(t, final.Err)

	// Concatenated chunks equal the accumulated content.
	assert.Equal(t, strings.Join(chunks, ""), final.Content)
	assert.Equal(t, chunks, received)

	var full string
	for _, entry := range log.Entries() {
		if entry.Action == schemas.LogActionResponse {
			full = entry.Response
		}
	}
	assert.Equal(t, strings.Join(chunks, ""), full)
}

func TestAnalyzeSegmentStream_TransportError(t *testing.T) {
	streamChunks, streamErrs := staticStream([]string{"partial "}, errors.New("stream cut"))

	facade := &mockFacade{}
	facade.On("GenerateCompletionStream", mock.Anything, mock.Anything, mock.Anything, "test-model").
		Return(streamChunks, streamErrs).Once()

	deps, log := newTestDeps(t, facade)
	writer := NewWriter(deps)

	out, result := writer.AnalyzeSegmentStream(context.Background(), "transcript", schemas.FrameworkSegment{ID: "s"})
	for range out {
	}
	final := <-result
	require.Error(t, final.Err)

	var errorEntries int
	for _, entry := range log.Entries() {
		if entry.Action == schemas.LogActionError {
			errorEntries++
		}
	}
	assert.Equal(t, 1, errorEntries)
}

func TestRewriteSegment(t *testing.T) {
	facade := &mockFacade{}
	facade.On("GenerateCompletion", mock.Anything, defaultRewritePrompt, mock.Anything, "test-model").
		Return(schemas.CompletionResult{Content: "Revised analysis."}, nil).Once()

	deps, _ := newTestDeps(t, facade)
	writer := NewWriter(deps)

	segment := schemas.FrameworkSegment{ID: "seg-1", Title: "Pricing"}
	evaluation := schemas.CriticEvaluation{
		SegmentID:             "seg-1",
		SourceAlignmentIssues: []string{"unsupported claim A"},
		ImprovementGuidance:   "Add citations.",
	}

	content, err := writer.RewriteSegment(context.Background(), "transcript", segment, "old analysis", evaluation)
	require.NoError(t, err)
	assert.Equal(t, "Revised analysis.", content)

	// Prompt embeds prior content and the reviewer feedback.
	user := facade.Calls[0].Arguments.String(2)
	assert.Contains(t, user, "old analysis")
	assert.Contains(t, user, "unsupported claim A")
	assert.Contains(t, user, "Add citations.")
}

func TestRewriteSegment_ErrorPropagates(t *testing.T) {
	facade := &mockFacade{}
	facade.On("GenerateCompletion", mock.Anything, mock.Anything, mock.Anything, "test-model").
		Return(schemas.CompletionResult{}, errors.New("backend unavailable")).Once()

	deps, _ := newTestDeps(t, facade)
	writer := NewWriter(deps)

	_, err := writer.RewriteSegment(context.Background(), "t", schemas.FrameworkSegment{ID: "s"}, "prior", schemas.CriticEvaluation{})
	require.Error(t, err)
}
