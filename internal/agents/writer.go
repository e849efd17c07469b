// File: internal/agents/writer.go
// Description: The writer role. Produces the analysis content for one
// framework segment, and rewrites existing content from critic feedback.
// Writer output is unstructured: the trimmed accumulated text is the result.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/loupe-sh/loupe-cli/api/schemas"
)

const writerName = "Writer"

// Writer encapsulates the analysis-writing role.
type Writer struct {
	base
}

func NewWriter(deps Deps) *Writer {
	return &Writer{base: newBase(writerName, schemas.RoleWriter, deps)}
}

// AnalyzeSegment produces the analysis for one segment. Empty trimmed output
// is a valid, if degenerate, outcome.
func (w *Writer) AnalyzeSegment(ctx context.Context, transcript string, segment schemas.FrameworkSegment) (string, error) {
	system := w.systemPrompt(schemas.MethodAnalyzeSegment, defaultAnalyzePrompt)
	user := analyzeUserPrompt(transcript, segment)

	result, err := w.call(ctx, system, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Content), nil
}

// AnalysisResult is the terminal event of a streamed segment analysis.
type AnalysisResult struct {
	Content string
	Err     error
}

// AnalyzeSegmentStream streams the analysis chunk by chunk and delivers the
// trimmed full text once the stream completes.
func (w *Writer) AnalyzeSegmentStream(ctx context.Context, transcript string, segment schemas.FrameworkSegment) (<-chan string, <-chan AnalysisResult) {
	system := w.systemPrompt(schemas.MethodAnalyzeSegment, defaultAnalyzePrompt)
	user := analyzeUserPrompt(transcript, segment)
	return w.streamAnalysis(ctx, system, user)
}

// RewriteSegment produces replacement content for a segment from its prior
// content and the critic's feedback. The caller owns clearing any stale
// evaluation for the segment after applying the replacement.
func (w *Writer) RewriteSegment(ctx context.Context, transcript string, segment schemas.FrameworkSegment, priorContent string, evaluation schemas.CriticEvaluation) (string, error) {
	system := w.systemPrompt(schemas.MethodRewriteSegment, defaultRewritePrompt)
	user := rewriteUserPrompt(transcript, segment, priorContent, evaluation)

	result, err := w.call(ctx, system, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Content), nil
}

func (w *Writer) streamAnalysis(ctx context.Context, system, user string) (<-chan string, <-chan AnalysisResult) {
	chunks, outcome := w.stream(ctx, system, user)

	result := make(chan AnalysisResult, 1)
	go func() {
		defer close(result)
		final := <-outcome
		if final.Err != nil {
			result <- AnalysisResult{Err: final.Err}
			return
		}
		result <- AnalysisResult{Content: strings.TrimSpace(final.Text)}
	}()

	return chunks, result
}

func analyzeUserPrompt(transcript string, segment schemas.FrameworkSegment) string {
	return fmt.Sprintf(
		"Segment: %s\nObjective: %s\nGuidance: %s\n\nTranscript:\n\n%s",
		segment.Title, segment.Objective, segment.Guidance, transcript,
	)
}

func rewriteUserPrompt(transcript string, segment schemas.FrameworkSegment, priorContent string, evaluation schemas.CriticEvaluation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Segment: %s\nObjective: %s\nGuidance: %s\n\n", segment.Title, segment.Objective, segment.Guidance)
	sb.WriteString("Current analysis:\n\n")
	sb.WriteString(priorContent)
	sb.WriteString("\n\nReviewer feedback:\n")
	if len(evaluation.SourceAlignmentIssues) > 0 {
		for _, issue := range evaluation.SourceAlignmentIssues {
			fmt.Fprintf(&sb, "- %s\n", issue)
		}
	}
	sb.WriteString(evaluation.ImprovementGuidance)
	sb.WriteString("\n\nTranscript:\n\n")
	sb.WriteString(transcript)
	return sb.String()
}
