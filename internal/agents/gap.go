// File: internal/agents/gap.go
// Description: The gap analysis role. Compares the transcript against the
// existing framework and analyses, and proposes uncovered themes as
// suggestions. Missing or malformed suggestion JSON degrades to an empty
// list, which callers surface as "no gaps identified".
package agents

import (
	"context"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loupe-sh/loupe-cli/api/schemas"
)

const gapAnalysisName = "Gap Analysis"

var fencedBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// GapAnalyzer encapsulates the coverage analysis role.
type GapAnalyzer struct {
	base
}

func NewGapAnalyzer(deps Deps) *GapAnalyzer {
	return &GapAnalyzer{base: newBase(gapAnalysisName, schemas.RoleGapAnalysis, deps)}
}

// IdentifyGaps proposes themes the current framework does not cover. An
// empty result is a meaningful outcome, not an error.
func (g *GapAnalyzer) IdentifyGaps(ctx context.Context, transcript string, framework schemas.AnalysisFramework, analyses map[string]schemas.SegmentAnalysis) ([]schemas.GapSuggestion, error) {
	system := g.systemPrompt(schemas.MethodIdentifyGaps, defaultGapsPrompt)
	user := gapsUserPrompt(transcript, framework, analyses)

	result, err := g.call(ctx, system, user)
	if err != nil {
		return nil, err
	}
	return g.parseSuggestions(result.Content), nil
}

// GapResult is the terminal event of a streamed gap identification.
type GapResult struct {
	Suggestions []schemas.GapSuggestion
	Err         error
}

// IdentifyGapsStream streams the raw gap identification chunk by chunk, then
// parses the accumulated text and delivers exactly one GapResult.
func (g *GapAnalyzer) IdentifyGapsStream(ctx context.Context, transcript string, framework schemas.AnalysisFramework, analyses map[string]schemas.SegmentAnalysis) (<-chan string, <-chan GapResult) {
	system := g.systemPrompt(schemas.MethodIdentifyGaps, defaultGapsPrompt)
	user := gapsUserPrompt(transcript, framework, analyses)

	chunks, outcome := g.stream(ctx, system, user)

	result := make(chan GapResult, 1)
	go func() {
		defer close(result)
		final := <-outcome
		if final.Err != nil {
			result <- GapResult{Err: final.Err}
			return
		}
		result <- GapResult{Suggestions: g.parseSuggestions(final.Text)}
	}()

	return chunks, result
}

type rawSuggestion struct {
	Title     string `json:"title"`
	Objective string `json:"objective"`
	Guidance  string `json:"guidance"`
	Rationale string `json:"rationale"`
}

// parseSuggestions extracts suggestions from the first fenced code block in
// the response. No fence, or unparseable JSON inside one, yields an empty
// list. Suggestion ids are minted here, never echoed from the model.
func (g *GapAnalyzer) parseSuggestions(raw string) []schemas.GapSuggestion {
	match := fencedBlockRegex.FindStringSubmatch(raw)
	if match == nil {
		g.logger.Debug("No fenced block in gap response, treating as no gaps.")
		return []schemas.GapSuggestion{}
	}

	var parsed []rawSuggestion
	if err := json.Unmarshal([]byte(match[1]), &parsed); err != nil {
		g.logger.Warn("Malformed gap suggestion JSON, treating as no gaps.", zap.Error(err))
		return []schemas.GapSuggestion{}
	}

	suggestions := make([]schemas.GapSuggestion, 0, len(parsed))
	for _, s := range parsed {
		suggestions = append(suggestions, schemas.GapSuggestion{
			ID:        uuid.NewString(),
			Title:     strings.TrimSpace(s.Title),
			Objective: strings.TrimSpace(s.Objective),
			Guidance:  strings.TrimSpace(s.Guidance),
			Rationale: strings.TrimSpace(s.Rationale),
		})
	}
	return suggestions
}

func gapsUserPrompt(transcript string, framework schemas.AnalysisFramework, analyses map[string]schemas.SegmentAnalysis) string {
	var sb strings.Builder
	sb.WriteString("Existing framework segments:\n")
	for _, seg := range framework.Segments {
		sb.WriteString("- ")
		sb.WriteString(seg.Title)
		sb.WriteString(": ")
		sb.WriteString(seg.Objective)
		sb.WriteString("\n")
		if analysis, ok := analyses[seg.ID]; ok && analysis.Status == schemas.AnalysisComplete {
			sb.WriteString("  Analysis summary: ")
			sb.WriteString(firstLine(analysis.Content))
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\nTranscript:\n\n")
	sb.WriteString(transcript)
	return sb.String()
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}
