// File: internal/report/report.go
// Description: Renders the consolidated markdown report from the artifacts
// of one analysis session.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/loupe-sh/loupe-cli/api/schemas"
)

// Input bundles everything the report draws on. Maps are keyed by segment id.
type Input struct {
	Generated     time.Time
	PlannerOutput schemas.PlannerOutput
	Framework     schemas.AnalysisFramework
	Analyses      map[string]schemas.SegmentAnalysis
	Evaluations   map[string]schemas.CriticEvaluation
	Gaps          schemas.GapAnalysis
}

// Render produces the full markdown report.
func Render(in Input) string {
	var sb strings.Builder

	title := in.Framework.Metadata.Title
	if title == "" {
		title = "Transcript Analysis"
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	if !in.Generated.IsZero() {
		fmt.Fprintf(&sb, "_Generated %s_\n\n", in.Generated.UTC().Format(time.RFC3339))
	}

	writeOverview(&sb, in)
	writeSegments(&sb, in)
	writeGaps(&sb, in)

	return sb.String()
}

// Write renders the report to the given path, or to stdout when the path is
// empty or "stdout".
func Write(path string, in Input) error {
	var writer io.Writer = os.Stdout
	if path != "" && path != "stdout" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating report file %s: %w", path, err)
		}
		defer f.Close()
		writer = f
	}

	if _, err := io.WriteString(writer, Render(in)); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

func writeOverview(sb *strings.Builder, in Input) {
	sb.WriteString("## Overview\n\n")
	if in.PlannerOutput.AnalysisObjective != "" {
		fmt.Fprintf(sb, "**Objective:** %s\n\n", in.PlannerOutput.AnalysisObjective)
	}
	if in.PlannerOutput.ContextUnderstanding != "" {
		fmt.Fprintf(sb, "%s\n\n", in.PlannerOutput.ContextUnderstanding)
	}
	if len(in.PlannerOutput.MetadataTags) > 0 {
		fmt.Fprintf(sb, "**Tags:** %s\n\n", strings.Join(in.PlannerOutput.MetadataTags, ", "))
	}
}

func writeSegments(sb *strings.Builder, in Input) {
	for i, segment := range in.Framework.Segments {
		fmt.Fprintf(sb, "## %d. %s\n\n", i+1, segment.Title)
		if segment.Objective != "" {
			fmt.Fprintf(sb, "_%s_\n\n", segment.Objective)
		}

		analysis, ok := in.Analyses[segment.ID]
		switch {
		case !ok || analysis.Status == schemas.AnalysisPending:
			sb.WriteString("Analysis pending.\n\n")
		case analysis.Status == schemas.AnalysisError:
			sb.WriteString("Analysis failed.\n\n")
		case analysis.Content == "":
			sb.WriteString("No analysis content was produced.\n\n")
		default:
			fmt.Fprintf(sb, "%s\n\n", analysis.Content)
		}

		if evaluation, ok := in.Evaluations[segment.ID]; ok {
			writeEvaluation(sb, evaluation)
		}
	}
}

func writeEvaluation(sb *strings.Builder, evaluation schemas.CriticEvaluation) {
	verdict := "FAIL"
	if evaluation.SourceAlignment {
		verdict = "PASS"
	}
	sb.WriteString("### Review\n\n")
	fmt.Fprintf(sb, "- Source alignment: %s\n", verdict)
	fmt.Fprintf(sb, "- Objective fulfillment: %d%%\n", evaluation.ObjectiveFulfillmentScore)
	for _, issue := range evaluation.SourceAlignmentIssues {
		fmt.Fprintf(sb, "- Issue: %s\n", issue)
	}
	if evaluation.ImprovementGuidance != "" {
		fmt.Fprintf(sb, "\n%s\n", evaluation.ImprovementGuidance)
	}
	sb.WriteString("\n")
}

func writeGaps(sb *strings.Builder, in Input) {
	if len(in.Gaps.Suggestions) == 0 && len(in.Gaps.InProgress) == 0 && in.Gaps.Summary == "" {
		return
	}

	sb.WriteString("## Coverage Gaps\n\n")
	if in.Gaps.Summary != "" {
		fmt.Fprintf(sb, "%s\n\n", in.Gaps.Summary)
	}

	for _, suggestion := range in.Gaps.Suggestions {
		fmt.Fprintf(sb, "- **%s**: %s", suggestion.Title, suggestion.Objective)
		if suggestion.Rationale != "" {
			fmt.Fprintf(sb, " (%s)", suggestion.Rationale)
		}
		sb.WriteString("\n")
	}
	if len(in.Gaps.Suggestions) > 0 {
		sb.WriteString("\n")
	}

	for _, analysis := range sortedInProgress(in.Gaps.InProgress) {
		fmt.Fprintf(sb, "### Gap analysis: %s\n\n%s\n\n", analysis.SegmentID, analysis.Content)
	}

	if len(in.Gaps.AdditionalThemes) > 0 {
		fmt.Fprintf(sb, "**Additional themes:** %s\n\n", strings.Join(in.Gaps.AdditionalThemes, ", "))
	}
}

func sortedInProgress(inProgress map[string]schemas.SegmentAnalysis) []schemas.SegmentAnalysis {
	ids := make([]string, 0, len(inProgress))
	for id := range inProgress {
		ids = append(ids, id)
	}
	// Deterministic output regardless of map iteration order.
	sort.Strings(ids)
	analyses := make([]schemas.SegmentAnalysis, 0, len(ids))
	for _, id := range ids {
		analyses = append(analyses, inProgress[id])
	}
	return analyses
}
