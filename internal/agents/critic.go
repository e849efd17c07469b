// File: internal/agents/critic.go
// Description: The critic role. Evaluates one segment analysis against the
// transcript and parses the model's fixed three-section markdown template
// into a typed evaluation. Parsing is lenient: every field has a default, so
// a malformed response yields a conservative evaluation, never an error.
package agents

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/loupe-sh/loupe-cli/api/schemas"
)

const criticName = "Critic"

var (
	alignmentTokenRegex = regexp.MustCompile(`(?i)\b(PASS|FAIL)\b`)
	scoreRegex          = regexp.MustCompile(`(?i)score:\s*(-?\d+)\s*%?`)
	headingRegex        = regexp.MustCompile(`(?im)^##\s+(.+)$`)
)

// Critic encapsulates the evaluation role.
type Critic struct {
	base
}

func NewCritic(deps Deps) *Critic {
	return &Critic{base: newBase(criticName, schemas.RoleCritic, deps)}
}

// EvaluateSegment runs the critic over one segment's analysis content.
// Transport failures propagate; response parsing never fails.
func (c *Critic) EvaluateSegment(ctx context.Context, transcript string, segment schemas.FrameworkSegment, content string) (schemas.CriticEvaluation, error) {
	system := c.systemPrompt(schemas.MethodEvaluateSegment, defaultEvaluatePrompt)
	user := fmt.Sprintf(
		"Segment: %s\nObjective: %s\n\nAnalysis under review:\n\n%s\n\nTranscript:\n\n%s",
		segment.Title, segment.Objective, content, transcript,
	)

	result, err := c.call(ctx, system, user)
	if err != nil {
		return schemas.CriticEvaluation{}, err
	}

	evaluation := parseEvaluation(result.Content)
	evaluation.SegmentID = segment.ID
	evaluation.GeneratedAt = time.Now().UTC()
	return evaluation, nil
}

type evaluationSection struct {
	title string
	body  string
}

// parseEvaluation extracts the typed fields from the critic's markdown
// template. Absence of a PASS token means FAIL; a missing score means 0; the
// reported score is passed through without range validation.
func parseEvaluation(raw string) schemas.CriticEvaluation {
	evaluation := schemas.CriticEvaluation{
		Evaluation:          raw,
		ImprovementGuidance: placeholderGuidance,
	}

	for _, section := range splitSections(raw) {
		title := strings.ToLower(section.title)
		switch {
		case strings.Contains(title, "source alignment"):
			if match := alignmentTokenRegex.FindString(section.body); match != "" {
				evaluation.SourceAlignment = strings.EqualFold(match, "PASS")
			}
			evaluation.SourceAlignmentIssues = bulletLines(section.body)
		case strings.Contains(title, "objective fulfillment"):
			if match := scoreRegex.FindStringSubmatch(section.body); match != nil {
				score, err := strconv.Atoi(match[1])
				if err == nil {
					evaluation.ObjectiveFulfillmentScore = score
				}
			}
		case strings.Contains(title, "improvement guidance"):
			if guidance := strings.TrimSpace(section.body); guidance != "" {
				evaluation.ImprovementGuidance = guidance
			}
		}
	}
	return evaluation
}

// splitSections slices the text into "## " headed sections, discarding any
// preamble before the first heading.
func splitSections(raw string) []evaluationSection {
	matches := headingRegex.FindAllStringSubmatchIndex(raw, -1)
	sections := make([]evaluationSection, 0, len(matches))
	for i, match := range matches {
		bodyStart := match[1]
		bodyEnd := len(raw)
		if i+1 < len(matches) {
			bodyEnd = matches[i+1][0]
		}
		sections = append(sections, evaluationSection{
			title: strings.TrimSpace(raw[match[2]:match[3]]),
			body:  raw[bodyStart:bodyEnd],
		})
	}
	return sections
}

func bulletLines(body string) []string {
	var issues []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "- "); ok {
			issues = append(issues, strings.TrimSpace(rest))
		} else if rest, ok := strings.CutPrefix(trimmed, "* "); ok {
			issues = append(issues, strings.TrimSpace(rest))
		}
	}
	return issues
}
