// File: internal/agents/planner.go
// Description: The planner role. Produces the initial transcript read
// (context, tags, objective) via sequential calls, and generates the
// segmented analysis framework from the model's JSON response.
package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/loupe-sh/loupe-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	plannerName = "Planner"

	placeholderTitle     = "Untitled Segment"
	placeholderObjective = "Objective not specified"
	placeholderGuidance  = "No guidance provided."

	// fallbackContext is returned when context generation fails; the plan
	// remains usable and the user can edit the field.
	fallbackContext = "Context analysis was unavailable for this transcript."
)

// Planner encapsulates the planning role: context understanding, metadata
// tags, the analysis objective, and the segment framework.
type Planner struct {
	base
}

func NewPlanner(deps Deps) *Planner {
	return &Planner{base: newBase(plannerName, schemas.RolePlanner, deps)}
}

// GeneratePlan produces the planner's initial read of a transcript via three
// sequential calls. Context and tag generation degrade gracefully on failure;
// a failed objective call aborts the plan because everything downstream
// depends on it.
func (p *Planner) GeneratePlan(ctx context.Context, transcript string) (schemas.PlannerOutput, error) {
	contextUnderstanding := p.generateContext(ctx, transcript)
	tags := p.generateTags(ctx, transcript)

	objective, err := p.generateObjective(ctx, transcript)
	if err != nil {
		return schemas.PlannerOutput{}, fmt.Errorf("generating analysis objective: %w", err)
	}

	return schemas.PlannerOutput{
		ContextUnderstanding: contextUnderstanding,
		MetadataTags:         tags,
		AnalysisObjective:    objective,
	}, nil
}

func (p *Planner) generateContext(ctx context.Context, transcript string) string {
	system := p.systemPrompt(schemas.MethodGenerateContext, defaultContextPrompt)
	user := fmt.Sprintf("Transcript:\n\n%s", transcript)

	result, err := p.call(ctx, system, user)
	if err != nil {
		p.logger.Warn("Context generation failed, using fallback.", zap.Error(err))
		return fallbackContext
	}
	return strings.TrimSpace(result.Content)
}

func (p *Planner) generateTags(ctx context.Context, transcript string) []string {
	system := p.systemPrompt(schemas.MethodGenerateTags, defaultTagsPrompt)
	user := fmt.Sprintf("Transcript:\n\n%s", transcript)

	result, err := p.call(ctx, system, user)
	if err != nil {
		p.logger.Warn("Tag generation failed, continuing without tags.", zap.Error(err))
		return []string{}
	}

	tags, err := parseStringArray(result.Content)
	if err != nil {
		p.logger.Warn("Tag response was not a JSON array, continuing without tags.", zap.Error(err))
		return []string{}
	}
	return tags
}

func (p *Planner) generateObjective(ctx context.Context, transcript string) (string, error) {
	system := p.systemPrompt(schemas.MethodGenerateObjective, defaultObjectivePrompt)
	user := fmt.Sprintf("Transcript:\n\n%s", transcript)

	result, err := p.call(ctx, system, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Content), nil
}

// GenerateFramework designs the segment framework for a transcript and plan.
// The model's response must contain a JSON object with a segments array.
func (p *Planner) GenerateFramework(ctx context.Context, transcript string, plan schemas.PlannerOutput) (schemas.AnalysisFramework, error) {
	system := p.systemPrompt(schemas.MethodGenerateFramework, defaultFrameworkPrompt)
	user := frameworkUserPrompt(transcript, plan)

	result, err := p.call(ctx, system, user)
	if err != nil {
		return schemas.AnalysisFramework{}, err
	}

	segments, err := parseFramework(result.Content)
	if err != nil {
		return schemas.AnalysisFramework{}, err
	}
	return assembleFramework(plan, segments), nil
}

// FrameworkResult is the terminal event of a streamed framework generation.
type FrameworkResult struct {
	Framework schemas.AnalysisFramework
	Err       error
}

// GenerateFrameworkStream streams the raw framework generation chunk by
// chunk, then parses the accumulated text and delivers exactly one
// FrameworkResult once the stream completes.
func (p *Planner) GenerateFrameworkStream(ctx context.Context, transcript string, plan schemas.PlannerOutput) (<-chan string, <-chan FrameworkResult) {
	system := p.systemPrompt(schemas.MethodGenerateFramework, defaultFrameworkPrompt)
	user := frameworkUserPrompt(transcript, plan)

	chunks, outcome := p.stream(ctx, system, user)

	result := make(chan FrameworkResult, 1)
	go func() {
		defer close(result)

		final := <-outcome
		if final.Err != nil {
			result <- FrameworkResult{Err: final.Err}
			return
		}

		segments, err := parseFramework(final.Text)
		if err != nil {
			result <- FrameworkResult{Err: err}
			return
		}
		result <- FrameworkResult{Framework: assembleFramework(plan, segments)}
	}()

	return chunks, result
}

func frameworkUserPrompt(transcript string, plan schemas.PlannerOutput) string {
	var sb strings.Builder
	sb.WriteString("Analysis objective:\n")
	sb.WriteString(plan.AnalysisObjective)
	sb.WriteString("\n\nContext:\n")
	sb.WriteString(plan.ContextUnderstanding)
	if len(plan.MetadataTags) > 0 {
		sb.WriteString("\n\nTags: ")
		sb.WriteString(strings.Join(plan.MetadataTags, ", "))
	}
	sb.WriteString("\n\nTranscript:\n\n")
	sb.WriteString(transcript)
	return sb.String()
}

func assembleFramework(plan schemas.PlannerOutput, segments []schemas.FrameworkSegment) schemas.AnalysisFramework {
	return schemas.AnalysisFramework{
		Metadata: schemas.FrameworkMetadata{
			Title:     "Analysis Framework",
			Created:   time.Now().UTC(),
			Objective: plan.AnalysisObjective,
			Tags:      plan.MetadataTags,
		},
		Segments: segments,
	}
}

// rawSegment tolerates incomplete model output; json field matching is
// case-insensitive, so "Title"/"Segments" variants decode as well.
type rawSegment struct {
	Title     string `json:"title"`
	Objective string `json:"objective"`
	Guidance  string `json:"guidance"`
}

type rawFramework struct {
	Segments []rawSegment `json:"segments"`
}

// parseFramework extracts the segments array from the first JSON object
// embedded in the model's text. Missing per-segment fields get placeholder
// values; segment ids are minted here, never echoed from the model.
func parseFramework(raw string) ([]schemas.FrameworkSegment, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object found in framework response")
	}

	var parsed rawFramework
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("parsing framework response: %w", err)
	}

	minted := time.Now().UnixMilli()
	segments := make([]schemas.FrameworkSegment, 0, len(parsed.Segments))
	for i, seg := range parsed.Segments {
		out := schemas.FrameworkSegment{
			ID:        fmt.Sprintf("seg-%d-%d", minted, i),
			Title:     strings.TrimSpace(seg.Title),
			Objective: strings.TrimSpace(seg.Objective),
			Guidance:  strings.TrimSpace(seg.Guidance),
			Order:     i,
		}
		if out.Title == "" {
			out.Title = placeholderTitle
		}
		if out.Objective == "" {
			out.Objective = placeholderObjective
		}
		if out.Guidance == "" {
			out.Guidance = placeholderGuidance
		}
		segments = append(segments, out)
	}
	return segments, nil
}

// parseStringArray extracts a JSON array of strings from model text that may
// carry surrounding prose or a code fence.
func parseStringArray(raw string) ([]string, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array found")
	}

	var items []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &items); err != nil {
		return nil, err
	}
	return items, nil
}
