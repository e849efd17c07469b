// File: cmd/analyze.go
// Description: The end-to-end analysis pipeline: plan, framework, parallel
// segment analysis, optional critique and rewrite passes, optional gap
// analysis, and the consolidated markdown report.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/loupe-sh/loupe-cli/api/schemas"
	"github.com/loupe-sh/loupe-cli/internal/agentlog"
	"github.com/loupe-sh/loupe-cli/internal/agents"
	"github.com/loupe-sh/loupe-cli/internal/config"
	"github.com/loupe-sh/loupe-cli/internal/llmclient"
	"github.com/loupe-sh/loupe-cli/internal/observability"
	"github.com/loupe-sh/loupe-cli/internal/orchestrator"
	"github.com/loupe-sh/loupe-cli/internal/report"
	"github.com/loupe-sh/loupe-cli/internal/workflow"
)

type analyzeOptions struct {
	transcriptPath string
	outputPath     string
	critique       bool
	rewriteBelow   int
	gaps           bool
	promoteGaps    bool
}

func newAnalyzeCmd() *cobra.Command {
	opts := &analyzeOptions{}

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Runs the full transcript analysis pipeline and writes a markdown report",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			return runAnalyze(cmd.Context(), cfg, opts)
		},
	}

	analyzeCmd.Flags().StringVarP(&opts.transcriptPath, "transcript", "t", "", "path to the transcript file (required)")
	analyzeCmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "report output path (default stdout)")
	analyzeCmd.Flags().BoolVar(&opts.critique, "critique", false, "run the critic over every completed segment")
	analyzeCmd.Flags().IntVar(&opts.rewriteBelow, "rewrite-below", 0, "rewrite segments whose critique score falls below this percentage (implies --critique)")
	analyzeCmd.Flags().BoolVar(&opts.gaps, "gaps", false, "run gap analysis after the segment pass")
	analyzeCmd.Flags().BoolVar(&opts.promoteGaps, "promote-gaps", false, "analyze identified gaps and promote them into the report (implies --gaps)")
	_ = analyzeCmd.MarkFlagRequired("transcript")

	return analyzeCmd
}

// pipeline bundles the collaborators one analysis run wires together.
type pipeline struct {
	cfg    *config.Config
	logger *zap.Logger
	state  *workflow.State
	log    *agentlog.Log
	orch   *orchestrator.Orchestrator

	planner *agents.Planner
	writer  *agents.Writer
	critic  *agents.Critic
	gap     *agents.GapAnalyzer
}

func newPipeline(cfg *config.Config, logger *zap.Logger) (*pipeline, error) {
	facade, err := initializedFacade(cfg, logger)
	if err != nil {
		return nil, err
	}

	log := agentlog.New(logger)
	deps := func(role schemas.AgentRole) agents.Deps {
		return agents.Deps{
			Facade:       facade,
			Log:          log,
			Instructions: cfg,
			Logger:       logger,
			Model:        cfg.ModelForRole(role),
		}
	}

	return &pipeline{
		cfg:     cfg,
		logger:  logger,
		state:   workflow.New(logger),
		log:     log,
		orch:    orchestrator.New(logger, cfg.Pipeline.MaxConcurrentSegments),
		planner: agents.NewPlanner(deps(schemas.RolePlanner)),
		writer:  agents.NewWriter(deps(schemas.RoleWriter)),
		critic:  agents.NewCritic(deps(schemas.RoleCritic)),
		gap:     agents.NewGapAnalyzer(deps(schemas.RoleGapAnalysis)),
	}, nil
}

// initializedFacade builds the facade and initializes it with the active
// provider's credential.
func initializedFacade(cfg *config.Config, logger *zap.Logger) (schemas.LLMFacade, error) {
	facade := llmclient.NewFacade(cfg.LLM, logger)

	credential := cfg.LLM.Gemini.APIKey
	envHint := "LOUPE_GEMINI_API_KEY"
	if cfg.LLM.Provider == schemas.ProviderGateway {
		credential = cfg.LLM.Gateway.APIKey
		envHint = "LOUPE_GATEWAY_API_KEY"
	}
	if credential == "" {
		return nil, fmt.Errorf("no API key configured for provider %q (set %s)", cfg.LLM.Provider, envHint)
	}

	if err := facade.Initialize(cfg.LLM.Provider, credential); err != nil {
		return nil, fmt.Errorf("initializing %s client: %w", cfg.LLM.Provider, err)
	}
	return facade, nil
}

func runAnalyze(ctx context.Context, cfg *config.Config, opts *analyzeOptions) error {
	logger := observability.GetLogger()

	if opts.rewriteBelow > 0 {
		opts.critique = true
	}
	if opts.promoteGaps {
		opts.gaps = true
	}

	p, err := newPipeline(cfg, logger)
	if err != nil {
		return err
	}

	transcript, err := readTranscript(opts.transcriptPath)
	if err != nil {
		return err
	}
	p.state.SetTranscript(transcript)

	if err := p.plan(ctx, transcript); err != nil {
		return err
	}
	if err := p.extractInsights(ctx, transcript); err != nil {
		return err
	}
	if opts.critique {
		if err := p.critique(ctx, transcript, opts.rewriteBelow); err != nil {
			return err
		}
	}
	if opts.gaps {
		if err := p.analyzeGaps(ctx, transcript, opts.promoteGaps); err != nil {
			return err
		}
	}

	if err := p.state.NavigateToPhase(schemas.PhaseConsolidation); err != nil {
		return err
	}
	return p.writeReport(opts.outputPath)
}

func readTranscript(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading transcript: %w", err)
	}
	transcript := strings.TrimSpace(string(data))
	if transcript == "" {
		return "", fmt.Errorf("transcript file %s is empty", path)
	}
	return transcript, nil
}

// plan runs the planner and moves the workflow into validation.
func (p *pipeline) plan(ctx context.Context, transcript string) error {
	plan, err := p.planner.GeneratePlan(ctx, transcript)
	if err != nil {
		return fmt.Errorf("planning failed: %w", err)
	}
	p.state.SetPlannerOutput(plan)

	if err := p.state.NavigateToPhase(schemas.PhaseProcessingValidation); err != nil {
		return err
	}

	framework, err := p.planner.GenerateFramework(ctx, transcript, plan)
	if err != nil {
		return fmt.Errorf("framework generation failed: %w", err)
	}
	if len(framework.Segments) == 0 {
		return fmt.Errorf("the generated framework contains no segments")
	}
	p.state.SetFramework(framework)

	return p.state.NavigateToPhase(schemas.PhaseInsightExtraction)
}

// extractInsights fans the writer out over every framework segment. Failed
// segments are recorded as errored and do not abort the run.
func (p *pipeline) extractInsights(ctx context.Context, transcript string) error {
	framework, ok := p.state.Framework()
	if !ok {
		return fmt.Errorf("no framework exists")
	}

	tasks := make([]orchestrator.AgentTask, 0, len(framework.Segments))
	for _, segment := range framework.Segments {
		segment := segment
		tasks = append(tasks, orchestrator.AgentTask{
			ID:   segment.ID,
			Name: segment.Title,
			Work: func(ctx context.Context) (string, error) {
				return p.writer.AnalyzeSegment(ctx, transcript, segment)
			},
		})
	}

	results := p.orch.RunParallelAgents(ctx, tasks)

	for _, task := range p.orch.Tasks() {
		analysis := schemas.SegmentAnalysis{
			SegmentID:   task.ID,
			GeneratedAt: time.Now().UTC(),
		}
		if content, ok := results[task.ID]; ok {
			analysis.Content = content
			analysis.Status = schemas.AnalysisComplete
		} else {
			analysis.Status = schemas.AnalysisError
			p.logger.Warn("Segment analysis failed.",
				zap.String("segment_id", task.ID),
				zap.String("error", task.Error))
		}
		p.state.SetSegmentAnalysis(analysis)
	}

	if len(results) == 0 {
		return fmt.Errorf("every segment analysis failed")
	}
	return nil
}

// critique evaluates each completed segment and, when a rewrite threshold is
// set, rewrites the ones scoring below it. A rewrite invalidates the
// segment's evaluation.
func (p *pipeline) critique(ctx context.Context, transcript string, rewriteBelow int) error {
	framework, _ := p.state.Framework()

	for _, segment := range framework.Segments {
		analysis, ok := p.state.SegmentAnalysis(segment.ID)
		if !ok || analysis.Status != schemas.AnalysisComplete {
			continue
		}

		evaluation, err := p.critic.EvaluateSegment(ctx, transcript, segment, analysis.Content)
		if err != nil {
			p.logger.Warn("Critique failed for segment.",
				zap.String("segment_id", segment.ID), zap.Error(err))
			continue
		}
		p.state.SetCriticEvaluation(evaluation)

		if rewriteBelow <= 0 || evaluation.ObjectiveFulfillmentScore >= rewriteBelow {
			continue
		}

		p.logger.Info("Rewriting segment below score threshold.",
			zap.String("segment_id", segment.ID),
			zap.Int("score", evaluation.ObjectiveFulfillmentScore),
			zap.Int("threshold", rewriteBelow))

		rewritten, err := p.writer.RewriteSegment(ctx, transcript, segment, analysis.Content, evaluation)
		if err != nil {
			p.logger.Warn("Rewrite failed, keeping original content.",
				zap.String("segment_id", segment.ID), zap.Error(err))
			continue
		}
		if err := p.state.ApplyRewrite(segment.ID, rewritten); err != nil {
			return err
		}
	}
	return nil
}

// analyzeGaps identifies uncovered themes and, when promotion is requested,
// analyzes each one and folds it into the main report.
func (p *pipeline) analyzeGaps(ctx context.Context, transcript string, promote bool) error {
	if err := p.state.NavigateToPhase(schemas.PhaseGapAnalysis); err != nil {
		return err
	}

	framework, _ := p.state.Framework()
	suggestions, err := p.gap.IdentifyGaps(ctx, transcript, framework, p.state.SegmentAnalyses())
	if err != nil {
		return fmt.Errorf("gap identification failed: %w", err)
	}
	p.state.SetGapSuggestions(suggestions)

	if len(suggestions) == 0 {
		p.logger.Info("No coverage gaps identified.")
		return nil
	}
	p.logger.Info("Identified coverage gaps.", zap.Int("count", len(suggestions)))

	if !promote {
		return nil
	}

	tasks := make([]orchestrator.AgentTask, 0, len(suggestions))
	for _, suggestion := range suggestions {
		segment := schemas.FrameworkSegment{
			ID:        suggestion.ID,
			Title:     suggestion.Title,
			Objective: suggestion.Objective,
			Guidance:  suggestion.Guidance,
		}
		tasks = append(tasks, orchestrator.AgentTask{
			ID:   suggestion.ID,
			Name: "gap: " + suggestion.Title,
			Work: func(ctx context.Context) (string, error) {
				return p.writer.AnalyzeSegment(ctx, transcript, segment)
			},
		})
	}

	results := p.orch.RunParallelAgents(ctx, tasks)
	for id, content := range results {
		p.state.SetGapSegmentAnalysis(schemas.SegmentAnalysis{
			SegmentID:   id,
			Content:     content,
			Status:      schemas.AnalysisComplete,
			GeneratedAt: time.Now().UTC(),
		})
		if err := p.state.AddGapToMainAnalysis(id); err != nil {
			p.logger.Warn("Could not promote gap.", zap.String("gap_id", id), zap.Error(err))
		}
	}
	return nil
}

func (p *pipeline) writeReport(path string) error {
	plan, _ := p.state.PlannerOutput()
	framework, _ := p.state.Framework()

	evaluations := make(map[string]schemas.CriticEvaluation)
	for _, segment := range framework.Segments {
		if evaluation, ok := p.state.CriticEvaluation(segment.ID); ok {
			evaluations[segment.ID] = evaluation
		}
	}

	return report.Write(path, report.Input{
		Generated:     time.Now().UTC(),
		PlannerOutput: plan,
		Framework:     framework,
		Analyses:      p.state.SegmentAnalyses(),
		Evaluations:   evaluations,
		Gaps:          p.state.GapAnalysis(),
	})
}
