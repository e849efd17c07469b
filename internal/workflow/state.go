// File: internal/workflow/state.go
// Description: Cross-phase analysis state and the five-phase transition
// rules. Forward progress is gated on the artifacts each phase needs;
// backward navigation is always permitted. All accessors return copies so
// callers can never mutate held state behind the lock.

package workflow

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/loupe-sh/loupe-cli/api/schemas"
)

// State owns every entity produced during one analysis session. Credentials
// and settings live outside it and survive Reset.
type State struct {
	logger *zap.Logger

	mu            sync.RWMutex
	phase         schemas.Phase
	transcript    string
	plannerOutput *schemas.PlannerOutput
	framework     *schemas.AnalysisFramework
	analyses      map[string]schemas.SegmentAnalysis
	evaluations   map[string]schemas.CriticEvaluation
	gaps          schemas.GapAnalysis
}

func New(logger *zap.Logger) *State {
	return &State{
		logger:      logger.Named("workflow"),
		phase:       schemas.PhaseUploadAlign,
		analyses:    make(map[string]schemas.SegmentAnalysis),
		evaluations: make(map[string]schemas.CriticEvaluation),
		gaps:        schemas.GapAnalysis{InProgress: make(map[string]schemas.SegmentAnalysis)},
	}
}

// -- Phase navigation --

func (s *State) CurrentPhase() schemas.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// CanProceedToPhase reports whether the target phase is reachable from the
// current state. Backward and same-phase navigation is unconditional.
func (s *State) CanProceedToPhase(target schemas.Phase) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canProceedLocked(target)
}

func (s *State) canProceedLocked(target schemas.Phase) bool {
	if target <= s.phase {
		return true
	}
	switch target {
	case schemas.PhaseUploadAlign:
		return true
	case schemas.PhaseProcessingValidation:
		return s.transcript != "" && s.plannerOutput != nil
	case schemas.PhaseInsightExtraction:
		return s.framework != nil
	case schemas.PhaseGapAnalysis, schemas.PhaseConsolidation:
		// Gap analysis is skippable, so both gates are identical.
		return s.hasCompletedAnalysisLocked()
	default:
		return false
	}
}

func (s *State) hasCompletedAnalysisLocked() bool {
	for _, analysis := range s.analyses {
		if analysis.Status == schemas.AnalysisComplete {
			return true
		}
	}
	return false
}

// NavigateToPhase moves to the target phase, enforcing the forward gates.
func (s *State) NavigateToPhase(target schemas.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.canProceedLocked(target) {
		return fmt.Errorf("phase %s is not reachable from %s", target, s.phase)
	}
	if target != s.phase {
		s.logger.Info("Phase transition.",
			zap.Stringer("from", s.phase),
			zap.Stringer("to", target))
	}
	s.phase = target
	return nil
}

// -- Transcript and planner output --

func (s *State) SetTranscript(transcript string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = transcript
}

func (s *State) Transcript() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcript
}

func (s *State) SetPlannerOutput(output schemas.PlannerOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plannerOutput = &output
}

func (s *State) PlannerOutput() (schemas.PlannerOutput, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.plannerOutput == nil {
		return schemas.PlannerOutput{}, false
	}
	return *s.plannerOutput, true
}

// -- Framework and segments --

func (s *State) SetFramework(framework schemas.AnalysisFramework) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.framework = &framework
	s.renormalizeLocked()
}

func (s *State) Framework() (schemas.AnalysisFramework, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.framework == nil {
		return schemas.AnalysisFramework{}, false
	}
	return s.copyFrameworkLocked(), true
}

func (s *State) copyFrameworkLocked() schemas.AnalysisFramework {
	copied := *s.framework
	copied.Segments = make([]schemas.FrameworkSegment, len(s.framework.Segments))
	copy(copied.Segments, s.framework.Segments)
	return copied
}

// AddSegment appends a segment to the framework; its order is assigned by
// position.
func (s *State) AddSegment(segment schemas.FrameworkSegment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.framework == nil {
		return fmt.Errorf("no framework exists")
	}
	for _, existing := range s.framework.Segments {
		if existing.ID == segment.ID {
			return fmt.Errorf("segment %s already exists", segment.ID)
		}
	}
	segment.Order = len(s.framework.Segments)
	s.framework.Segments = append(s.framework.Segments, segment)
	s.renormalizeLocked()
	return nil
}

// DeleteSegment removes a segment along with its analysis and evaluation, so
// no dangling references survive.
func (s *State) DeleteSegment(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.framework == nil {
		return fmt.Errorf("no framework exists")
	}
	for i, segment := range s.framework.Segments {
		if segment.ID == id {
			s.framework.Segments = append(s.framework.Segments[:i], s.framework.Segments[i+1:]...)
			delete(s.analyses, id)
			delete(s.evaluations, id)
			s.renormalizeLocked()
			return nil
		}
	}
	return fmt.Errorf("segment %s not found", id)
}

// ReorderSegments rearranges the framework to match the given id sequence,
// which must be a permutation of the current segment ids.
func (s *State) ReorderSegments(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.framework == nil {
		return fmt.Errorf("no framework exists")
	}
	if len(ids) != len(s.framework.Segments) {
		return fmt.Errorf("reorder needs %d ids, got %d", len(s.framework.Segments), len(ids))
	}

	byID := make(map[string]schemas.FrameworkSegment, len(s.framework.Segments))
	for _, segment := range s.framework.Segments {
		byID[segment.ID] = segment
	}

	reordered := make([]schemas.FrameworkSegment, 0, len(ids))
	for _, id := range ids {
		segment, ok := byID[id]
		if !ok {
			return fmt.Errorf("unknown segment id %s", id)
		}
		delete(byID, id)
		reordered = append(reordered, segment)
	}

	s.framework.Segments = reordered
	s.renormalizeLocked()
	return nil
}

// renormalizeLocked restores the dense 0..n-1 order sequence after any
// segment mutation, preserving the current display order.
func (s *State) renormalizeLocked() {
	if s.framework == nil {
		return
	}
	sort.SliceStable(s.framework.Segments, func(i, j int) bool {
		return s.framework.Segments[i].Order < s.framework.Segments[j].Order
	})
	for i := range s.framework.Segments {
		s.framework.Segments[i].Order = i
	}
}

// -- Segment analyses and evaluations --

func (s *State) SetSegmentAnalysis(analysis schemas.SegmentAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[analysis.SegmentID] = analysis
}

func (s *State) SegmentAnalysis(segmentID string) (schemas.SegmentAnalysis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	analysis, ok := s.analyses[segmentID]
	return analysis, ok
}

func (s *State) SegmentAnalyses() map[string]schemas.SegmentAnalysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make(map[string]schemas.SegmentAnalysis, len(s.analyses))
	for id, analysis := range s.analyses {
		copied[id] = analysis
	}
	return copied
}

func (s *State) SetCriticEvaluation(evaluation schemas.CriticEvaluation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evaluations[evaluation.SegmentID] = evaluation
}

func (s *State) CriticEvaluation(segmentID string) (schemas.CriticEvaluation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	evaluation, ok := s.evaluations[segmentID]
	return evaluation, ok
}

// ApplyRewrite replaces a segment's analysis content and invalidates any
// existing evaluation for it, so a stale verdict can never be shown against
// new content.
func (s *State) ApplyRewrite(segmentID, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	analysis, ok := s.analyses[segmentID]
	if !ok {
		return fmt.Errorf("no analysis exists for segment %s", segmentID)
	}
	analysis.Content = content
	analysis.Status = schemas.AnalysisComplete
	analysis.GeneratedAt = time.Now().UTC()
	s.analyses[segmentID] = analysis

	delete(s.evaluations, segmentID)
	return nil
}

// -- Gap analysis --

func (s *State) SetGapSuggestions(suggestions []schemas.GapSuggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gaps.Suggestions = suggestions
}

func (s *State) SetGapSegmentAnalysis(analysis schemas.SegmentAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gaps.InProgress[analysis.SegmentID] = analysis
}

func (s *State) GapAnalysis() schemas.GapAnalysis {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := s.gaps
	copied.Suggestions = make([]schemas.GapSuggestion, len(s.gaps.Suggestions))
	copy(copied.Suggestions, s.gaps.Suggestions)
	copied.InProgress = make(map[string]schemas.SegmentAnalysis, len(s.gaps.InProgress))
	for id, analysis := range s.gaps.InProgress {
		copied.InProgress[id] = analysis
	}
	return copied
}

// AddGapToMainAnalysis promotes an analyzed gap into the main analysis: the
// in-progress analysis moves under the gap's id, a matching segment is
// appended to the framework, and the gap leaves the in-progress map.
// Evaluations are untouched. The appended segment's order is the segment
// count plus one; the next renormalization makes the sequence dense again.
func (s *State) AddGapToMainAnalysis(gapID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.framework == nil {
		return fmt.Errorf("no framework exists")
	}

	var suggestion *schemas.GapSuggestion
	for i := range s.gaps.Suggestions {
		if s.gaps.Suggestions[i].ID == gapID {
			suggestion = &s.gaps.Suggestions[i]
			break
		}
	}
	if suggestion == nil {
		return fmt.Errorf("gap suggestion %s not found", gapID)
	}

	analysis, ok := s.gaps.InProgress[gapID]
	if !ok {
		return fmt.Errorf("gap %s has no analysis in progress", gapID)
	}
	for _, segment := range s.framework.Segments {
		if segment.ID == gapID {
			return fmt.Errorf("gap %s was already promoted", gapID)
		}
	}

	s.framework.Segments = append(s.framework.Segments, schemas.FrameworkSegment{
		ID:        gapID,
		Title:     suggestion.Title,
		Objective: suggestion.Objective,
		Guidance:  suggestion.Guidance,
		Order:     len(s.framework.Segments) + 1,
	})
	s.analyses[gapID] = analysis
	delete(s.gaps.InProgress, gapID)

	s.logger.Info("Promoted gap into main analysis.", zap.String("gap_id", gapID))
	return nil
}

// -- Reset --

// Reset returns all entity state to empty and the phase to the start.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phase = schemas.PhaseUploadAlign
	s.transcript = ""
	s.plannerOutput = nil
	s.framework = nil
	s.analyses = make(map[string]schemas.SegmentAnalysis)
	s.evaluations = make(map[string]schemas.CriticEvaluation)
	s.gaps = schemas.GapAnalysis{InProgress: make(map[string]schemas.SegmentAnalysis)}
	s.logger.Info("Analysis state reset.")
}
