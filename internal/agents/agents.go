// File: internal/agents/agents.go
// Description: Shared call pattern for all agent roles. Every operation
// resolves its model and system instruction, logs the request, invokes the
// LLM facade, and logs exactly one terminal response or error entry.
package agents

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/loupe-sh/loupe-cli/api/schemas"
	"github.com/loupe-sh/loupe-cli/internal/agentlog"
)

// Deps bundles the collaborators every agent role needs.
type Deps struct {
	Facade       schemas.LLMFacade
	Log          *agentlog.Log
	Instructions schemas.InstructionResolver
	Logger       *zap.Logger
	// Model is the resolved model identifier for this role.
	Model string
}

// base implements the shared call/stream/log pattern. Role structs embed it.
type base struct {
	name         string
	role         schemas.AgentRole
	model        string
	facade       schemas.LLMFacade
	log          *agentlog.Log
	instructions schemas.InstructionResolver
	logger       *zap.Logger
}

func newBase(name string, role schemas.AgentRole, deps Deps) base {
	return base{
		name:         name,
		role:         role,
		model:        deps.Model,
		facade:       deps.Facade,
		log:          deps.Log,
		instructions: deps.Instructions,
		logger:       deps.Logger.Named(string(role)),
	}
}

// systemPrompt resolves the effective system prompt for an operation: the
// user override from the settings collaborator if present, else the
// compiled-in role default.
func (b *base) systemPrompt(method schemas.AgentMethod, fallback string) string {
	if b.instructions != nil {
		if instr, ok := b.instructions.Instruction(b.role, method); ok {
			return instr
		}
	}
	return fallback
}

// call runs one logged non-streaming completion. Transport failures are
// logged as an error entry and propagated to the caller.
func (b *base) call(ctx context.Context, systemPrompt, userPrompt string) (schemas.CompletionResult, error) {
	logID := b.log.LogRequest(b.name, b.role, systemPrompt, userPrompt, b.model)
	start := time.Now()

	result, err := b.facade.GenerateCompletion(ctx, systemPrompt, userPrompt, b.model)
	if err != nil {
		b.log.LogError(b.name, b.role, err.Error())
		return schemas.CompletionResult{}, err
	}

	b.log.LogResponse(logID, result.Content, time.Since(start), result.Usage)
	return result, nil
}

// StreamOutcome is the terminal event of one agent-level stream: the full
// accumulated text, or the error that aborted the generation.
type StreamOutcome struct {
	Text string
	Err  error
}

// stream runs one logged streaming completion, re-yielding every chunk to
// the caller while accumulating the full text locally. Exactly one
// StreamOutcome is delivered on the second channel; concatenating the
// re-yielded chunks equals the text recorded in the terminal log entry.
func (b *base) stream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan StreamOutcome) {
	out := make(chan string, 100)
	outcome := make(chan StreamOutcome, 1)

	go func() {
		defer close(out)
		defer close(outcome)

		logID := b.log.LogRequest(b.name, b.role, systemPrompt, userPrompt, b.model)
		start := time.Now()

		chunks, errs := b.facade.GenerateCompletionStream(ctx, systemPrompt, userPrompt, b.model)

		var builder strings.Builder
		for chunk := range chunks {
			select {
			case out <- chunk:
				builder.WriteString(chunk)
			case <-ctx.Done():
				// Drain the producer so it can terminate, then report.
				for range chunks {
				}
				<-errs
				b.log.LogError(b.name, b.role, ctx.Err().Error())
				outcome <- StreamOutcome{Err: ctx.Err()}
				return
			}
		}

		if err := <-errs; err != nil {
			b.log.LogError(b.name, b.role, err.Error())
			outcome <- StreamOutcome{Err: err}
			return
		}

		full := builder.String()
		b.log.LogResponse(logID, full, time.Since(start), nil)
		outcome <- StreamOutcome{Text: full}
	}()

	return out, outcome
}
