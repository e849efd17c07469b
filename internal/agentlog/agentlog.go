// File: internal/agentlog/agentlog.go
// Description: Process-wide append-only log of every agent invocation, with
// synchronous pub/sub notification so observers (UI, tests) can mirror the
// full interaction history.
package agentlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/loupe-sh/loupe-cli/api/schemas"
)

// Subscriber receives the full current log sequence after every append.
type Subscriber func(entries []schemas.AgentLogEntry)

type subscription struct {
	id int
	fn Subscriber
}

// Log is the interaction log. Entries are immutable once written; the
// sequence is append-only and insertion-ordered, unbounded unless explicitly
// cleared. All mutation runs under one mutex, so the global append order
// reflects real request/response timing even when the underlying agent calls
// are concurrent.
type Log struct {
	logger *zap.Logger

	mu      sync.Mutex
	entries []schemas.AgentLogEntry
	subs    []subscription
	nextSub int
}

// New creates an empty interaction log.
func New(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("agent_log")}
}

// LogRequest appends a "request" entry for a call about to be dispatched and
// returns its id for terminal-entry correlation.
func (l *Log) LogRequest(agentName string, role schemas.AgentRole, systemPrompt, userPrompt, model string) string {
	entry := schemas.AgentLogEntry{
		ID:        uuid.NewString(),
		AgentName: agentName,
		Role:      role,
		Action:    schemas.LogActionRequest,
		Prompt:    &schemas.PromptPair{System: systemPrompt, User: userPrompt},
		Model:     model,
		Timestamp: time.Now().UTC(),
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.notifyLocked()
	l.mu.Unlock()

	l.logger.Debug("Agent request logged",
		zap.String("agent", agentName),
		zap.String("log_id", entry.ID),
		zap.String("model", model))
	return entry.ID
}

// LogResponse appends the terminal "response" entry correlated to a prior
// request id. Unknown ids are appended anyway (the correlation is advisory);
// at most one terminal entry should exist per request id.
func (l *Log) LogResponse(logID, content string, duration time.Duration, usage *schemas.TokenUsage) {
	l.mu.Lock()
	agentName, role, model := l.requestDetailsLocked(logID)
	entry := schemas.AgentLogEntry{
		ID:        logID,
		AgentName: agentName,
		Role:      role,
		Action:    schemas.LogActionResponse,
		Response:  content,
		Model:     model,
		Tokens:    usage,
		Duration:  duration,
		Timestamp: time.Now().UTC(),
	}
	l.entries = append(l.entries, entry)
	l.notifyLocked()
	l.mu.Unlock()

	l.logger.Debug("Agent response logged",
		zap.String("log_id", logID),
		zap.Duration("duration", duration))
}

// LogError appends a standalone "error" entry. It deliberately does not
// require a request id: failures may surface from module-level recovery paths
// that never held one.
func (l *Log) LogError(agentName string, role schemas.AgentRole, message string) {
	entry := schemas.AgentLogEntry{
		ID:        uuid.NewString(),
		AgentName: agentName,
		Role:      role,
		Action:    schemas.LogActionError,
		Error:     message,
		Timestamp: time.Now().UTC(),
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.notifyLocked()
	l.mu.Unlock()

	l.logger.Warn("Agent error logged",
		zap.String("agent", agentName),
		zap.String("error", message))
}

// Subscribe registers an observer and returns its unsubscribe function.
// Observers are notified synchronously, in subscription order, after every
// append, with a copy of the full current sequence.
func (l *Log) Subscribe(fn Subscriber) func() {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs = append(l.subs, subscription{id: id, fn: fn})
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, sub := range l.subs {
			if sub.id == id {
				l.subs = append(l.subs[:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

// Entries returns a copy of the current log sequence.
func (l *Log) Entries() []schemas.AgentLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// Clear discards all entries. Subscribers are notified with the now-empty
// sequence.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.notifyLocked()
	l.mu.Unlock()

	l.logger.Info("Interaction log cleared")
}

func (l *Log) snapshotLocked() []schemas.AgentLogEntry {
	out := make([]schemas.AgentLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) notifyLocked() {
	if len(l.subs) == 0 {
		return
	}
	snapshot := l.snapshotLocked()
	for _, sub := range l.subs {
		sub.fn(snapshot)
	}
}

// requestDetailsLocked recovers the agent identity recorded with the original
// request so terminal entries carry it too.
func (l *Log) requestDetailsLocked(logID string) (string, schemas.AgentRole, string) {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].ID == logID && l.entries[i].Action == schemas.LogActionRequest {
			return l.entries[i].AgentName, l.entries[i].Role, l.entries[i].Model
		}
	}
	return "", "", ""
}
