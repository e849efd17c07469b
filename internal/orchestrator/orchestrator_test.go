// File: internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/loupe-sh/loupe-cli/api/schemas"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func staticTask(id, output string) AgentTask {
	return AgentTask{
		ID:   id,
		Name: "task " + id,
		Work: func(ctx context.Context) (string, error) {
			return output, nil
		},
	}
}

func failingTask(id string, err error) AgentTask {
	return AgentTask{
		ID:   id,
		Name: "task " + id,
		Work: func(ctx context.Context) (string, error) {
			return "", err
		},
	}
}

func TestRunParallelAgents_AllSucceed(t *testing.T) {
	o := New(zaptest.NewLogger(t), 4)

	results := o.RunParallelAgents(context.Background(), []AgentTask{
		staticTask("a", "alpha"),
		staticTask("b", "beta"),
		staticTask("c", "gamma"),
	})

	assert.Equal(t, map[string]string{"a": "alpha", "b": "beta", "c": "gamma"}, results)

	for _, state := range o.Tasks() {
		assert.Equal(t, schemas.TaskCompleted, state.Status)
		assert.Equal(t, 1.0, state.Progress)
	}
}

func TestRunParallelAgents_FailureIsolation(t *testing.T) {
	o := New(zaptest.NewLogger(t), 4)

	results := o.RunParallelAgents(context.Background(), []AgentTask{
		staticTask("ok-1", "one"),
		failingTask("bad", errors.New("model unavailable")),
		staticTask("ok-2", "two"),
	})

	// Failed ids are excluded from the result map, siblings are unaffected.
	assert.Equal(t, map[string]string{"ok-1": "one", "ok-2": "two"}, results)

	byID := make(map[string]schemas.TaskState)
	for _, state := range o.Tasks() {
		byID[state.ID] = state
	}
	assert.Equal(t, schemas.TaskFailed, byID["bad"].Status)
	assert.Equal(t, "model unavailable", byID["bad"].Error)
	assert.Equal(t, schemas.TaskCompleted, byID["ok-1"].Status)
	assert.Equal(t, schemas.TaskCompleted, byID["ok-2"].Status)
}

func TestRunParallelAgents_PanicBecomesFailure(t *testing.T) {
	o := New(zaptest.NewLogger(t), 2)

	results := o.RunParallelAgents(context.Background(), []AgentTask{
		staticTask("ok", "fine"),
		{ID: "boom", Name: "panicking", Work: func(ctx context.Context) (string, error) {
			panic("unexpected nil")
		}},
	})

	assert.Equal(t, map[string]string{"ok": "fine"}, results)

	byID := make(map[string]schemas.TaskState)
	for _, state := range o.Tasks() {
		byID[state.ID] = state
	}
	assert.Equal(t, schemas.TaskFailed, byID["boom"].Status)
	assert.Contains(t, byID["boom"].Error, "panicked")
}

func TestRunParallelAgents_AllRegisteredIdleBeforeAnyStarts(t *testing.T) {
	o := New(zaptest.NewLogger(t), 2)

	var (
		mu        sync.Mutex
		snapshots [][]schemas.TaskState
	)
	unsubscribe := o.Subscribe(func(tasks []schemas.TaskState) {
		mu.Lock()
		defer mu.Unlock()
		copied := make([]schemas.TaskState, len(tasks))
		copy(copied, tasks)
		snapshots = append(snapshots, copied)
	})
	defer unsubscribe()

	o.RunParallelAgents(context.Background(), []AgentTask{
		staticTask("a", "1"),
		staticTask("b", "2"),
	})

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snapshots)

	// The second snapshot is the completed registration phase: both tasks
	// present and still idle.
	require.Len(t, snapshots[1], 2)
	for _, state := range snapshots[1] {
		assert.Equal(t, schemas.TaskIdle, state.Status)
	}

	// Final snapshot has everything settled.
	last := snapshots[len(snapshots)-1]
	for _, state := range last {
		assert.Equal(t, schemas.TaskCompleted, state.Status)
	}

	// Registration + one running + one settle notification per task.
	assert.Len(t, snapshots, 6)
}

func TestRunParallelAgents_ConcurrencyBound(t *testing.T) {
	const bound = 2

	var current, peak atomic.Int64
	task := func(id string) AgentTask {
		return AgentTask{
			ID:   id,
			Name: id,
			Work: func(ctx context.Context) (string, error) {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				current.Add(-1)
				return "done", nil
			},
		}
	}

	o := New(zaptest.NewLogger(t), bound)
	tasks := make([]AgentTask, 0, 6)
	for i := 0; i < 6; i++ {
		tasks = append(tasks, task(fmt.Sprintf("t%d", i)))
	}

	results := o.RunParallelAgents(context.Background(), tasks)
	assert.Len(t, results, 6)
	assert.LessOrEqual(t, peak.Load(), int64(bound))
}

func TestRunParallelAgents_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(zaptest.NewLogger(t), 1)
	results := o.RunParallelAgents(ctx, []AgentTask{staticTask("a", "never")})

	// Acquisition fails on a dead context; the task settles as failed.
	assert.Empty(t, results)
	states := o.Tasks()
	require.Len(t, states, 1)
	assert.Equal(t, schemas.TaskFailed, states[0].Status)
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	o := New(zaptest.NewLogger(t), 1)

	var calls atomic.Int64
	unsubscribe := o.Subscribe(func(tasks []schemas.TaskState) {
		calls.Add(1)
	})

	o.RunParallelAgents(context.Background(), []AgentTask{staticTask("a", "1")})
	seen := calls.Load()
	require.Positive(t, seen)

	unsubscribe()
	o.RunParallelAgents(context.Background(), []AgentTask{staticTask("b", "2")})
	assert.Equal(t, seen, calls.Load())
}

func TestRunParallelAgents_FreshStatePerRun(t *testing.T) {
	o := New(zaptest.NewLogger(t), 2)

	o.RunParallelAgents(context.Background(), []AgentTask{staticTask("first", "1")})
	o.RunParallelAgents(context.Background(), []AgentTask{staticTask("second", "2")})

	states := o.Tasks()
	require.Len(t, states, 1)
	assert.Equal(t, "second", states[0].ID)
}
