// File: internal/orchestrator/orchestrator.go
// Description: Fans a batch of agent tasks out concurrently with bounded
// parallelism and isolated failures. Observers receive the full task-list
// snapshot after every individual state change.

package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/loupe-sh/loupe-cli/api/schemas"
)

// AgentTask is one unit of work in a parallel batch. ID is chosen by the
// caller (typically the segment id) and keys the result map.
type AgentTask struct {
	ID   string
	Name string
	Work func(ctx context.Context) (string, error)
}

// Subscriber receives the full task-list snapshot after every state change.
type Subscriber func(tasks []schemas.TaskState)

type subscription struct {
	id int
	fn Subscriber
}

// Orchestrator runs agent task batches. Task state is ephemeral, existing
// only for the duration of one run; subscriptions persist across runs.
type Orchestrator struct {
	logger        *zap.Logger
	maxConcurrent int64

	mu      sync.Mutex
	tasks   map[string]*schemas.TaskState
	order   []string
	subs    []subscription
	nextSub int
}

// New creates an Orchestrator bounding each batch to maxConcurrent tasks in
// flight. A non-positive bound runs every task concurrently.
func New(logger *zap.Logger, maxConcurrent int) *Orchestrator {
	return &Orchestrator{
		logger:        logger.Named("orchestrator"),
		maxConcurrent: int64(maxConcurrent),
		tasks:         make(map[string]*schemas.TaskState),
	}
}

// Subscribe registers an observer and returns its unsubscribe function.
// Observers are notified synchronously, in subscription order.
func (o *Orchestrator) Subscribe(fn Subscriber) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := o.nextSub
	o.nextSub++
	o.subs = append(o.subs, subscription{id: id, fn: fn})

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, sub := range o.subs {
			if sub.id == id {
				o.subs = append(o.subs[:i], o.subs[i+1:]...)
				return
			}
		}
	}
}

// Tasks returns a snapshot of the current batch in registration order.
func (o *Orchestrator) Tasks() []schemas.TaskState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// RunParallelAgents executes a batch. Every task is registered idle before
// any starts; the tasks then run concurrently, each settling independently.
// The returned map contains only the ids that completed successfully; a
// failing task is recorded as failed and never cancels its siblings.
func (o *Orchestrator) RunParallelAgents(ctx context.Context, tasks []AgentTask) map[string]string {
	o.mu.Lock()
	o.tasks = make(map[string]*schemas.TaskState, len(tasks))
	o.order = make([]string, 0, len(tasks))
	for _, task := range tasks {
		o.tasks[task.ID] = &schemas.TaskState{
			ID:     task.ID,
			Name:   task.Name,
			Status: schemas.TaskIdle,
		}
		o.order = append(o.order, task.ID)
		o.notifyLocked()
	}
	o.mu.Unlock()

	o.logger.Info("Starting parallel agent batch.",
		zap.Int("tasks", len(tasks)),
		zap.Int64("max_concurrent", o.maxConcurrent))

	limit := o.maxConcurrent
	if limit <= 0 {
		limit = int64(len(tasks)) + 1
	}
	sem := semaphore.NewWeighted(limit)

	var (
		wg        sync.WaitGroup
		resultsMu sync.Mutex
		results   = make(map[string]string, len(tasks))
	)

	for _, task := range tasks {
		wg.Add(1)
		go func(task AgentTask) {
			defer wg.Done()

			if err := sem.Acquire(ctx, 1); err != nil {
				o.settle(task.ID, "", err)
				return
			}
			defer sem.Release(1)

			o.transition(task.ID, schemas.TaskRunning)

			output, err := o.invoke(ctx, task)
			o.settle(task.ID, output, err)
			if err == nil {
				resultsMu.Lock()
				results[task.ID] = output
				resultsMu.Unlock()
			}
		}(task)
	}
	wg.Wait()

	o.logger.Info("Parallel agent batch settled.",
		zap.Int("succeeded", len(results)),
		zap.Int("failed", len(tasks)-len(results)))
	return results
}

// invoke runs one work function, converting a panic into a task failure so a
// misbehaving task cannot take the batch down.
func (o *Orchestrator) invoke(ctx context.Context, task AgentTask) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			o.logger.Error("Agent task panicked.", zap.String("task_id", task.ID), zap.Any("panic", r))
		}
	}()
	return task.Work(ctx)
}

func (o *Orchestrator) transition(id string, status schemas.TaskStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.tasks[id]
	if !ok {
		return
	}
	state.Status = status
	o.notifyLocked()
}

func (o *Orchestrator) settle(id, output string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state, ok := o.tasks[id]
	if !ok {
		return
	}
	if err != nil {
		state.Status = schemas.TaskFailed
		state.Error = err.Error()
	} else {
		state.Status = schemas.TaskCompleted
		state.Progress = 1
		state.Output = output
	}
	o.notifyLocked()
}

func (o *Orchestrator) snapshotLocked() []schemas.TaskState {
	snapshot := make([]schemas.TaskState, 0, len(o.order))
	for _, id := range o.order {
		snapshot = append(snapshot, *o.tasks[id])
	}
	return snapshot
}

func (o *Orchestrator) notifyLocked() {
	if len(o.subs) == 0 {
		return
	}
	snapshot := o.snapshotLocked()
	for _, sub := range o.subs {
		sub.fn(snapshot)
	}
}
