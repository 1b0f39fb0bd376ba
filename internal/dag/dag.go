package dag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cyderes/dummy-etl/internal/logger"
)

const loggerName = "dummy-etl:dag"

var (
	ErrDuplicateTask = errors.New("duplicate task")
	ErrUnknownTask   = errors.New("unknown upstream task")
	ErrCycle         = errors.New("dependency cycle")
)

// TaskFunc is the body of a task.
type TaskFunc func(ctx context.Context) error

// Task is a named unit of work that runs after all of its Upstream tasks succeeded.
type Task struct {
	Name     string
	Upstream []string
	Run      TaskFunc
}

// Graph is a validated task graph with a fixed execution order.
type Graph struct {
	id    string
	tasks map[string]Task
	order []string
}

// TaskState is the outcome of a task in one Graph run.
type TaskState string

const (
	TaskSucceeded      TaskState = "success"
	TaskFailed         TaskState = "failed"
	TaskUpstreamFailed TaskState = "upstream_failed"
)

// TaskResult records one task execution.
type TaskResult struct {
	Task     string
	State    TaskState
	Duration time.Duration
	Err      error
}

// TaskError is returned by Run when a task fails. Downstream tasks are not executed.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// New validates tasks and computes their execution order. Tasks are ordered so that every
// task follows its upstream tasks, ties broken by declaration order.
func New(id string, tasks ...Task) (*Graph, error) {
	byName := make(map[string]Task, len(tasks))
	declared := make([]string, 0, len(tasks))
	for _, task := range tasks {
		if task.Name == "" {
			return nil, fmt.Errorf("graph %s: task without name", id)
		}
		if task.Run == nil {
			return nil, fmt.Errorf("graph %s: task %s has no body", id, task.Name)
		}
		if _, exists := byName[task.Name]; exists {
			return nil, fmt.Errorf("graph %s: %w: %s", id, ErrDuplicateTask, task.Name)
		}
		byName[task.Name] = task
		declared = append(declared, task.Name)
	}

	for _, name := range declared {
		for _, upstream := range byName[name].Upstream {
			if _, ok := byName[upstream]; !ok {
				return nil, fmt.Errorf("graph %s: %w: %s referenced by %s", id, ErrUnknownTask, upstream, name)
			}
		}
	}

	order, err := sortTasks(declared, byName)
	if err != nil {
		return nil, fmt.Errorf("graph %s: %w", id, err)
	}

	return &Graph{id: id, tasks: byName, order: order}, nil
}

// ID returns the graph identifier.
func (g *Graph) ID() string {
	return g.id
}

// Order returns the task names in execution order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Run executes the tasks one at a time in Order. The first failure stops the run: the
// failing task is reported as failed and every remaining task as upstream_failed.
func (g *Graph) Run(ctx context.Context) ([]TaskResult, error) {
	log := logger.FromContext(ctx).WithName(loggerName).With("graph", g.id)

	results := make([]TaskResult, 0, len(g.order))
	for i, name := range g.order {
		if err := ctx.Err(); err != nil {
			results = append(results, skipped(g.order[i:])...)
			return results, &TaskError{Task: name, Err: err}
		}

		log.Info("task started", "task", name)
		start := time.Now()
		err := g.tasks[name].Run(ctx)
		duration := time.Since(start)

		if err != nil {
			log.Error("task failed", "task", name, "duration", duration.String(), "error", err)
			results = append(results, TaskResult{Task: name, State: TaskFailed, Duration: duration, Err: err})
			results = append(results, skipped(g.order[i+1:])...)
			return results, &TaskError{Task: name, Err: err}
		}

		log.Info("task succeeded", "task", name, "duration", duration.String())
		results = append(results, TaskResult{Task: name, State: TaskSucceeded, Duration: duration})
	}

	return results, nil
}

func skipped(names []string) []TaskResult {
	results := make([]TaskResult, len(names))
	for i, name := range names {
		results[i] = TaskResult{Task: name, State: TaskUpstreamFailed}
	}
	return results
}

// sortTasks orders tasks depth first, visiting upstream tasks before their dependents.
func sortTasks(declared []string, tasks map[string]Task) ([]string, error) {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make(map[string]int, len(declared))
	order := make([]string, 0, len(declared))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("%w: %v", ErrCycle, append(path, name))
		}

		state[name] = visiting
		for _, upstream := range tasks[name].Upstream {
			if err := visit(upstream, append(path, name)); err != nil {
				return err
			}
		}
		state[name] = done
		order = append(order, name)
		return nil
	}

	for _, name := range declared {
		if err := visit(name, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}
