package dag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recorder(calls *[]string, name string, err error) TaskFunc {
	return func(context.Context) error {
		*calls = append(*calls, name)
		return err
	}
}

func TestNew_OrdersUpstreamFirst(t *testing.T) {
	t.Parallel()

	var calls []string
	graph, err := New("test",
		Task{Name: "load", Upstream: []string{"transform"}, Run: recorder(&calls, "load", nil)},
		Task{Name: "extract", Run: recorder(&calls, "extract", nil)},
		Task{Name: "transform", Upstream: []string{"extract"}, Run: recorder(&calls, "transform", nil)},
	)
	require.NoError(t, err)

	assert.Equal(t, "test", graph.ID())
	assert.Equal(t, []string{"extract", "transform", "load"}, graph.Order())
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	noop := func(context.Context) error { return nil }

	t.Run("duplicate task", func(t *testing.T) {
		t.Parallel()
		_, err := New("g", Task{Name: "a", Run: noop}, Task{Name: "a", Run: noop})
		assert.ErrorIs(t, err, ErrDuplicateTask)
	})

	t.Run("unknown upstream", func(t *testing.T) {
		t.Parallel()
		_, err := New("g", Task{Name: "a", Upstream: []string{"missing"}, Run: noop})
		assert.ErrorIs(t, err, ErrUnknownTask)
		assert.ErrorContains(t, err, "missing referenced by a")
	})

	t.Run("cycle", func(t *testing.T) {
		t.Parallel()
		_, err := New("g",
			Task{Name: "a", Upstream: []string{"c"}, Run: noop},
			Task{Name: "b", Upstream: []string{"a"}, Run: noop},
			Task{Name: "c", Upstream: []string{"b"}, Run: noop},
		)
		assert.ErrorIs(t, err, ErrCycle)
	})

	t.Run("missing body", func(t *testing.T) {
		t.Parallel()
		_, err := New("g", Task{Name: "a"})
		assert.ErrorContains(t, err, "task a has no body")
	})

	t.Run("missing name", func(t *testing.T) {
		t.Parallel()
		_, err := New("g", Task{Run: noop})
		assert.ErrorContains(t, err, "task without name")
	})
}

func TestGraph_Run(t *testing.T) {
	t.Parallel()

	var calls []string
	graph, err := New("test",
		Task{Name: "first", Run: recorder(&calls, "first", nil)},
		Task{Name: "second", Upstream: []string{"first"}, Run: recorder(&calls, "second", nil)},
		Task{Name: "third", Upstream: []string{"second"}, Run: recorder(&calls, "third", nil)},
	)
	require.NoError(t, err)

	results, err := graph.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second", "third"}, calls)
	require.Len(t, results, 3)
	for _, result := range results {
		assert.Equal(t, TaskSucceeded, result.State)
	}
}

func TestGraph_Run_FailureHaltsDownstream(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var calls []string
	graph, err := New("test",
		Task{Name: "first", Run: recorder(&calls, "first", nil)},
		Task{Name: "second", Upstream: []string{"first"}, Run: recorder(&calls, "second", boom)},
		Task{Name: "third", Upstream: []string{"second"}, Run: recorder(&calls, "third", nil)},
	)
	require.NoError(t, err)

	results, err := graph.Run(context.Background())

	assert.ErrorIs(t, err, boom)
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "second", taskErr.Task)
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, []TaskState{TaskSucceeded, TaskFailed, TaskUpstreamFailed}, []TaskState{results[0].State, results[1].State, results[2].State})
}

func TestGraph_Run_CancelledContext(t *testing.T) {
	t.Parallel()

	var calls []string
	graph, err := New("test", Task{Name: "only", Run: recorder(&calls, "only", nil)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := graph.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, calls)
	assert.Equal(t, TaskUpstreamFailed, results[0].State)
}
