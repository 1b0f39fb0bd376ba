package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/cyderes/dummy-etl/internal/dag"
	"github.com/cyderes/dummy-etl/internal/ingestion"
	"github.com/cyderes/dummy-etl/internal/logger"
	"github.com/cyderes/dummy-etl/internal/models"
	"github.com/cyderes/dummy-etl/internal/storage"
)

const (
	loggerName = "dummy-etl:pipeline"

	DagID                = "etl_dummy_data"
	TaskCreatePostsTable = "create_posts_table"
	TaskCreateUsersTable = "create_users_table"
	TaskETL              = "etl_data"
)

var (
	// ErrSchema matches every SchemaError.
	ErrSchema = errors.New("schema failure")
)

// SchemaError reports a table that could not be provisioned.
type SchemaError struct {
	Table string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("failed to provision table %s: %v", e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// Ingestor runs the extract, transform and load step.
type Ingestor interface {
	Run(ctx context.Context) (ingestion.Result, error)
}

// Report describes one pipeline run.
type Report struct {
	Tasks []dag.TaskResult
	Rows  ingestion.Result
}

// Pipeline provisions the destination tables and then runs the ingestion, strictly in
// sequence: create_posts_table, create_users_table, etl_data.
type Pipeline struct {
	store    storage.Storage
	ingestor Ingestor
}

// New creates a Pipeline and validates its task graph.
func New(store storage.Storage, ingestor Ingestor) (*Pipeline, error) {
	p := &Pipeline{store: store, ingestor: ingestor}
	if _, err := p.graph(&ingestion.Result{}); err != nil {
		return nil, err
	}
	return p, nil
}

// Tasks returns the task names in execution order.
func (p *Pipeline) Tasks() []string {
	graph, _ := p.graph(&ingestion.Result{})
	return graph.Order()
}

// Run executes the task graph once. It never retries; a failing task stops the run and is
// returned as a *dag.TaskError wrapping a SchemaError, FetchError or LoadError.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	log := logger.FromContext(ctx).WithName(loggerName)

	var rows ingestion.Result
	graph, err := p.graph(&rows)
	if err != nil {
		return Report{}, err
	}

	log.Info("pipeline run started", "dag", graph.ID())
	tasks, err := graph.Run(ctx)
	report := Report{Tasks: tasks, Rows: rows}
	if err != nil {
		log.Error("pipeline run failed", "dag", graph.ID(), "error", err)
		return report, err
	}

	log.Info("pipeline run succeeded", "dag", graph.ID(), "posts", rows.Posts, "users", rows.Users)
	return report, nil
}

func (p *Pipeline) graph(rows *ingestion.Result) (*dag.Graph, error) {
	return dag.New(DagID,
		dag.Task{
			Name: TaskCreatePostsTable,
			Run:  p.ensureTable(models.PostsTable),
		},
		dag.Task{
			Name:     TaskCreateUsersTable,
			Upstream: []string{TaskCreatePostsTable},
			Run:      p.ensureTable(models.UsersTable),
		},
		dag.Task{
			Name:     TaskETL,
			Upstream: []string{TaskCreateUsersTable},
			Run: func(ctx context.Context) error {
				result, err := p.ingestor.Run(ctx)
				*rows = result
				return err
			},
		},
	)
}

func (p *Pipeline) ensureTable(schema models.TableSchema) dag.TaskFunc {
	return func(ctx context.Context) error {
		if err := p.store.EnsureTable(ctx, schema); err != nil {
			return &SchemaError{Table: schema.Name, Err: err}
		}
		return nil
	}
}
