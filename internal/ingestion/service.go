package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/cyderes/dummy-etl/internal/config"
	"github.com/cyderes/dummy-etl/internal/logger"
	"github.com/cyderes/dummy-etl/internal/models"
	"github.com/cyderes/dummy-etl/internal/storage"
	"github.com/cyderes/dummy-etl/internal/transform"
)

const loggerName = "dummy-etl:ingestion"

var (
	// ErrLoad matches every LoadError.
	ErrLoad = errors.New("load failure")
)

// LoadError reports a bulk insert that failed. Tables loaded before it stay loaded.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func (e *LoadError) Is(target error) bool {
	return target == ErrLoad
}

// Result counts the rows loaded per table by one Run.
type Result struct {
	Posts int
	Users int
}

// Service extracts users and posts, reshapes them and loads them into storage
type Service struct {
	extractor     *Extractor
	storage       storage.Storage
	users         transform.Projection
	posts         transform.Projection
	parallelFetch bool
}

// NewService creates a new ingestion service
func NewService(source config.SourceConfig, columns config.TransformConfig, store storage.Storage) *Service {
	return &Service{
		extractor: NewExtractor(source.BaseURL, &http.Client{
			Timeout: source.Timeout,
		}),
		storage:       store,
		users:         transform.UserProjection(columns.IncludeUniversity),
		posts:         transform.PostProjection(columns.PopulatePostUserID),
		parallelFetch: source.ParallelFetch,
	}
}

// Run performs one extract, transform and load pass. Both collections are fetched and
// transformed before anything is written; posts are loaded before users.
func (s *Service) Run(ctx context.Context) (Result, error) {
	log := logger.FromContext(ctx).WithName(loggerName)

	users, posts, err := s.fetchAll(ctx)
	if err != nil {
		return Result{}, err
	}
	log.Debug("collections fetched", "users", len(users), "posts", len(posts))

	userTable, err := s.users.Apply(users)
	if err != nil {
		return Result{}, fmt.Errorf("failed to transform users: %w", err)
	}
	postTable, err := s.posts.Apply(posts)
	if err != nil {
		return Result{}, fmt.Errorf("failed to transform posts: %w", err)
	}

	result := Result{}
	if err := s.load(ctx, models.PostsTable.Name, postTable); err != nil {
		return result, err
	}
	result.Posts = len(postTable.Rows)
	log.Info("posts loaded", "rows", result.Posts)

	if err := s.load(ctx, models.UsersTable.Name, userTable); err != nil {
		return result, err
	}
	result.Users = len(userTable.Rows)
	log.Info("users loaded", "rows", result.Users)

	return result, nil
}

func (s *Service) fetchAll(ctx context.Context) (users, posts []models.Record, err error) {
	if !s.parallelFetch {
		if users, err = s.extractor.FetchCollection(ctx, CollectionUsers); err != nil {
			return nil, nil, err
		}
		if posts, err = s.extractor.FetchCollection(ctx, CollectionPosts); err != nil {
			return nil, nil, err
		}
		return users, posts, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var fetchErr error
		users, fetchErr = s.extractor.FetchCollection(groupCtx, CollectionUsers)
		return fetchErr
	})
	group.Go(func() error {
		var fetchErr error
		posts, fetchErr = s.extractor.FetchCollection(groupCtx, CollectionPosts)
		return fetchErr
	})
	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	return users, posts, nil
}

func (s *Service) load(ctx context.Context, table string, data transform.Table) error {
	if err := s.storage.BulkInsert(ctx, table, data.Rows, data.Columns); err != nil {
		return &LoadError{Table: table, Err: err}
	}
	return nil
}
