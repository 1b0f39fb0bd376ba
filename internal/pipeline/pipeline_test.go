package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cyderes/dummy-etl/internal/config"
	"github.com/cyderes/dummy-etl/internal/dag"
	"github.com/cyderes/dummy-etl/internal/ingestion"
	"github.com/cyderes/dummy-etl/internal/models"
	"github.com/cyderes/dummy-etl/internal/storage"
)

// MockStorage is a mock implementation of the Storage interface
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) EnsureTable(ctx context.Context, schema models.TableSchema) error {
	return m.Called(ctx, schema).Error(0)
}

func (m *MockStorage) BulkInsert(ctx context.Context, table string, rows []models.Row, targetFields []string) error {
	return m.Called(ctx, table, rows, targetFields).Error(0)
}

func (m *MockStorage) Close() error {
	return m.Called().Error(0)
}

// MockIngestor is a mock implementation of the Ingestor interface
type MockIngestor struct {
	mock.Mock
}

func (m *MockIngestor) Run(ctx context.Context) (ingestion.Result, error) {
	args := m.Called(ctx)
	return args.Get(0).(ingestion.Result), args.Error(1)
}

// memoryStorage keeps tables in memory without key enforcement.
type memoryStorage struct {
	mu      sync.Mutex
	creates map[string]int
	tables  map[string][]models.Row
	fields  map[string][]string
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{
		creates: map[string]int{},
		tables:  map[string][]models.Row{},
		fields:  map[string][]string{},
	}
}

func (m *memoryStorage) EnsureTable(_ context.Context, schema models.TableSchema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[schema.Name]; !ok {
		m.tables[schema.Name] = []models.Row{}
		m.creates[schema.Name]++
	}
	return nil
}

func (m *memoryStorage) BulkInsert(_ context.Context, table string, rows []models.Row, targetFields []string) error {
	if err := storage.ValidateRows(rows, targetFields); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tables[table]
	if !ok {
		return assert.AnError
	}
	m.tables[table] = append(existing, rows...)
	m.fields[table] = targetFields
	return nil
}

func (m *memoryStorage) Close() error { return nil }

func TestPipeline_Tasks(t *testing.T) {
	t.Parallel()

	p, err := New(new(MockStorage), new(MockIngestor))
	require.NoError(t, err)
	assert.Equal(t, []string{TaskCreatePostsTable, TaskCreateUsersTable, TaskETL}, p.Tasks())
}

func TestPipeline_Run_Order(t *testing.T) {
	t.Parallel()

	var order []string
	store := new(MockStorage)
	store.On("EnsureTable", mock.Anything, models.PostsTable).Run(func(mock.Arguments) { order = append(order, "posts") }).Return(nil).Once()
	store.On("EnsureTable", mock.Anything, models.UsersTable).Run(func(mock.Arguments) { order = append(order, "users") }).Return(nil).Once()
	ingestor := new(MockIngestor)
	ingestor.On("Run", mock.Anything).Run(func(mock.Arguments) { order = append(order, "etl") }).Return(ingestion.Result{Posts: 3, Users: 2}, nil).Once()

	p, err := New(store, ingestor)
	require.NoError(t, err)

	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"posts", "users", "etl"}, order)
	assert.Equal(t, ingestion.Result{Posts: 3, Users: 2}, report.Rows)
	require.Len(t, report.Tasks, 3)
	store.AssertExpectations(t)
	ingestor.AssertExpectations(t)
}

func TestPipeline_Run_SchemaFailureAbortsBeforeExtraction(t *testing.T) {
	t.Parallel()

	store := new(MockStorage)
	store.On("EnsureTable", mock.Anything, models.PostsTable).Return(assert.AnError).Once()
	ingestor := new(MockIngestor)

	p, err := New(store, ingestor)
	require.NoError(t, err)

	report, err := p.Run(context.Background())

	assert.ErrorIs(t, err, ErrSchema)
	assert.ErrorIs(t, err, assert.AnError)
	var taskErr *dag.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, TaskCreatePostsTable, taskErr.Task)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "posts", schemaErr.Table)

	assert.Equal(t, dag.TaskFailed, report.Tasks[0].State)
	assert.Equal(t, dag.TaskUpstreamFailed, report.Tasks[1].State)
	assert.Equal(t, dag.TaskUpstreamFailed, report.Tasks[2].State)
	store.AssertNotCalled(t, "EnsureTable", mock.Anything, models.UsersTable)
	ingestor.AssertNotCalled(t, "Run", mock.Anything)
}

func newDummyAPI(t *testing.T, usersStatus int) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/users":
			if usersStatus != http.StatusOK {
				w.WriteHeader(usersStatus)
				return
			}
			_, _ = w.Write([]byte(`{"users": [
				{"id": 1, "firstName": "Ana", "address": {"city": "Lima", "stateCode": "LI"}, "company": {"name": "Acme", "title": "Eng"}, "university": "X"},
				{"id": 2, "firstName": "Bo", "address": {"city": "Rome", "stateCode": "RM"}, "company": {"name": "Ink", "title": "Dev"}, "university": "Y"}
			]}`))
		case "/posts":
			_, _ = w.Write([]byte(`{"posts": [
				{"id": 1, "title": "t1", "body": "b1", "tags": ["x"], "views": 3, "userId": 1, "reactions": {"likes": 1, "dislikes": 0}}
			]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPipeline_Run_TwiceDuplicatesRows(t *testing.T) {
	t.Parallel()

	server := newDummyAPI(t, http.StatusOK)
	store := newMemoryStorage()
	service := ingestion.NewService(config.SourceConfig{BaseURL: server.URL, Timeout: 5 * time.Second}, config.TransformConfig{}, store)

	p, err := New(store, service)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		report, err := p.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ingestion.Result{Posts: 1, Users: 2}, report.Rows)
	}

	assert.Equal(t, map[string]int{"posts": 1, "users": 1}, store.creates)
	assert.Len(t, store.tables["posts"], 2)
	assert.Len(t, store.tables["users"], 4)
	assert.Equal(t, store.tables["users"][0], store.tables["users"][2])
	assert.Equal(t, []string{"userId", "firstName", "lastName", "age", "gender", "city", "state", "company", "title"}, store.fields["users"])
}

func TestPipeline_Run_FetchFailureLeavesTablesEmpty(t *testing.T) {
	t.Parallel()

	server := newDummyAPI(t, http.StatusBadGateway)
	store := newMemoryStorage()
	service := ingestion.NewService(config.SourceConfig{BaseURL: server.URL, Timeout: 5 * time.Second}, config.TransformConfig{}, store)

	p, err := New(store, service)
	require.NoError(t, err)

	_, err = p.Run(context.Background())

	assert.ErrorIs(t, err, ingestion.ErrFetch)
	var taskErr *dag.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, TaskETL, taskErr.Task)
	assert.Contains(t, err.Error(), "users")
	assert.Empty(t, store.tables["posts"])
	assert.Empty(t, store.tables["users"])
}
