package models

import "time"

// Record is one raw element of a remote collection, as decoded from JSON.
type Record map[string]any

// Row is a tuple of values positionally aligned to a list of target fields.
type Row []any

// Column describes one column of a destination table.
type Column struct {
	Name       string
	Type       string
	PrimaryKey bool
	NotNull    bool
}

// TableSchema is the declarative shape of a destination table.
type TableSchema struct {
	Name    string
	Columns []Column
}

// Key returns the primary key column, if any.
func (t TableSchema) Key() (Column, bool) {
	for _, column := range t.Columns {
		if column.PrimaryKey {
			return column, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the declared column names in order.
func (t TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, column := range t.Columns {
		names[i] = column.Name
	}
	return names
}

const (
	TypeSerial = "SERIAL"
	TypeText   = "TEXT"
)

// PostsTable is the destination of the posts collection.
var PostsTable = TableSchema{
	Name: "posts",
	Columns: []Column{
		{Name: "postId", Type: TypeSerial, PrimaryKey: true},
		{Name: "title", Type: TypeText, NotNull: true},
		{Name: "body", Type: TypeText},
		{Name: "tags", Type: TypeText},
		{Name: "views", Type: TypeText},
		{Name: "userId", Type: TypeText},
		{Name: "likes", Type: TypeText},
		{Name: "dislikes", Type: TypeText},
	},
}

// UsersTable is the destination of the users collection.
var UsersTable = TableSchema{
	Name: "users",
	Columns: []Column{
		{Name: "userId", Type: TypeSerial, PrimaryKey: true},
		{Name: "firstName", Type: TypeText, NotNull: true},
		{Name: "lastName", Type: TypeText},
		{Name: "age", Type: TypeText},
		{Name: "gender", Type: TypeText},
		{Name: "city", Type: TypeText},
		{Name: "state", Type: TypeText},
		{Name: "university", Type: TypeText},
		{Name: "company", Type: TypeText},
		{Name: "title", Type: TypeText},
	},
}

// Run states reported by RunStatus.
const (
	StatusNeverRun = "never_run"
	StatusRunning  = "running"
	StatusSuccess  = "success"
	StatusFailure  = "failure"
)

// RunStatus tracks the latest scheduled run
type RunStatus struct {
	RunID             string         `json:"run_id,omitempty"`
	Status            string         `json:"status"`
	Attempts          int            `json:"attempts"`
	LastAttempt       time.Time      `json:"last_attempt,omitempty"`
	LastSuccessfulRun time.Time      `json:"last_successful_run,omitempty"`
	NextRun           time.Time      `json:"next_run,omitempty"`
	FailedTask        string         `json:"failed_task,omitempty"`
	ErrorMessage      string         `json:"error_message,omitempty"`
	RowsLoaded        map[string]int `json:"rows_loaded,omitempty"`
}
