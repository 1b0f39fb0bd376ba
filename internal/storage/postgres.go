package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/cyderes/dummy-etl/internal/config"
	"github.com/cyderes/dummy-etl/internal/models"
)

// maxBindParameters is the PostgreSQL limit of parameters in a single statement.
const maxBindParameters = 65535

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// sqlTx is the subset of *sql.Tx used by PostgreSQLStorage.
type sqlTx interface {
	sqlExecer
	Commit() error
	Rollback() error
}

// sqlDB is the subset of *sql.DB used by PostgreSQLStorage.
type sqlDB interface {
	sqlExecer
	PingContext(ctx context.Context) error
	BeginTx(ctx context.Context, opts *sql.TxOptions) (sqlTx, error)
	Close() error
}

// sqlConn adapts *sql.DB to sqlDB.
type sqlConn struct {
	*sql.DB
}

func (c sqlConn) BeginTx(ctx context.Context, opts *sql.TxOptions) (sqlTx, error) {
	tx, err := c.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// PostgreSQLStorage implements Storage on top of lib/pq
type PostgreSQLStorage struct {
	db        sqlDB
	timeout   time.Duration
	maxParams int
}

// NewPostgreSQLStorage opens and pings the database at cfg.PostgresURI.
func NewPostgreSQLStorage(ctx context.Context, cfg config.StorageConfig) (*PostgreSQLStorage, error) {
	db, err := sql.Open("postgres", cfg.PostgresURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	return newPostgreSQLStorage(sqlConn{DB: db}, cfg.Timeout), nil
}

func newPostgreSQLStorage(db sqlDB, timeout time.Duration) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		db:        db,
		timeout:   timeout,
		maxParams: maxBindParameters,
	}
}

// EnsureTable runs a CREATE TABLE IF NOT EXISTS for schema.
func (p *PostgreSQLStorage) EnsureTable(ctx context.Context, schema models.TableSchema) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.db.ExecContext(ctx, CreateTableStatement(schema)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", schema.Name, err)
	}
	return nil
}

// BulkInsert writes rows with multi-row INSERT statements. A single statement is used unless
// the rows need more bind parameters than PostgreSQL accepts; the statements are then run in
// one transaction so the table is loaded completely or not at all.
func (p *PostgreSQLStorage) BulkInsert(ctx context.Context, table string, rows []models.Row, targetFields []string) error {
	if err := ValidateRows(rows, targetFields); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	batchSize := p.maxParams / len(targetFields)
	if batchSize == 0 {
		return fmt.Errorf("table %s: %d target fields exceed the parameter limit", table, len(targetFields))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if len(rows) <= batchSize {
		if _, err := p.db.ExecContext(ctx, InsertStatement(table, targetFields, len(rows)), insertArgs(rows)...); err != nil {
			return fmt.Errorf("failed to insert rows 0-%d into %s: %w", len(rows)-1, table, err)
		}
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", table, err)
	}

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		batch := rows[start:end]

		if _, err := tx.ExecContext(ctx, InsertStatement(table, targetFields, len(batch)), insertArgs(batch)...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert rows %d-%d into %s: %w", start, end-1, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rows into %s: %w", table, err)
	}
	return nil
}

func insertArgs(rows []models.Row) []any {
	args := make([]any, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		for _, value := range row {
			args = append(args, sqlValue(value))
		}
	}
	return args
}

// Close closes the database handle
func (p *PostgreSQLStorage) Close() error {
	return p.db.Close()
}

// CreateTableStatement renders the idempotent DDL of schema.
func CreateTableStatement(schema models.TableSchema) string {
	definitions := make([]string, len(schema.Columns))
	for i, column := range schema.Columns {
		definition := identifier(column.Name) + " " + column.Type
		if column.PrimaryKey {
			definition += " PRIMARY KEY"
		}
		if column.NotNull {
			definition += " NOT NULL"
		}
		definitions[i] = definition
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		identifier(schema.Name),
		strings.Join(definitions, ",\n\t"))
}

// InsertStatement renders a multi-row INSERT with positional placeholders.
func InsertStatement(table string, targetFields []string, rowCount int) string {
	var b strings.Builder

	b.WriteString("INSERT INTO ")
	b.WriteString(identifier(table))
	b.WriteString(" (")
	for i, field := range targetFields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(identifier(field))
	}
	b.WriteString(") VALUES ")

	param := 1
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for f := range targetFields {
			if f > 0 {
				b.WriteString(", ")
			}
			b.WriteString("$")
			b.WriteString(strconv.Itoa(param))
			param++
		}
		b.WriteString(")")
	}

	return b.String()
}

// identifier quotes name after folding it to lower case, the form PostgreSQL gives unquoted
// identifiers, so tables created with unquoted DDL such as postId -> postid stay compatible.
func identifier(name string) string {
	return pq.QuoteIdentifier(strings.ToLower(name))
}

// sqlValue converts decoded JSON values into driver values for TEXT-compatible columns.
func sqlValue(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case json.Number:
		return typed.String()
	case []string:
		return pq.Array(typed)
	case []any:
		items := make([]string, len(typed))
		for i, item := range typed {
			items[i] = fmt.Sprint(item)
		}
		return pq.Array(items)
	case map[string]any:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprint(typed)
		}
		return string(encoded)
	default:
		return typed
	}
}
