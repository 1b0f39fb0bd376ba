package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/cyderes/dummy-etl/internal/config"
	"github.com/cyderes/dummy-etl/internal/models"
)

var (
	// ErrRowShape is returned when a row does not have one value per target field.
	ErrRowShape = errors.New("row does not match target fields")
	// ErrNoTargetFields is returned when a bulk insert names no columns.
	ErrNoTargetFields = errors.New("no target fields")
)

// Storage interface defines the contract for the destination database
type Storage interface {
	// EnsureTable creates the table when it does not exist. It is safe to call on every run.
	EnsureTable(ctx context.Context, schema models.TableSchema) error
	// BulkInsert writes every row into table in one batch. Each row must hold one value per
	// entry of targetFields, in the same order.
	BulkInsert(ctx context.Context, table string, rows []models.Row, targetFields []string) error
	Close() error
}

// NewStorage creates a new storage instance based on configuration
func NewStorage(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Type {
	case config.StorageTypeDynamoDB:
		return NewDynamoDBStorage(ctx, cfg)
	case config.StorageTypeMongoDB:
		return NewMongoDBStorage(ctx, cfg)
	case config.StorageTypePostgres:
		return NewPostgreSQLStorage(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// ValidateRows checks the shape of a bulk insert before any database call.
func ValidateRows(rows []models.Row, targetFields []string) error {
	if len(targetFields) == 0 {
		return ErrNoTargetFields
	}
	for i, row := range rows {
		if len(row) != len(targetFields) {
			return fmt.Errorf("%w: row %d has %d values, expected %d", ErrRowShape, i, len(row), len(targetFields))
		}
	}
	return nil
}
