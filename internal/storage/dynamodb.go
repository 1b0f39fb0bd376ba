package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/cyderes/dummy-etl/internal/config"
	"github.com/cyderes/dummy-etl/internal/models"
)

const (
	// dynamoBatchLimit is the maximum number of put requests per BatchWriteItem call.
	dynamoBatchLimit = 25
	// maxUnprocessedRetries bounds the resubmission of throttled items.
	maxUnprocessedRetries = 5
	// unprocessedBackoff is the first pause before resubmitting unprocessed items; it doubles on
	// every attempt.
	unprocessedBackoff = 50 * time.Millisecond
)

// DynamoDBStorage implements Storage interface using AWS DynamoDB
type DynamoDBStorage struct {
	client  dynamodbiface.DynamoDBAPI
	timeout time.Duration
	backoff time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewDynamoDBStorage creates a new DynamoDB storage instance
func NewDynamoDBStorage(_ context.Context, cfg config.StorageConfig) (*DynamoDBStorage, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}

	// For local testing with DynamoDB Local
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &DynamoDBStorage{
		client:  dynamodb.New(sess),
		timeout: cfg.Timeout,
		backoff: unprocessedBackoff,
		sleep:   waitContext,
	}, nil
}

// EnsureTable creates the DynamoDB table keyed on the schema primary key if it doesn't exist
func (d *DynamoDBStorage) EnsureTable(ctx context.Context, schema models.TableSchema) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	key, ok := schema.Key()
	if !ok {
		return fmt.Errorf("table %s: dynamodb requires a primary key column", schema.Name)
	}

	_, err := d.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(schema.Name),
	})
	if err == nil {
		return nil
	}
	if aerr, ok := err.(awserr.Error); !ok || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return fmt.Errorf("failed to describe table %s: %w", schema.Name, err)
	}

	input := &dynamodb.CreateTableInput{
		TableName: aws.String(schema.Name),
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String(key.Name),
				KeyType:       aws.String(dynamodb.KeyTypeHash),
			},
		},
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String(key.Name),
				AttributeType: aws.String(keyAttributeType(key)),
			},
		},
		BillingMode: aws.String(dynamodb.BillingModePayPerRequest),
	}

	if _, err := d.client.CreateTableWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to create table %s: %w", schema.Name, err)
	}

	return d.client.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(schema.Name),
	})
}

// BulkInsert writes rows with BatchWriteItem in chunks of 25 items.
func (d *DynamoDBStorage) BulkInsert(ctx context.Context, table string, rows []models.Row, targetFields []string) error {
	if err := ValidateRows(rows, targetFields); err != nil {
		return err
	}

	requests := make([]*dynamodb.WriteRequest, 0, len(rows))
	for i, row := range rows {
		item, err := toItem(row, targetFields)
		if err != nil {
			return fmt.Errorf("failed to marshal row %d for %s: %w", i, table, err)
		}
		requests = append(requests, &dynamodb.WriteRequest{PutRequest: &dynamodb.PutRequest{Item: item}})
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	for start := 0; start < len(requests); start += dynamoBatchLimit {
		end := min(start+dynamoBatchLimit, len(requests))
		if err := d.writeBatch(ctx, table, requests[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (d *DynamoDBStorage) writeBatch(ctx context.Context, table string, requests []*dynamodb.WriteRequest) error {
	pending := map[string][]*dynamodb.WriteRequest{table: requests}
	for attempt := 0; attempt <= maxUnprocessedRetries; attempt++ {
		output, err := d.client.BatchWriteItemWithContext(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("failed to write batch into %s: %w", table, err)
		}
		if len(output.UnprocessedItems[table]) == 0 {
			return nil
		}
		pending = output.UnprocessedItems

		if attempt < maxUnprocessedRetries {
			if err := d.wait(ctx, d.backoff<<attempt); err != nil {
				return fmt.Errorf("failed to write batch into %s: %w", table, err)
			}
		}
	}
	return fmt.Errorf("failed to write batch into %s: %d items left unprocessed", table, len(pending[table]))
}

func (d *DynamoDBStorage) wait(ctx context.Context, delay time.Duration) error {
	if d.sleep == nil {
		return waitContext(ctx, delay)
	}
	return d.sleep(ctx, delay)
}

func waitContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Close closes the DynamoDB connection
func (d *DynamoDBStorage) Close() error {
	// DynamoDB client doesn't need explicit closing
	return nil
}

func keyAttributeType(column models.Column) string {
	if column.Type == models.TypeSerial {
		return dynamodb.ScalarAttributeTypeN
	}
	return dynamodb.ScalarAttributeTypeS
}

func toItem(row models.Row, targetFields []string) (map[string]*dynamodb.AttributeValue, error) {
	item := make(map[string]*dynamodb.AttributeValue, len(targetFields))
	for i, field := range targetFields {
		value, err := attributeValue(row[i])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}
		item[field] = value
	}
	return item, nil
}

func attributeValue(value any) (*dynamodb.AttributeValue, error) {
	switch typed := value.(type) {
	case nil:
		return &dynamodb.AttributeValue{NULL: aws.Bool(true)}, nil
	case json.Number:
		return &dynamodb.AttributeValue{N: aws.String(typed.String())}, nil
	case float64:
		return &dynamodb.AttributeValue{N: aws.String(strconv.FormatFloat(typed, 'f', -1, 64))}, nil
	case []any:
		list := make([]*dynamodb.AttributeValue, len(typed))
		for i, item := range typed {
			converted, err := attributeValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = converted
		}
		return &dynamodb.AttributeValue{L: list}, nil
	default:
		return dynamodbattribute.Marshal(typed)
	}
}
