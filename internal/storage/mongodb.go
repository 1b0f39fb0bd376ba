package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/cyderes/dummy-etl/internal/config"
	"github.com/cyderes/dummy-etl/internal/models"
)

// MongoDBStorage implements Storage with one collection per table
type MongoDBStorage struct {
	client   *mongo.Client
	database *mongo.Database
	timeout  time.Duration
}

// NewMongoDBStorage connects to cfg.MongoDBURI and uses cfg.MongoDatabase.
func NewMongoDBStorage(ctx context.Context, cfg config.StorageConfig) (*MongoDBStorage, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to reach mongodb: %w", err)
	}

	return &MongoDBStorage{
		client:   client,
		database: client.Database(cfg.MongoDatabase),
		timeout:  cfg.Timeout,
	}, nil
}

// EnsureTable creates the collection and a unique index on the key column when missing.
func (m *MongoDBStorage) EnsureTable(ctx context.Context, schema models.TableSchema) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	names, err := m.database.ListCollectionNames(ctx, bson.D{{Key: "name", Value: schema.Name}})
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	if len(names) == 0 {
		if err := m.database.CreateCollection(ctx, schema.Name); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", schema.Name, err)
		}
	}

	key, ok := schema.Key()
	if !ok {
		return nil
	}
	_, err = m.database.Collection(schema.Name).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: key.Name, Value: 1}},
		Options: options.Index().SetUnique(true).SetName(key.Name + "_unique"),
	})
	if err != nil {
		return fmt.Errorf("failed to create key index on %s: %w", schema.Name, err)
	}
	return nil
}

// BulkInsert writes rows with a single ordered InsertMany.
func (m *MongoDBStorage) BulkInsert(ctx context.Context, table string, rows []models.Row, targetFields []string) error {
	if err := ValidateRows(rows, targetFields); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	documents := make([]interface{}, len(rows))
	for i, row := range rows {
		documents[i] = toDocument(row, targetFields)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if _, err := m.database.Collection(table).InsertMany(ctx, documents, options.InsertMany().SetOrdered(true)); err != nil {
		return fmt.Errorf("failed to insert documents into %s: %w", table, err)
	}
	return nil
}

// Close disconnects the client
func (m *MongoDBStorage) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

// toDocument keeps the target field order so documents read back like table rows.
func toDocument(row models.Row, targetFields []string) bson.D {
	document := make(bson.D, len(targetFields))
	for i, field := range targetFields {
		document[i] = bson.E{Key: field, Value: bsonValue(row[i])}
	}
	return document
}

func bsonValue(value any) any {
	switch typed := value.(type) {
	case json.Number:
		if n, err := typed.Int64(); err == nil {
			return n
		}
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	case []any:
		items := make(bson.A, len(typed))
		for i, item := range typed {
			items[i] = bsonValue(item)
		}
		return items
	case map[string]any:
		nested := make(bson.M, len(typed))
		for key, item := range typed {
			nested[key] = bsonValue(item)
		}
		return nested
	default:
		return typed
	}
}
