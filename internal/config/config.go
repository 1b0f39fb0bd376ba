package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	StorageTypePostgres = "postgresql"
	StorageTypeMongoDB  = "mongodb"
	StorageTypeDynamoDB = "dynamodb"
)

var (
	ErrInvalidConfig = errors.New("configuration not valid")
)

// Config holds all configuration for the application
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Source    SourceConfig    `yaml:"source"`
	Transform TransformConfig `yaml:"transform"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Server    ServerConfig    `yaml:"server"`
}

// StorageConfig selects and configures the destination database.
type StorageConfig struct {
	Type          string        `yaml:"type" env:"STORAGE_TYPE" envDefault:"postgresql"`
	PostgresURI   string        `yaml:"postgresUri" env:"POSTGRES_URI"`
	MongoDBURI    string        `yaml:"mongodbUri" env:"MONGODB_URI"`
	MongoDatabase string        `yaml:"mongodbDatabase" env:"MONGODB_DATABASE" envDefault:"dummy"`
	Region        string        `yaml:"region" env:"AWS_REGION" envDefault:"us-west-2"`
	Endpoint      string        `yaml:"endpoint" env:"DYNAMODB_ENDPOINT"` // for DynamoDB Local
	Timeout       time.Duration `yaml:"timeout" env:"DB_TIMEOUT" envDefault:"30s"`
}

// SourceConfig describes the remote API the collections are extracted from.
type SourceConfig struct {
	BaseURL       string        `yaml:"baseUrl" env:"API_BASE_URL" envDefault:"https://dummyjson.com"`
	Timeout       time.Duration `yaml:"timeout" env:"API_TIMEOUT" envDefault:"30s"`
	ParallelFetch bool          `yaml:"parallelFetch" env:"API_PARALLEL_FETCH" envDefault:"false"`
}

// TransformConfig controls two optional columns of the load.
type TransformConfig struct {
	// IncludeUniversity keeps the fetched university column in the users load.
	IncludeUniversity bool `yaml:"includeUniversity" env:"INCLUDE_UNIVERSITY" envDefault:"false"`
	// PopulatePostUserID fills the userId column reserved in the posts table.
	PopulatePostUserID bool `yaml:"populatePostUserId" env:"POPULATE_POST_USER_ID" envDefault:"false"`
}

// ScheduleConfig drives the built-in scheduler.
type ScheduleConfig struct {
	Interval   time.Duration `yaml:"interval" env:"SCHEDULE_INTERVAL" envDefault:"24h"`
	StartDate  time.Time     `yaml:"startDate" env:"SCHEDULE_START_DATE" envDefault:"2024-11-01T00:00:00Z"`
	Retries    int           `yaml:"retries" env:"RETRIES" envDefault:"1"`
	RetryDelay time.Duration `yaml:"retryDelay" env:"RETRY_DELAY" envDefault:"0s"`
}

// ServerConfig holds HTTP status server configuration
type ServerConfig struct {
	Port int `yaml:"port" env:"SERVER_PORT" envDefault:"8080"`
}

// Load reads the configuration from environment variables with defaults, then overlays the
// YAML file at path when path is not empty.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidConfig, err.Error())
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: %s: %s", ErrInvalidConfig, path, err.Error())
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	problems := make([]string, 0)

	switch c.Storage.Type {
	case StorageTypePostgres:
		if c.Storage.PostgresURI == "" {
			problems = append(problems, "POSTGRES_URI is required for postgresql storage")
		}
	case StorageTypeMongoDB:
		if c.Storage.MongoDBURI == "" {
			problems = append(problems, "MONGODB_URI is required for mongodb storage")
		}
	case StorageTypeDynamoDB:
	default:
		problems = append(problems, fmt.Sprintf("unsupported storage type: %s", c.Storage.Type))
	}

	if c.Storage.Timeout <= 0 {
		problems = append(problems, "DB_TIMEOUT must be positive")
	}
	if c.Source.BaseURL == "" {
		problems = append(problems, "API_BASE_URL is required")
	}
	if c.Source.Timeout <= 0 {
		problems = append(problems, "API_TIMEOUT must be positive")
	}
	if c.Schedule.Interval <= 0 {
		problems = append(problems, "SCHEDULE_INTERVAL must be positive")
	}
	if c.Schedule.Retries < 0 {
		problems = append(problems, "RETRIES must not be negative")
	}
	if c.Schedule.RetryDelay < 0 {
		problems = append(problems, "RETRY_DELAY must not be negative")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, "SERVER_PORT is out of valid range (1-65535)")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, ", "))
	}
	return nil
}
