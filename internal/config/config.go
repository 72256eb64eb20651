package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Truth       TruthConfig       `mapstructure:"truth"`
	Replica     ReplicaConfig     `mapstructure:"replica"`
	Queue       QueueConfig       `mapstructure:"queue"`
	Lock        LockConfig        `mapstructure:"lock"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Replication ReplicationConfig `mapstructure:"replication"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Log         LogConfig         `mapstructure:"log"`
}

type TruthConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	SlotName         string `mapstructure:"slot_name"`
	Publication      string `mapstructure:"publication"`
	// Tables maps captured truth tables to the object type of their rows.
	Tables map[string]string `mapstructure:"tables"`
}

type ReplicaConfig struct {
	Postgres   PostgresTarget     `mapstructure:"postgres"`
	ClickHouse []ClickHouseTarget `mapstructure:"clickhouse"`
	Redis      []RedisTarget      `mapstructure:"redis"`
}

type TargetBase struct {
	Name  string      `mapstructure:"name"`
	Retry RetryConfig `mapstructure:"retry"`
}

type PostgresTarget struct {
	TargetBase       `mapstructure:",squash"`
	ConnectionString string `mapstructure:"connection_string"`
}

type ClickHouseTarget struct {
	TargetBase       `mapstructure:",squash"`
	ConnectionString string `mapstructure:"connection_string"`
}

type RedisTarget struct {
	TargetBase       `mapstructure:",squash"`
	ConnectionString string        `mapstructure:"connection_string"`
	KeyPattern       string        `mapstructure:"key_pattern"` // e.g. "{{.type}}:{{.id}}"
	Expiration       time.Duration `mapstructure:"expiration"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

func (r *RetryConfig) setDefaults() {
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 3
	}
	if r.Backoff == 0 {
		r.Backoff = 100 * time.Millisecond
	}
}

type QueueConfig struct {
	ConnectionString      string        `mapstructure:"connection_string"`
	Key                   string        `mapstructure:"key"`
	MaxMessagesPerPayload int           `mapstructure:"max_messages_per_payload"`
	PollTimeout           time.Duration `mapstructure:"poll_timeout"`
}

type LockConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
	// Timeout is the minimum time between two reconciliations of a view.
	Timeout time.Duration `mapstructure:"timeout"`
	// RunTimeout bounds how long a claimed lock survives a crashed run.
	RunTimeout time.Duration `mapstructure:"run_timeout"`
}

type PipelineConfig struct {
	WorkerCount   int           `mapstructure:"worker_count"`
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	BatchInterval time.Duration `mapstructure:"batch_interval"`
	// Retry bounds redelivery of a failed replication batch.
	Retry RetryConfig `mapstructure:"retry"`
}

type ReplicationConfig struct {
	MaxAnnotationChars int           `mapstructure:"max_annotation_chars"`
	ReconcilePageSize  int           `mapstructure:"reconcile_page_size"`
	ScopeCacheTTL      time.Duration `mapstructure:"scope_cache_ttl"`
	ScopeCacheSize     int           `mapstructure:"scope_cache_size"`
}

type TelemetryConfig struct {
	Address string `mapstructure:"address"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENTITYVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("queue.key", "entityview:replication")
	v.SetDefault("queue.max_messages_per_payload", 10)
	v.SetDefault("queue.poll_timeout", 5*time.Second)
	v.SetDefault("lock.prefix", "entityview:lock")
	v.SetDefault("lock.timeout", 10*time.Minute)
	v.SetDefault("lock.run_timeout", 30*time.Minute)
	v.SetDefault("pipeline.worker_count", 4)
	v.SetDefault("pipeline.buffer_size", 10000)
	v.SetDefault("pipeline.batch_size", 100)
	v.SetDefault("pipeline.batch_interval", 1*time.Second)
	v.SetDefault("replication.max_annotation_chars", 500)
	v.SetDefault("replication.reconcile_page_size", 1000)
	v.SetDefault("replication.scope_cache_ttl", 1*time.Minute)
	v.SetDefault("replication.scope_cache_size", 10000)
	v.SetDefault("telemetry.address", ":9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Replica.Postgres.Name == "" {
		c.Replica.Postgres.Name = "postgres"
	}
	c.Replica.Postgres.Retry.setDefaults()

	for i := range c.Replica.ClickHouse {
		c.Replica.ClickHouse[i].Retry.setDefaults()
	}

	for i := range c.Replica.Redis {
		if c.Replica.Redis[i].KeyPattern == "" {
			c.Replica.Redis[i].KeyPattern = "{{.type}}:{{.id}}"
		}
		c.Replica.Redis[i].Retry.setDefaults()
	}
	c.Pipeline.Retry.setDefaults()

	if c.Lock.ConnectionString == "" {
		c.Lock.ConnectionString = c.Queue.ConnectionString
	}
}

// Validate fails on configuration every command needs. Queue and replica
// settings are never optional.
func (c *Config) Validate() error {
	if c.Truth.ConnectionString == "" {
		return errors.New("truth.connection_string is required")
	}
	if c.Replica.Postgres.ConnectionString == "" {
		return errors.New("replica.postgres.connection_string is required")
	}
	if c.Queue.ConnectionString == "" {
		return errors.New("queue.connection_string is required")
	}
	if c.Queue.Key == "" {
		return errors.New("queue.key is required")
	}
	if c.Queue.MaxMessagesPerPayload <= 0 {
		return fmt.Errorf("queue.max_messages_per_payload must be positive, got %d", c.Queue.MaxMessagesPerPayload)
	}
	if c.Pipeline.WorkerCount <= 0 {
		return fmt.Errorf("pipeline.worker_count must be positive, got %d", c.Pipeline.WorkerCount)
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.Pipeline.BatchSize)
	}

	for i, t := range c.Replica.ClickHouse {
		if t.Name == "" {
			return fmt.Errorf("replica.clickhouse[%d].name is required", i)
		}
		if t.ConnectionString == "" {
			return fmt.Errorf("replica.clickhouse[%d].connection_string is required", i)
		}
	}

	for i, t := range c.Replica.Redis {
		if t.Name == "" {
			return fmt.Errorf("replica.redis[%d].name is required", i)
		}
		if t.ConnectionString == "" {
			return fmt.Errorf("replica.redis[%d].connection_string is required", i)
		}
	}

	return nil
}

// ValidateCapture checks the settings only the change capture source needs.
func (c *Config) ValidateCapture() error {
	if c.Truth.SlotName == "" {
		return errors.New("truth.slot_name is required")
	}
	if c.Truth.Publication == "" {
		return errors.New("truth.publication is required")
	}
	if len(c.Truth.Tables) == 0 {
		return errors.New("truth.tables must map at least one table to an object type")
	}
	return nil
}
