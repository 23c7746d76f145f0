package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. CHARTER_STORE_DRIVER.
const EnvPrefix = "CHARTER"

type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Lifecycle LifecycleConfig `yaml:"lifecycle"`
	Migration MigrationConfig `yaml:"migration"`
	Worker    WorkerConfig    `yaml:"worker"`
	Log       LogConfig       `yaml:"log"`
}

type HTTPConfig struct {
	Address string `yaml:"address"`
	// DocsEnabled mounts the swagger UI under /docs/.
	DocsEnabled bool `yaml:"docs_enabled" split_words:"true"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

type StoreConfig struct {
	Driver string `yaml:"driver"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode" split_words:"true"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Enabled reports whether a redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	NotificationsTopic string   `yaml:"notifications_topic" split_words:"true"`
	GroupID            string   `yaml:"group_id" split_words:"true"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 && k.NotificationsTopic != "" }

type LifecycleConfig struct {
	RequestTTLHours  int    `yaml:"request_ttl_hours" split_words:"true"`
	CommissionRate   string `yaml:"commission_rate" split_words:"true"`
	Currency         string `yaml:"currency"`
	AutoAcknowledge  bool   `yaml:"auto_acknowledge" split_words:"true"`
	LockTTLSeconds   int    `yaml:"lock_ttl_seconds" split_words:"true"`
	OperationTimeout int    `yaml:"operation_timeout_seconds" split_words:"true"`
}

func (l LifecycleConfig) RequestTTL() time.Duration {
	return time.Duration(l.RequestTTLHours) * time.Hour
}

func (l LifecycleConfig) LockTTL() time.Duration {
	return time.Duration(l.LockTTLSeconds) * time.Second
}

type MigrationConfig struct {
	BatchSize             int `yaml:"batch_size" split_words:"true"`
	CooldownMs            int `yaml:"cooldown_ms" split_words:"true"`
	Concurrency           int `yaml:"concurrency"`
	ReportCacheTTLSeconds int `yaml:"report_cache_ttl_seconds" split_words:"true"`
}

func (m MigrationConfig) Cooldown() time.Duration {
	return time.Duration(m.CooldownMs) * time.Millisecond
}

func (m MigrationConfig) ReportCacheTTL() time.Duration {
	return time.Duration(m.ReportCacheTTLSeconds) * time.Second
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes" split_words:"true"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// LoadConfig reads the YAML file at path, then applies CHARTER_* environment
// overrides (a .env file in the working directory is loaded first when
// present) and fills defaults for anything left unset.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	_ = godotenv.Load()
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to apply env overrides: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.GRPC.Address == "" {
		c.GRPC.Address = ":9090"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverPostgres
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "charter"
	}
	if c.Lifecycle.RequestTTLHours == 0 {
		c.Lifecycle.RequestTTLHours = 24
	}
	if c.Lifecycle.CommissionRate == "" {
		c.Lifecycle.CommissionRate = "0.03"
	}
	if c.Lifecycle.Currency == "" {
		c.Lifecycle.Currency = "ZAR"
	}
	if c.Lifecycle.LockTTLSeconds == 0 {
		c.Lifecycle.LockTTLSeconds = 10
	}
	if c.Lifecycle.OperationTimeout == 0 {
		c.Lifecycle.OperationTimeout = 5
	}
	if c.Migration.BatchSize == 0 {
		c.Migration.BatchSize = 100
	}
	if c.Migration.CooldownMs == 0 {
		c.Migration.CooldownMs = 1000
	}
	if c.Migration.Concurrency == 0 {
		c.Migration.Concurrency = 8
	}
	if c.Migration.ReportCacheTTLSeconds == 0 {
		c.Migration.ReportCacheTTLSeconds = 30
	}
	if c.Worker.ExpirationSweepMinutes == 0 {
		c.Worker.ExpirationSweepMinutes = 5
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "charter-notifications"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == DriverMongo && c.Mongo.URI == "" {
		return fmt.Errorf("mongo store requires mongo.uri")
	}
	if c.Migration.BatchSize < 0 || c.Migration.Concurrency < 0 {
		return fmt.Errorf("migration batch size and concurrency must be positive")
	}
	return nil
}
