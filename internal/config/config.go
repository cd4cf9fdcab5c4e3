package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sungwon/wa-dispatch/internal/dispatch"
	"github.com/sungwon/wa-dispatch/internal/logger"
	"github.com/sungwon/wa-dispatch/internal/msgstore"
	"github.com/sungwon/wa-dispatch/internal/notify"
	"github.com/sungwon/wa-dispatch/internal/pipeline"
	"github.com/sungwon/wa-dispatch/internal/provider"
	"github.com/sungwon/wa-dispatch/internal/queue"
	"github.com/sungwon/wa-dispatch/internal/storage"
)

// Config holds all application configuration.
type Config struct {
	API      APIConfig       `mapstructure:"api"`
	Database DatabaseConfig  `mapstructure:"database"`
	Storage  StorageConfig   `mapstructure:"storage"`
	Logging  logger.Config   `mapstructure:"logging"`
	Queue    queue.Config    `mapstructure:"queue"`
	Provider provider.Config `mapstructure:"provider"`
	Worker   pipeline.Config `mapstructure:"worker"`
	Dispatch dispatch.Config `mapstructure:"dispatch"`
	Notify   notify.Config   `mapstructure:"notify"`
	Archive  msgstore.Config `mapstructure:"archive"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// APIConfig holds ingest HTTP server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// AdminKey guards the operator endpoints. Empty disables them.
	AdminKey     string `mapstructure:"admin_key"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// StorageConfig selects the tenant data backend and its naming rules.
type StorageConfig struct {
	Backend string           `mapstructure:"backend"` // postgres (default), memory
	Naming  storage.Resolver `mapstructure:"naming"`
	// SeedFile is loaded into the memory backend at startup.
	SeedFile string `mapstructure:"seed_file"`
}

// MetricsConfig holds the worker's metrics listener.
type MetricsConfig struct {
	Addr          string        `mapstructure:"addr"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

func setDefaults(v *viper.Viper) {
	names := storage.DefaultResolver()
	qd := queue.DefaultConfig()
	wd := pipeline.DefaultConfig()

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 10*time.Second)
	v.SetDefault("api.write_timeout", 10*time.Second)
	v.SetDefault("api.max_body_bytes", 100<<10)

	v.SetDefault("database.pool_max", 50)
	v.SetDefault("database.connect_timeout", 30*time.Second)

	v.SetDefault("storage.backend", "postgres")
	v.SetDefault("storage.naming.system_tenant", names.SystemTenant)
	v.SetDefault("storage.naming.system_namespace", names.SystemNamespace)
	v.SetDefault("storage.naming.tenant_suffix", names.TenantSuffix)
	v.SetDefault("storage.naming.suffixes.templates", names.Suffixes.Templates)
	v.SetDefault("storage.naming.suffixes.pricing", names.Suffixes.Pricing)
	v.SetDefault("storage.naming.suffixes.sessions", names.Suffixes.Sessions)
	v.SetDefault("storage.naming.suffixes.live_chat", names.Suffixes.LiveChat)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("queue.type", qd.Type)
	v.SetDefault("queue.redis_addr", qd.RedisAddr)
	v.SetDefault("queue.name", qd.Name)
	v.SetDefault("queue.lease_timeout", qd.LeaseTimeout)
	v.SetDefault("queue.reclaim_interval", qd.ReclaimInterval)
	v.SetDefault("queue.max_deliveries", qd.MaxDeliveries)
	v.SetDefault("queue.sqs_wait_time", qd.SQSWaitTime)
	v.SetDefault("queue.sqs_visibility_timeout", qd.SQSVisTimeout)

	v.SetDefault("provider.type", "simulate")
	v.SetDefault("provider.timeout", 30*time.Second)

	v.SetDefault("worker.workers", wd.Workers)
	v.SetDefault("worker.batch_size", wd.BatchSize)
	v.SetDefault("worker.idle_backoff", wd.IdleBackoff)
	v.SetDefault("worker.error_backoff", wd.ErrorBackoff)
	v.SetDefault("worker.process_timeout", wd.ProcessTimeout)

	v.SetDefault("dispatch.dial_code", "91")
	v.SetDefault("dispatch.delivery_timeout", 20*time.Second)

	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetDefault("archive.type", "none")

	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.stats_interval", 15*time.Second)

	v.SetDefault("shutdown_timeout", 30*time.Second)
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix DISPATCH_ override file values.
// For example, DISPATCH_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	if err := c.Provider.Validate(); err != nil {
		return err
	}

	switch c.Storage.Backend {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}

	switch c.Queue.Type {
	case "redis", "memory":
	case "sqs":
		if c.Queue.SQSQueueURL == "" {
			return errors.New("queue.sqs_queue_url is required for the sqs queue")
		}
	default:
		return fmt.Errorf("unknown queue type: %s", c.Queue.Type)
	}

	if c.Dispatch.DialCode == "" {
		return errors.New("dispatch.dial_code is required")
	}
	if c.Worker.BatchSize < 0 || c.Worker.Concurrency < 0 || c.Worker.Workers < 0 {
		return errors.New("worker sizes must not be negative")
	}
	if c.Storage.Naming.TenantSuffix == "" {
		// Tenant namespaces must never collide with the system namespace.
		return errors.New("storage.naming.tenant_suffix is required")
	}
	return nil
}
