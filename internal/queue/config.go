package queue

import "time"

// Config holds configuration for the queue backend.
type Config struct {
	// Type selects the backend: "redis" (default), "sqs", or "memory".
	Type string `mapstructure:"type"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	// Name is the Redis list key; lease bookkeeping keys derive from it.
	Name            string        `mapstructure:"name"`
	LeaseTimeout    time.Duration `mapstructure:"lease_timeout"`
	ReclaimInterval time.Duration `mapstructure:"reclaim_interval"`
	MaxDeliveries   int           `mapstructure:"max_deliveries"`

	// SQS-specific config
	SQSQueueURL   string `mapstructure:"sqs_queue_url"`
	SQSDLQueueURL string `mapstructure:"sqs_dlq_url"`
	SQSRegion     string `mapstructure:"sqs_region"`
	SQSWaitTime   int32  `mapstructure:"sqs_wait_time"`
	SQSVisTimeout int32  `mapstructure:"sqs_visibility_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Type:            "redis",
		RedisAddr:       "localhost:6379",
		Name:            "webengage_requests",
		LeaseTimeout:    2 * time.Minute,
		ReclaimInterval: 15 * time.Second,
		MaxDeliveries:   5,
		SQSWaitTime:     1,
		SQSVisTimeout:   120,
	}
}
