package provider

import (
	"errors"
	"time"
)

// Config holds configuration for the delivery adapter.
type Config struct {
	// Type identifies the adapter: "airtel", "stdout", "simulate".
	Type string `mapstructure:"type"`

	// Endpoint is the template send URL of the messaging API.
	Endpoint string `mapstructure:"endpoint"`

	// Username and Password are the HTTP Basic credentials of the API account.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// Timeout bounds a single send call.
	Timeout time.Duration `mapstructure:"timeout"`

	// RatePerSec caps outbound sends per process. Zero disables the limiter.
	RatePerSec float64 `mapstructure:"rate_per_sec"`
	Burst      int     `mapstructure:"burst"`
}

const defaultTimeout = 30 * time.Second

// Validate checks that required fields are set based on adapter type.
func (c *Config) Validate() error {
	if c.Type == "" {
		return errors.New("provider type is required")
	}

	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.RatePerSec < 0 {
		return errors.New("provider rate_per_sec must not be negative")
	}

	switch c.Type {
	case "airtel":
		if c.Endpoint == "" {
			return errors.New("airtel: endpoint is required")
		}
		if c.Username == "" || c.Password == "" {
			return errors.New("airtel: username and password are required")
		}
	case "stdout", "simulate":
	default:
		return errors.New("unknown provider type: " + c.Type)
	}

	return nil
}
