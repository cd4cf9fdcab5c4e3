package provider

import "fmt"

// New creates the configured adapter. When a send rate is configured the
// adapter is wrapped in a RateLimited limiter.
func New(cfg Config, client HTTPClient) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid provider config: %w", err)
	}

	var p Provider
	switch cfg.Type {
	case "airtel":
		p = NewAirtel(cfg, client)
	case "stdout":
		p = NewStdout(cfg)
	case "simulate":
		p = NewSimulated()
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Type)
	}

	if cfg.RatePerSec > 0 {
		p = NewRateLimited(p, cfg.RatePerSec, cfg.Burst)
	}
	return p, nil
}
