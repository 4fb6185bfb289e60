package core

import (
	"fmt"
	"strings"
	"time"
)

type WebhookConfig struct {
	Secret       string        `koanf:"secret" mapstructure:"secret"`
	Destination  string        `koanf:"destination" mapstructure:"destination"`
	ReplayWindow time.Duration `koanf:"replay_window" mapstructure:"replay_window"`
}

type DeliveryConfig struct {
	MaxAttempts      int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff   time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
	RequestTimeout   time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
	MaxPayloadBytes  int           `koanf:"max_payload_bytes" mapstructure:"max_payload_bytes"`
	FailureThreshold int           `koanf:"failure_threshold" mapstructure:"failure_threshold"`
	Cooldown         time.Duration `koanf:"cooldown" mapstructure:"cooldown"`
}

type RateLimitConfig struct {
	Limit  int           `koanf:"limit" mapstructure:"limit"`
	Window time.Duration `koanf:"window" mapstructure:"window"`
}

type PipelineConfig struct {
	MaxProperties    int `koanf:"max_properties" mapstructure:"max_properties"`
	StageConcurrency int `koanf:"stage_concurrency" mapstructure:"stage_concurrency"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig   `koanf:"webhook" mapstructure:"webhook"`
	Delivery    DeliveryConfig  `koanf:"delivery" mapstructure:"delivery"`
	RateLimit   RateLimitConfig `koanf:"rate_limit" mapstructure:"rate_limit"`
	Pipeline    PipelineConfig  `koanf:"pipeline" mapstructure:"pipeline"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "valuation",
		Webhook: WebhookConfig{
			ReplayWindow: 5 * time.Minute,
		},
		Delivery: DeliveryConfig{
			MaxAttempts:      5,
			InitialBackoff:   500 * time.Millisecond,
			MaxBackoff:       8 * time.Second,
			RequestTimeout:   10 * time.Second,
			MaxPayloadBytes:  1 << 20,
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Limit:  120,
			Window: time.Minute,
		},
		Pipeline: PipelineConfig{
			MaxProperties:    100,
			StageConcurrency: 4,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("core: delivery.max_attempts must be at least 1")
	}
	if c.Delivery.FailureThreshold < 1 {
		return fmt.Errorf("core: delivery.failure_threshold must be at least 1")
	}
	if c.RateLimit.Limit < 1 {
		return fmt.Errorf("core: rate_limit.limit must be at least 1")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("core: rate_limit.window must be positive")
	}
	if c.Pipeline.StageConcurrency < 1 {
		return fmt.Errorf("core: pipeline.stage_concurrency must be at least 1")
	}
	return nil
}
