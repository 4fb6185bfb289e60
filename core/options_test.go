package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

type mapRawLoader struct {
	values map[string]any
	err    error
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.values, nil
}

func TestCfgxConfigProvider_LoadsOverDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "valuation-test",
		"pipeline": map[string]any{
			"max_properties":    25,
			"stage_concurrency": 2,
		},
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "valuation-test" {
		t.Fatalf("expected raw value override, got %q", cfg.ServiceName)
	}
	if cfg.Pipeline.MaxProperties != 25 || cfg.Pipeline.StageConcurrency != 2 {
		t.Fatalf("expected pipeline overrides, got %#v", cfg.Pipeline)
	}
	if cfg.Delivery.MaxAttempts != 5 {
		t.Fatalf("expected delivery defaults preserved, got %#v", cfg.Delivery)
	}
}

func TestCfgxConfigProvider_NilLoaderKeepsDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(nil)
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != DefaultConfig().ServiceName {
		t.Fatalf("expected defaults, got %q", cfg.ServiceName)
	}
}

func TestCfgxConfigProvider_PropagatesLoaderError(t *testing.T) {
	loaderErr := errors.New("config source offline")
	provider := NewCfgxConfigProvider(mapRawLoader{err: loaderErr})
	if _, err := provider.Load(context.Background(), DefaultConfig()); !errors.Is(err, loaderErr) {
		t.Fatalf("expected loader error propagation, got %v", err)
	}
}

func TestGoOptionsResolver_RuntimeWinsOverConfigOverDefaults(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{
		ServiceName: "from-config",
		RateLimit: RateLimitConfig{
			Limit:  10,
			Window: 30 * time.Second,
		},
	}
	runtime := Config{ServiceName: "from-runtime"}

	resolved, err := (GoOptionsResolver{}).Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if resolved.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime layer precedence, got %q", resolved.ServiceName)
	}
	if resolved.RateLimit.Limit != 10 || resolved.RateLimit.Window != 30*time.Second {
		t.Fatalf("expected config layer rate limit, got %#v", resolved.RateLimit)
	}
	if resolved.Delivery.MaxAttempts != defaults.Delivery.MaxAttempts {
		t.Fatalf("expected delivery defaults preserved, got %#v", resolved.Delivery)
	}
}

func TestGoOptionsResolver_RejectsInvalidMerge(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{
		Delivery: DeliveryConfig{
			MaxAttempts:      3,
			FailureThreshold: 0,
		},
	}

	if _, err := (GoOptionsResolver{}).Resolve(defaults, loaded, Config{}); err == nil {
		t.Fatalf("expected merged config validation failure")
	}
}
