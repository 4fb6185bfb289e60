package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}
	if includeZero || strings.TrimSpace(cfg.Webhook.Secret) != "" || strings.TrimSpace(cfg.Webhook.Destination) != "" {
		layer["webhook"] = map[string]any{
			"secret":        cfg.Webhook.Secret,
			"destination":   cfg.Webhook.Destination,
			"replay_window": cfg.Webhook.ReplayWindow,
		}
	}
	if includeZero || cfg.Delivery.MaxAttempts > 0 {
		layer["delivery"] = map[string]any{
			"max_attempts":      cfg.Delivery.MaxAttempts,
			"initial_backoff":   cfg.Delivery.InitialBackoff,
			"max_backoff":       cfg.Delivery.MaxBackoff,
			"request_timeout":   cfg.Delivery.RequestTimeout,
			"max_payload_bytes": cfg.Delivery.MaxPayloadBytes,
			"failure_threshold": cfg.Delivery.FailureThreshold,
			"cooldown":          cfg.Delivery.Cooldown,
		}
	}
	if includeZero || cfg.RateLimit.Limit > 0 {
		layer["rate_limit"] = map[string]any{
			"limit":  cfg.RateLimit.Limit,
			"window": cfg.RateLimit.Window,
		}
	}
	if includeZero || cfg.Pipeline.MaxProperties > 0 {
		layer["pipeline"] = map[string]any{
			"max_properties":    cfg.Pipeline.MaxProperties,
			"stage_concurrency": cfg.Pipeline.StageConcurrency,
		}
	}
	return layer
}
