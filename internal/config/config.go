// Package config loads service configuration from a YAML/JSON file with MILKRUN_ env overrides.
package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"milkrun/internal/geo"
	"milkrun/internal/model"
)

// EnvPrefix marks environment overrides; "__" separates nesting levels,
// e.g. MILKRUN_OPTIMIZER__DEPOT__LAT.
const EnvPrefix = "MILKRUN_"

type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Redis     RedisConfig     `json:"redis"`
	AMQP      AMQPConfig      `json:"amqp"`
	MQTT      MQTTConfig      `json:"mqtt"`
	Webhook   WebhookConfig   `json:"webhook"`
	Auth      AuthConfig      `json:"auth"`
	Log       LogConfig       `json:"log"`
	Optimizer OptimizerConfig `json:"optimizer"`
	Dispatch  DispatchConfig  `json:"dispatch"`
}

type ServerConfig struct {
	Addr      string  `json:"addr"`
	RateRPS   float64 `json:"rate_rps"`
	RateBurst int     `json:"rate_burst"`
}

type DatabaseConfig struct {
	URL     string `json:"url"`
	Migrate bool   `json:"migrate"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type AMQPConfig struct {
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
}

type MQTTConfig struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// WebhookConfig posts every event, HMAC signed when Secret is set.
type WebhookConfig struct {
	URL         string `json:"url"`
	Secret      string `json:"secret"`
	MaxAttempts int    `json:"max_attempts"`
}

type AuthConfig struct {
	Mode       string `json:"mode"` // dev or hmac
	HMACSecret string `json:"hmac_secret"`
}

type LogConfig struct {
	Level string `json:"level"`
}

type DepotConfig struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type OptimizerConfig struct {
	Depot                 DepotConfig    `json:"depot"`
	AverageSpeedKmH       float64        `json:"average_speed_kmh"`
	ServiceMinutesPerStop float64        `json:"service_minutes_per_stop"`
	DefaultRadiusKm       float64        `json:"default_radius_km"`
	MinRadiusKm           float64        `json:"min_radius_km"`
	MaxRadiusKm           float64        `json:"max_radius_km"`
	TwoOptPasses          int            `json:"two_opt_passes"`
	Capacities            map[string]int `json:"capacities"`
}

type DispatchConfig struct {
	TrackingPrefix string        `json:"tracking_prefix"`
	// CommitTimeout bounds a commit's writes once its capacity check passes.
	CommitTimeout  time.Duration `json:"commit_timeout"`
}

// Default is the configuration used for every key the sources leave unset.
func Default() Config {
	caps := map[string]int{}
	for vt, c := range model.DefaultCapacities() {
		caps[string(vt)] = c
	}
	return Config{
		Server:   ServerConfig{Addr: ":8080", RateRPS: 20, RateBurst: 40},
		AMQP:     AMQPConfig{Exchange: "dispatch_topic"},
		MQTT:     MQTTConfig{ClientID: "milkrun-api", TopicPrefix: "drivers"},
		Webhook:  WebhookConfig{MaxAttempts: 10},
		Auth:     AuthConfig{Mode: "dev"},
		Log:      LogConfig{Level: "info"},
		Dispatch: DispatchConfig{TrackingPrefix: "MR", CommitTimeout: 30 * time.Second},
		Optimizer: OptimizerConfig{
			// Bangkok
			Depot:                 DepotConfig{Lat: 13.7563, Lng: 100.5018},
			AverageSpeedKmH:       30,
			ServiceMinutesPerStop: 5,
			DefaultRadiusKm:       3,
			MinRadiusKm:           0.5,
			MaxRadiusKm:           25,
			Capacities:            caps,
		},
	}
}

// Load reads path (optional, .yaml/.yml/.json) over the defaults, then applies
// MILKRUN_ environment overrides, then validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	o := c.Optimizer
	if !geo.Valid(c.Depot()) {
		errs = append(errs, fmt.Errorf("optimizer.depot: invalid coordinate %v,%v", o.Depot.Lat, o.Depot.Lng))
	}
	if o.AverageSpeedKmH <= 0 {
		errs = append(errs, errors.New("optimizer.average_speed_kmh must be positive"))
	}
	if o.ServiceMinutesPerStop < 0 {
		errs = append(errs, errors.New("optimizer.service_minutes_per_stop must not be negative"))
	}
	if o.MinRadiusKm <= 0 || o.MinRadiusKm > o.MaxRadiusKm {
		errs = append(errs, fmt.Errorf("optimizer radius bounds [%v, %v] are invalid", o.MinRadiusKm, o.MaxRadiusKm))
	}
	if o.TwoOptPasses < 0 {
		errs = append(errs, errors.New("optimizer.two_opt_passes must not be negative"))
	}
	if len(c.Capacities()) == 0 {
		errs = append(errs, errors.New("optimizer.capacities: no vehicle type has a positive capacity"))
	}
	for vt, n := range o.Capacities {
		if n <= 0 {
			errs = append(errs, fmt.Errorf("optimizer.capacities.%s must be positive", vt))
		}
	}
	switch c.Auth.Mode {
	case "dev":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			errs = append(errs, errors.New("auth.hmac_secret is required in hmac mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.mode %q is not dev or hmac", c.Auth.Mode))
	}
	if c.Webhook.URL != "" && c.Webhook.MaxAttempts < 1 {
		errs = append(errs, errors.New("webhook.max_attempts must be at least 1"))
	}
	if c.Dispatch.CommitTimeout <= 0 {
		errs = append(errs, errors.New("dispatch.commit_timeout must be positive"))
	}
	if c.Server.RateRPS < 0 || c.Server.RateBurst < 0 {
		errs = append(errs, errors.New("server rate limits must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) Depot() geo.Point {
	return geo.Point{Lat: c.Optimizer.Depot.Lat, Lng: c.Optimizer.Depot.Lng}
}

// Capacities converts the configured table, normalising vehicle type names.
func (c Config) Capacities() model.CapacityTable {
	t := model.CapacityTable{}
	for vt, n := range c.Optimizer.Capacities {
		if n > 0 {
			t[model.ParseVehicleType(vt)] = n
		}
	}
	return t
}

// ClampRadius defaults r when unset and clamps it into the configured bounds.
func (c Config) ClampRadius(r float64) float64 {
	o := c.Optimizer
	if r <= 0 || math.IsNaN(r) {
		r = o.DefaultRadiusKm
	}
	if r < o.MinRadiusKm {
		return o.MinRadiusKm
	}
	if r > o.MaxRadiusKm {
		return o.MaxRadiusKm
	}
	return r
}
