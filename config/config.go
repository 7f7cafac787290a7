package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the argus engine. Every detection
// threshold is a named key so operators can tune the engine without a
// rebuild.
type Config struct {
	Logging struct {
		Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"logging"`

	Window struct {
		// MaxEventsInMemory is the hard cap on the primary ring
		MaxEventsInMemory int `mapstructure:"max_events_in_memory" validate:"min=1"`
		// MaxEventsPerIP caps the per-source-IP secondary index
		MaxEventsPerIP int `mapstructure:"max_events_per_ip" validate:"min=1"`
		// MaxEventsPerType caps the per-event-type secondary index
		MaxEventsPerType int           `mapstructure:"max_events_per_type" validate:"min=1"`
		Retention        time.Duration `mapstructure:"retention" validate:"gt=0"`
		CleanupInterval  time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
	} `mapstructure:"window"`

	Correlation struct {
		BatchWorkers int `mapstructure:"batch_workers" validate:"min=1"`
		BatchQueue   int `mapstructure:"batch_queue" validate:"min=1"`
		// BatchSourceThreshold is the per-IP event count within one batch
		// that produces a batch_correlation alert
		BatchSourceThreshold int `mapstructure:"batch_source_threshold" validate:"min=2"`

		BruteForce struct {
			// EventTypes are the event types counted as failed authentications
			EventTypes []string      `mapstructure:"event_types" validate:"min=1"`
			Threshold  int           `mapstructure:"threshold" validate:"min=1"`
			Window     time.Duration `mapstructure:"window" validate:"gt=0"`
		} `mapstructure:"brute_force"`

		PrivilegeEscalation struct {
			// EventTypes are the event types counted as escalation attempts
			EventTypes []string      `mapstructure:"event_types" validate:"min=1"`
			Threshold  int           `mapstructure:"threshold" validate:"min=1"`
			Window     time.Duration `mapstructure:"window" validate:"gt=0"`
		} `mapstructure:"privilege_escalation"`

		TrafficVolume struct {
			EventTypes []string      `mapstructure:"event_types" validate:"min=1"`
			Threshold  int           `mapstructure:"threshold" validate:"min=1"`
			Window     time.Duration `mapstructure:"window" validate:"gt=0"`
			// MaxSourceEvents caps how many events a volume alert references
			MaxSourceEvents int `mapstructure:"max_source_events" validate:"min=1"`
		} `mapstructure:"traffic_volume"`
	} `mapstructure:"correlation"`

	Enrichment struct {
		StageTimeout time.Duration `mapstructure:"stage_timeout" validate:"gt=0"`
		CacheTTL     time.Duration `mapstructure:"cache_ttl" validate:"gt=0"`
		CacheSize    int           `mapstructure:"cache_size" validate:"min=1"`

		Reputation struct {
			Enabled  bool   `mapstructure:"enabled"`
			Endpoint string `mapstructure:"endpoint"`
			APIKey   string `mapstructure:"api_key"`
		} `mapstructure:"reputation"`

		Geo struct {
			Enabled  bool   `mapstructure:"enabled"`
			Endpoint string `mapstructure:"endpoint"`
		} `mapstructure:"geo"`

		External struct {
			Enabled  bool   `mapstructure:"enabled"`
			Endpoint string `mapstructure:"endpoint"`
			APIKey   string `mapstructure:"api_key"`
		} `mapstructure:"external"`

		Redis struct {
			Enabled  bool   `mapstructure:"enabled"`
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
			PoolSize int    `mapstructure:"pool_size"`
		} `mapstructure:"redis"`
	} `mapstructure:"enrichment"`

	Anomaly struct {
		MinSamples         int     `mapstructure:"min_samples" validate:"min=2"`
		DeviationThreshold float64 `mapstructure:"deviation_threshold" validate:"gt=0"`
		BaselineWindow     int     `mapstructure:"baseline_window_hours" validate:"min=1"`
		LatencyFloorMs     float64 `mapstructure:"latency_floor_ms" validate:"gt=0"`
		HighTrafficFactor  float64 `mapstructure:"high_traffic_factor" validate:"gt=1"`
		LowRequestFactor   float64 `mapstructure:"low_request_factor" validate:"gt=0,lt=1"`
		BandwidthFactor    float64 `mapstructure:"bandwidth_factor" validate:"gt=1"`
	} `mapstructure:"anomaly"`

	MongoDB struct {
		Enabled  bool   `mapstructure:"enabled"`
		URI      string `mapstructure:"uri"`
		Database string `mapstructure:"database"`
	} `mapstructure:"mongodb"`

	Rules struct {
		// Dir holds YAML correlation rule files loaded at startup
		Dir string `mapstructure:"dir"`
	} `mapstructure:"rules"`
}

// setDefaults registers default values for all configuration keys
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("window.max_events_in_memory", 10000)
	v.SetDefault("window.max_events_per_ip", 100)
	v.SetDefault("window.max_events_per_type", 200)
	v.SetDefault("window.retention", 2*time.Hour)
	v.SetDefault("window.cleanup_interval", 5*time.Minute)

	v.SetDefault("correlation.batch_workers", 4)
	v.SetDefault("correlation.batch_queue", 256)
	v.SetDefault("correlation.batch_source_threshold", 5)
	v.SetDefault("correlation.brute_force.event_types", []string{"failed_login", "authentication_failure"})
	v.SetDefault("correlation.brute_force.threshold", 10)
	v.SetDefault("correlation.brute_force.window", 15*time.Minute)
	v.SetDefault("correlation.privilege_escalation.event_types", []string{"privilege_escalation", "admin_access", "sudo_command"})
	v.SetDefault("correlation.privilege_escalation.threshold", 3)
	v.SetDefault("correlation.privilege_escalation.window", 30*time.Minute)
	v.SetDefault("correlation.traffic_volume.event_types", []string{"network_connection"})
	v.SetDefault("correlation.traffic_volume.threshold", 1000)
	v.SetDefault("correlation.traffic_volume.window", 10*time.Minute)
	v.SetDefault("correlation.traffic_volume.max_source_events", 20)

	v.SetDefault("enrichment.stage_timeout", 10*time.Second)
	v.SetDefault("enrichment.cache_ttl", 6*time.Hour)
	v.SetDefault("enrichment.cache_size", 10000)
	v.SetDefault("enrichment.reputation.enabled", false)
	v.SetDefault("enrichment.geo.enabled", false)
	v.SetDefault("enrichment.external.enabled", false)
	v.SetDefault("enrichment.redis.enabled", false)
	v.SetDefault("enrichment.redis.addr", "localhost:6379")
	v.SetDefault("enrichment.redis.pool_size", 10)

	v.SetDefault("anomaly.min_samples", 30)
	v.SetDefault("anomaly.deviation_threshold", 2.0)
	v.SetDefault("anomaly.baseline_window_hours", 24)
	v.SetDefault("anomaly.latency_floor_ms", 1000.0)
	v.SetDefault("anomaly.high_traffic_factor", 1.5)
	v.SetDefault("anomaly.low_request_factor", 0.5)
	v.SetDefault("anomaly.bandwidth_factor", 2.0)

	v.SetDefault("mongodb.enabled", false)
	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.database", "argus")
}

// Load reads configuration from the given file (optional), the environment
// (ARGUS_ prefix) and defaults, in that order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ARGUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config invariants beyond simple type decoding.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Enrichment.Reputation.Enabled && c.Enrichment.Reputation.Endpoint == "" {
		return fmt.Errorf("invalid configuration: reputation enrichment enabled without endpoint")
	}
	if c.Enrichment.Geo.Enabled && c.Enrichment.Geo.Endpoint == "" {
		return fmt.Errorf("invalid configuration: geo enrichment enabled without endpoint")
	}
	if c.Enrichment.External.Enabled && c.Enrichment.External.Endpoint == "" {
		return fmt.Errorf("invalid configuration: external validation enabled without endpoint")
	}
	return nil
}

// Default returns the configuration with all defaults applied. Used by
// tests and by components that are constructed without a config file.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// Defaults are statically valid; a failure here is a programming error.
		panic(err)
	}
	return cfg
}
