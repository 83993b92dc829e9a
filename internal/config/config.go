// Package config loads the process-wide Config struct from environment
// variables and an optional YAML file layered underneath them, following
// the teacher's viper.New()-plus-explicit-bindings idiom
// (internal/labelmutex/policy.go, cmd/bd/config.go).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/vitalstream/telemetry-pipeline/internal/rules"
)

// Config is the §6 Configuration surface, one struct per process.
type Config struct {
	ServiceName string

	NATSURL       string
	ConsumerGroup string
	BusClientID   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ScorerAddr    string
	ScorerTimeout time.Duration

	Thresholds rules.Thresholds

	BaselineWindowSize int
	MinBaselineSamples int

	RollingWindow15MSeconds int
	RollingWindow1HSeconds  int
	AlertWindowSeconds      int

	QueryAddr string

	LogJSON  bool
	LogLevel string
}

func defaults(v *viper.Viper) {
	v.SetDefault("service_name", "vitalpipe")

	v.SetDefault("nats_url", "nats://127.0.0.1:4222")
	v.SetDefault("consumer_group", "vitalpipe")
	v.SetDefault("bus_client_id", "vitalpipe")

	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("scorer_addr", "127.0.0.1:9090")
	v.SetDefault("scorer_timeout_seconds", 5)

	v.SetDefault("hr_max", rules.DefaultThresholds().HRMax)
	v.SetDefault("hr_very_high", rules.DefaultThresholds().HRVeryHigh)
	v.SetDefault("spo2_min", rules.DefaultThresholds().SpO2Min)
	v.SetDefault("spo2_low", rules.DefaultThresholds().SpO2Low)
	v.SetDefault("temp_max", rules.DefaultThresholds().TempMaxF)

	v.SetDefault("baseline_window_size", 100)
	v.SetDefault("min_baseline_samples", 10)

	v.SetDefault("rolling_window_15m_seconds", 900)
	v.SetDefault("rolling_window_1h_seconds", 3600)
	// 120s covers both the current and previous minute bucket, which
	// GlobalAlerts' fallback read depends on.
	v.SetDefault("alert_window_seconds", 120)

	v.SetDefault("query_addr", ":8080")

	v.SetDefault("log_json", false)
	v.SetDefault("log_level", "info")
}

// Load builds a Config from environment variables (prefixed VITALPIPE_)
// and, if configPath is non-empty, a YAML file layered underneath them —
// env vars win, matching viper's AutomaticEnv precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("vitalpipe")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		ServiceName: v.GetString("service_name"),

		NATSURL:       v.GetString("nats_url"),
		ConsumerGroup: v.GetString("consumer_group"),
		BusClientID:   v.GetString("bus_client_id"),

		RedisAddr:     v.GetString("redis_addr"),
		RedisPassword: v.GetString("redis_password"),
		RedisDB:       v.GetInt("redis_db"),

		ScorerAddr:    v.GetString("scorer_addr"),
		ScorerTimeout: time.Duration(v.GetInt("scorer_timeout_seconds")) * time.Second,

		Thresholds: rules.Thresholds{
			HRMax:      v.GetFloat64("hr_max"),
			HRVeryHigh: v.GetFloat64("hr_very_high"),
			SpO2Min:    v.GetFloat64("spo2_min"),
			SpO2Low:    v.GetFloat64("spo2_low"),
			TempMaxF:   v.GetFloat64("temp_max"),
		},

		BaselineWindowSize: v.GetInt("baseline_window_size"),
		MinBaselineSamples: v.GetInt("min_baseline_samples"),

		RollingWindow15MSeconds: v.GetInt("rolling_window_15m_seconds"),
		RollingWindow1HSeconds:  v.GetInt("rolling_window_1h_seconds"),
		AlertWindowSeconds:      v.GetInt("alert_window_seconds"),

		QueryAddr: v.GetString("query_addr"),

		LogJSON:  v.GetBool("log_json"),
		LogLevel: v.GetString("log_level"),
	}
}

// WatchThresholds hot-reloads rule thresholds from configPath on every
// write, pushing the change into engine via SetThresholds — the
// fsnotify-backed equivalent of the teacher's config.yaml watch, scoped to
// just the values that are safe to change under load (§6 hot-reload
// surface: thresholds only, never transport/storage settings).
func WatchThresholds(configPath string, engine *rules.Engine) error {
	if configPath == "" {
		return nil
	}
	v := viper.New()
	defaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: watch %s: %w", configPath, err)
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		engine.SetThresholds(rules.Thresholds{
			HRMax:      v.GetFloat64("hr_max"),
			HRVeryHigh: v.GetFloat64("hr_very_high"),
			SpO2Min:    v.GetFloat64("spo2_min"),
			SpO2Low:    v.GetFloat64("spo2_low"),
			TempMaxF:   v.GetFloat64("temp_max"),
		})
	})
	v.WatchConfig()
	return nil
}
