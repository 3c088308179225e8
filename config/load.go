package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. CATALOGUE_PARALLELISM=8.
const EnvPrefix = "CATALOGUE"

// Load builds a Config from defaults, an optional config file at path, and
// CATALOGUE_* environment variables, in increasing order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("base_url", d.BaseURL)
	v.SetDefault("parallelism", d.Parallelism)
	v.SetDefault("max_pages", d.MaxPages)
	v.SetDefault("delay", d.Delay)
	v.SetDefault("random_delay", d.RandomDelay)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("output_file", d.OutputFile)
	v.SetDefault("output_format", d.OutputFormat)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("dedupe_max_size", d.DedupeMaxSize)
	v.SetDefault("buffer_size", d.BufferSize)
	v.SetDefault("schedule_at", d.ScheduleAt)
	v.SetDefault("run_once", d.RunOnce)
}
