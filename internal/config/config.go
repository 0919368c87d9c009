package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the experiment configuration, loaded from the config file with
// flag overrides applied by the CLI layer.
type Config struct {
	// Targets maps logical function names to base URLs.
	Targets map[string]string `mapstructure:"targets"`

	LogDir      string `mapstructure:"log_dir"`
	HistoryPath string `mapstructure:"history_path"`

	Strategy string `mapstructure:"strategy"` // append | snapshot
	Mode     string `mapstructure:"mode"`     // idempotent | cumulative

	ColdDelay        time.Duration `mapstructure:"cold_delay"`
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff"`
	TransientDelay   time.Duration `mapstructure:"transient_delay"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	FlushEvery       int           `mapstructure:"flush_every"`

	TokenCommand []string      `mapstructure:"token_command"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`

	Region string `mapstructure:"region"`
}

// SetDefaults registers the default values on a viper instance. The delay
// constants are empirically chosen and deliberately overridable, not law.
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("log_dir", "results")
	v.SetDefault("history_path", filepath.Join(home, ".coldbench", "history.db"))
	v.SetDefault("strategy", "append")
	v.SetDefault("mode", "idempotent")
	v.SetDefault("cold_delay", 5*time.Second)
	v.SetDefault("rate_limit_backoff", 30*time.Second)
	v.SetDefault("transient_delay", 0)
	v.SetDefault("max_attempts", 0)
	v.SetDefault("request_timeout", 0)
	v.SetDefault("flush_every", 25)
	v.SetDefault("token_command", []string{"gcloud", "auth", "print-identity-token"})
	v.SetDefault("token_ttl", 45*time.Minute)
}

// Load unmarshals the effective configuration.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "unmarshalling config")
	}
	if len(cfg.TokenCommand) == 0 {
		return Config{}, errors.New("token_command must not be empty")
	}
	return cfg, nil
}

// TargetURL resolves a logical target name.
func (c Config) TargetURL(name string) (string, error) {
	url, ok := c.Targets[name]
	if !ok {
		return "", errors.Errorf("unknown target %q", name)
	}
	return url, nil
}
