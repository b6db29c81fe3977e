package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Rules      RulesConfig      `yaml:"rules" mapstructure:"rules"`
	Audit      AuditConfig      `yaml:"audit" mapstructure:"audit"`
	Engine     EngineConfig     `yaml:"engine" mapstructure:"engine"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// RulesConfig locates the rule tables. An empty Dir selects the rule set
// bundled with the binary.
type RulesConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// AuditConfig configures the audit trace backend.
type AuditConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"`
	DSN        string `yaml:"dsn" mapstructure:"dsn"`
	MaxRecords int    `yaml:"max_records" mapstructure:"max_records"`
}

// EngineConfig configures the guardrails engine.
type EngineConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// MonitoringConfig configures the integrity checker and its alert thresholds.
type MonitoringConfig struct {
	CheckIntervalSecs int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url"`
	// MinTraces is the sample size below which rate alerts are suppressed.
	MinTraces                   int     `yaml:"min_traces" mapstructure:"min_traces"`
	TemporalViolationThreshold  float64 `yaml:"temporal_violation_threshold" mapstructure:"temporal_violation_threshold"`
	ExploratoryShareThreshold   float64 `yaml:"exploratory_share_threshold" mapstructure:"exploratory_share_threshold"`
	WebhookMaxAttempts          int     `yaml:"webhook_max_attempts" mapstructure:"webhook_max_attempts"`
	WebhookInitialBackoffMillis int     `yaml:"webhook_initial_backoff_ms" mapstructure:"webhook_initial_backoff_ms"`
	// MetricsAddr is where monitor serves /metrics. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("guardrails")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("GUARDRAILS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("rules.dir", "")
	v.SetDefault("audit.driver", "memory")
	v.SetDefault("audit.dsn", "")
	v.SetDefault("audit.max_records", 1000)
	v.SetDefault("engine.concurrency", 8)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.min_traces", 20)
	v.SetDefault("monitoring.temporal_violation_threshold", 0.10)
	v.SetDefault("monitoring.exploratory_share_threshold", 0.30)
	v.SetDefault("monitoring.webhook_max_attempts", 3)
	v.SetDefault("monitoring.webhook_initial_backoff_ms", 500)
	v.SetDefault("monitoring.metrics_addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. Mode is one of evaluate,
// traces or monitor.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Audit.Driver {
	case "", "memory":
	case "sqlite", "postgres":
		if c.Audit.DSN == "" {
			errs = append(errs, fmt.Sprintf("audit.dsn is required for driver %s", c.Audit.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("audit.driver %q is not one of memory, sqlite, postgres", c.Audit.Driver))
	}
	if c.Audit.MaxRecords < 0 {
		errs = append(errs, "audit.max_records must be >= 0")
	}

	switch mode {
	case "evaluate":
		if c.Engine.Concurrency < 1 || c.Engine.Concurrency > 64 {
			errs = append(errs, "engine.concurrency must be between 1 and 64")
		}
	case "traces":
	case "monitor":
		if c.Audit.Driver == "" || c.Audit.Driver == "memory" {
			errs = append(errs, "monitor requires a durable audit.driver (sqlite or postgres)")
		}
		if c.Monitoring.CheckIntervalSecs <= 0 {
			errs = append(errs, "monitoring.check_interval_secs must be > 0")
		}
		if !inUnit(c.Monitoring.TemporalViolationThreshold) {
			errs = append(errs, "monitoring.temporal_violation_threshold must be between 0 and 1")
		}
		if !inUnit(c.Monitoring.ExploratoryShareThreshold) {
			errs = append(errs, "monitoring.exploratory_share_threshold must be between 0 and 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func inUnit(f float64) bool {
	return f >= 0 && f <= 1
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
