package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Scoring   ScoringConfig   `yaml:"scoring" mapstructure:"scoring"`
	Dedup     DedupConfig     `yaml:"dedup" mapstructure:"dedup"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the durable stores. The primary store holds
// opportunity facts; the secondary store mirrors validation state.
type StoreConfig struct {
	PrimaryDriver   string `yaml:"primary_driver" mapstructure:"primary_driver"`
	PrimaryURL      string `yaml:"primary_url" mapstructure:"primary_url"`
	SecondaryDriver string `yaml:"secondary_driver" mapstructure:"secondary_driver"`
	SecondaryURL    string `yaml:"secondary_url" mapstructure:"secondary_url"`
}

// AnthropicConfig holds the extraction model settings.
type AnthropicConfig struct {
	Key             string  `yaml:"key" mapstructure:"key"`
	Model           string  `yaml:"model" mapstructure:"model"`
	MaxTokens       int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMin  float64 `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxContentChars int     `yaml:"max_content_chars" mapstructure:"max_content_chars"`
}

// IngestConfig configures the raw-event feed source.
type IngestConfig struct {
	FeedsFile  string `yaml:"feeds_file" mapstructure:"feeds_file"`
	Hours      int    `yaml:"hours" mapstructure:"hours"`
	MaxPerFeed int    `yaml:"max_per_feed" mapstructure:"max_per_feed"`
}

// PipelineConfig configures stage execution.
type PipelineConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	BatchLimit  int `yaml:"batch_limit" mapstructure:"batch_limit"`
}

// ScoringConfig holds the deterministic scoring tunables.
type ScoringConfig struct {
	MinLeadMonths        int      `yaml:"min_lead_months" mapstructure:"min_lead_months"`
	MaxLeadMonths        int      `yaml:"max_lead_months" mapstructure:"max_lead_months"`
	InvestmentThreshold  float64  `yaml:"investment_threshold" mapstructure:"investment_threshold"`
	OpportunityThreshold int      `yaml:"opportunity_threshold" mapstructure:"opportunity_threshold"`
	PreferredZones       []string `yaml:"preferred_zones" mapstructure:"preferred_zones"`
}

// DedupConfig holds the deduplication thresholds and cohort bound.
type DedupConfig struct {
	DuplicateThreshold float64 `yaml:"duplicate_threshold" mapstructure:"duplicate_threshold"`
	SuspectThreshold   float64 `yaml:"suspect_threshold" mapstructure:"suspect_threshold"`
	CohortDays         int     `yaml:"cohort_days" mapstructure:"cohort_days"`
	HistoricalDays     int     `yaml:"historical_days" mapstructure:"historical_days"`
}

// ReconcileConfig configures the validation artifact.
type ReconcileConfig struct {
	ArtifactPath   string `yaml:"artifact_path" mapstructure:"artifact_path"`
	ArtifactFormat string `yaml:"artifact_format" mapstructure:"artifact_format"` // "xlsx" or "csv"
	SheetName      string `yaml:"sheet_name" mapstructure:"sheet_name"`
}

// NotifyConfig configures the outbound notification webhook.
type NotifyConfig struct {
	WebhookURL  string `yaml:"webhook_url" mapstructure:"webhook_url"`
	Recipient   string `yaml:"recipient" mapstructure:"recipient"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.primary_driver", "postgres")
	v.SetDefault("store.secondary_driver", "sqlite")
	v.SetDefault("store.secondary_url", "leadscan.db")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.requests_per_min", 12)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("anthropic.max_content_chars", 6000)
	v.SetDefault("ingest.feeds_file", "feeds.yaml")
	v.SetDefault("ingest.hours", 24)
	v.SetDefault("ingest.max_per_feed", 50)
	v.SetDefault("pipeline.concurrency", 4)
	v.SetDefault("pipeline.batch_limit", 200)
	v.SetDefault("scoring.min_lead_months", 6)
	v.SetDefault("scoring.max_lead_months", 24)
	v.SetDefault("scoring.investment_threshold", 10_000_000)
	v.SetDefault("scoring.opportunity_threshold", 50)
	v.SetDefault("scoring.preferred_zones", []string{"EMEA"})
	v.SetDefault("dedup.duplicate_threshold", 0.90)
	v.SetDefault("dedup.suspect_threshold", 0.85)
	v.SetDefault("dedup.cohort_days", 7)
	v.SetDefault("dedup.historical_days", 365)
	v.SetDefault("reconcile.artifact_path", "validations.xlsx")
	v.SetDefault("reconcile.artifact_format", "xlsx")
	v.SetDefault("reconcile.sheet_name", "Opportunities")
	v.SetDefault("notify.timeout_secs", 15)
	v.SetDefault("server.port", 8080)
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
