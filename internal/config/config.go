package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/rogersf/ticketflow/internal/classify"
	"github.com/rogersf/ticketflow/internal/domain"
)

// EnvPrefix marks environment variables that override file settings.
// TICKETFLOW_WORKFLOW__RETRY_LIMIT=3 sets workflow.retry_limit.
const EnvPrefix = "TICKETFLOW_"

// Escalation sink names accepted in escalation.sinks.
const (
	SinkCSV    = "csv"
	SinkSQLite = "sqlite"
	SinkKafka  = "kafka"
)

// Config holds the service's runtime configuration.
type Config struct {
	Log        LogConfig        `koanf:"log"`
	Store      StoreConfig      `koanf:"store"`
	Server     ServerConfig     `koanf:"server"`
	Tracing    TracingConfig    `koanf:"tracing"`
	Workflow   WorkflowConfig   `koanf:"workflow"`
	Classifier ClassifierConfig `koanf:"classifier"`
	Knowledge  KnowledgeConfig  `koanf:"knowledge"`
	Review     ReviewConfig     `koanf:"review"`
	Compose    ComposeConfig    `koanf:"compose"`
	Escalation EscalationConfig `koanf:"escalation"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // text or json
}

type StoreConfig struct {
	DBPath string `koanf:"db_path"`
}

type ServerConfig struct {
	ListenAddr         string `koanf:"listen_addr"`
	RateLimitPerMinute int    `koanf:"rate_limit_per_minute"`
	MaxSubjectLen      int    `koanf:"max_subject_len"`
	MaxDescriptionLen  int    `koanf:"max_description_len"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type WorkflowConfig struct {
	RetryLimit int           `koanf:"retry_limit"`
	RunTimeout time.Duration `koanf:"run_timeout"`
}

type ClassifierConfig struct {
	Rules []classify.Rule `koanf:"rules"`
}

// KnowledgeConfig points at an optional YAML suggestion table and holds the
// per-category notes appended when a draft is retried.
type KnowledgeConfig struct {
	TablePath string            `koanf:"table_path"`
	Notes     map[string]string `koanf:"notes"`
}

type ReviewConfig struct {
	ProhibitedTerms []string `koanf:"prohibited_terms"`
	MinLength       int      `koanf:"min_length"`
}

type ComposeConfig struct {
	Template  string `koanf:"template"`
	Signature string `koanf:"signature"`
}

type EscalationConfig struct {
	Sinks   []string    `koanf:"sinks"`
	CSVPath string      `koanf:"csv_path"`
	Kafka   KafkaConfig `koanf:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

// Option adjusts the merged file and environment layers before defaults and
// validation run.
type Option func(k *koanf.Koanf) error

// WithOverride sets key to v on top of the file and environment. Command-line
// flags use it so their values are validated like any other setting.
func WithOverride(key string, v any) Option {
	return func(k *koanf.Koanf) error {
		return k.Set(key, v)
	}
}

// Load reads an optional YAML file, overlays TICKETFLOW_ environment
// variables and any overrides, applies defaults, and validates. An empty path
// skips the file.
func Load(path string, opts ...Option) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	for _, opt := range opts {
		if err := opt(k); err != nil {
			return nil, fmt.Errorf("apply override: %w", err)
		}
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills scalar keys that were not set at all, so an explicit
// zero still reaches validation.
func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"log.level":                    "info",
		"log.format":                   "text",
		"store.db_path":                "ticketflow.db",
		"server.listen_addr":           ":9800",
		"server.rate_limit_per_minute": 60,
		"server.max_subject_len":       200,
		"server.max_description_len":   5000,
		"tracing.service_name":         "ticketflow",
		"workflow.retry_limit":         2,
		"workflow.run_timeout":         "30s",
		"review.min_length":            30,
		"review.prohibited_terms":      []string{"refund"},
		"escalation.csv_path":          "escalation_log.csv",
		"escalation.sinks":             []string{SinkCSV},
	}
	for key, v := range defaults {
		if !k.Exists(key) {
			_ = k.Set(key, v)
		}
	}
}

func (c *Config) applyDefaults() {
	if len(c.Classifier.Rules) == 0 {
		c.Classifier.Rules = classify.DefaultRules()
	}
	if c.Compose.Signature == "" {
		c.Compose.Signature = "Support Team"
	}
	for i, s := range c.Escalation.Sinks {
		c.Escalation.Sinks[i] = strings.ToLower(strings.TrimSpace(s))
	}
}

func (c *Config) validate() error {
	var problems []string

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log.format %q is not one of text, json", c.Log.Format))
	}
	if c.Workflow.RetryLimit < 1 {
		problems = append(problems, "workflow.retry_limit must be at least 1")
	}
	if c.Workflow.RunTimeout < 0 {
		problems = append(problems, "workflow.run_timeout must not be negative")
	}
	if c.Server.RateLimitPerMinute < 0 || c.Server.MaxSubjectLen < 0 || c.Server.MaxDescriptionLen < 0 {
		problems = append(problems, "server limits must not be negative")
	}
	if c.Review.MinLength < 0 {
		problems = append(problems, "review.min_length must not be negative")
	}
	for _, r := range c.Classifier.Rules {
		if !r.Category.Valid() {
			problems = append(problems, fmt.Sprintf("classifier rule category %q is unknown", r.Category))
		}
	}
	if _, err := c.Knowledge.CategoryNotes(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(c.Escalation.Sinks) == 0 {
		problems = append(problems, "at least one escalation sink is required")
	}
	seen := map[string]bool{}
	for _, s := range c.Escalation.Sinks {
		if seen[s] {
			problems = append(problems, fmt.Sprintf("escalation sink %q listed twice", s))
		}
		seen[s] = true
		switch s {
		case SinkCSV:
			if c.Escalation.CSVPath == "" {
				problems = append(problems, "escalation.csv_path is required for the csv sink")
			}
		case SinkSQLite:
			if c.Store.DBPath == "" {
				problems = append(problems, "store.db_path is required for the sqlite sink")
			}
		case SinkKafka:
			if len(c.Escalation.Kafka.Brokers) == 0 {
				problems = append(problems, "escalation.kafka.brokers is required for the kafka sink")
			}
			if c.Escalation.Kafka.Topic == "" {
				problems = append(problems, "escalation.kafka.topic is required for the kafka sink")
			}
		default:
			problems = append(problems, fmt.Sprintf("escalation sink %q is not one of csv, sqlite, kafka", s))
		}
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

// HasSink reports whether name is among the configured escalation sinks.
func (c *Config) HasSink(name string) bool {
	for _, s := range c.Escalation.Sinks {
		if s == name {
			return true
		}
	}
	return false
}

// CategoryNotes resolves the configured note keys to categories, ignoring
// case. Nil notes yield nil so callers can fall back to the built-in set.
func (k KnowledgeConfig) CategoryNotes() (map[domain.Category]string, error) {
	if k.Notes == nil {
		return nil, nil
	}
	out := make(map[domain.Category]string, len(k.Notes))
	for key, note := range k.Notes {
		cat, ok := lookupCategory(key)
		if !ok {
			return nil, fmt.Errorf("knowledge note category %q is unknown", key)
		}
		out[cat] = note
	}
	return out, nil
}

func lookupCategory(name string) (domain.Category, bool) {
	for _, c := range domain.Categories {
		if strings.EqualFold(string(c), name) {
			return c, true
		}
	}
	return "", false
}
