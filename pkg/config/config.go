package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/atelier-ops/link-engine/pkg/apperrors"
	"github.com/atelier-ops/link-engine/pkg/models"
)

// Config holds all configuration for link-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Database configuration (SQLite)
	Database DatabaseConfig `yaml:"database"`

	// LLM classification endpoint
	LLM LLMConfig `yaml:"llm"`

	// Linking policy knobs. The thresholds the legacy scripts hardcoded in a
	// dozen places live here, once, with names.
	Linking LinkingConfig `yaml:"linking"`
}

// DatabaseConfig holds SQLite database configuration.
type DatabaseConfig struct {
	Path          string `yaml:"path" env:"LINK_DB_PATH" env-default:"state/operations.db"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms" env:"LINK_DB_BUSY_TIMEOUT_MS" env-default:"5000"`
}

// LLMConfig holds the classification model endpoint configuration.
type LLMConfig struct {
	// Provider selects the client implementation: "openai" (any
	// OpenAI-compatible endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML

	// RequestTimeoutSeconds bounds a single classification call.
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" env:"LLM_REQUEST_TIMEOUT_SECONDS" env-default:"60"`
	// RequestIntervalMS is the pause between consecutive classification calls.
	RequestIntervalMS int `yaml:"request_interval_ms" env:"LLM_REQUEST_INTERVAL_MS" env-default:"500"`
	// MaxRetries bounds retry attempts for transient classification failures.
	MaxRetries int `yaml:"max_retries" env:"LLM_MAX_RETRIES" env-default:"3"`
}

// RequestTimeout returns the per-call timeout as a duration.
func (c *LLMConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// RequestInterval returns the inter-call pause as a duration.
func (c *LLMConfig) RequestInterval() time.Duration {
	return time.Duration(c.RequestIntervalMS) * time.Millisecond
}

// LinkingConfig centralizes the linking policy.
type LinkingConfig struct {
	// AutoLinkThreshold is the minimum confidence at which a candidate is
	// written automatically rather than queued for review.
	AutoLinkThreshold float64 `yaml:"auto_link_threshold" env:"AUTO_LINK_THRESHOLD" env-default:"0.7"`
	// ThreadInheritThreshold is the minimum confidence an existing link needs
	// before sibling messages in the same thread may inherit it.
	ThreadInheritThreshold float64 `yaml:"thread_inherit_threshold" env:"THREAD_INHERIT_THRESHOLD" env-default:"0.9"`
	// MinPatternOccurrences is the co-occurrence count a learned pattern needs
	// before the linker acts on it. Prevents one-off emails seeding rules.
	MinPatternOccurrences int `yaml:"min_pattern_occurrences" env:"MIN_PATTERN_OCCURRENCES" env-default:"5"`

	ContactMatchConfidence float64 `yaml:"contact_match_confidence" env:"CONTACT_MATCH_CONFIDENCE" env-default:"0.85"`
	DomainMatchConfidence  float64 `yaml:"domain_match_confidence" env:"DOMAIN_MATCH_CONFIDENCE" env-default:"0.7"`
	// LLMMatchConfidence is fixed: the model does not return calibrated
	// probabilities, so every accepted code gets the same score.
	LLMMatchConfidence float64 `yaml:"llm_match_confidence" env:"LLM_MATCH_CONFIDENCE" env-default:"0.8"`

	// InternalDomainsStr is a comma-separated list of the firm's own email
	// domains. Senders on these domains are excluded from every heuristic;
	// only LLM classification may link their mail.
	InternalDomainsStr string `yaml:"internal_domains" env:"INTERNAL_DOMAINS" env-default:"bensley.com"`
	// InternalDomains is the parsed form of InternalDomainsStr (not from config file).
	InternalDomains []string `yaml:"-"`

	// BodyTruncateLen caps how much of a message body is sent to the model.
	BodyTruncateLen int `yaml:"body_truncate_len" env:"BODY_TRUNCATE_LEN" env-default:"1500"`
	// BatchSize caps how many unlinked messages one linker run pulls.
	BatchSize int `yaml:"batch_size" env:"LINK_BATCH_SIZE" env-default:"200"`
}

// IsInternalSender reports whether addr belongs to one of the firm's own
// domains. This is the standing filter applied before any heuristic runs.
func (c *LinkingConfig) IsInternalSender(addr string) bool {
	domain := models.EmailDomain(addr)
	if domain == "" {
		return false
	}
	for _, d := range c.InternalDomains {
		if domain == d {
			return true
		}
	}
	return false
}

// Load reads configuration from config.yaml with environment variable overrides.
// A missing config.yaml is not an error: batch jobs are routinely run on hosts
// configured purely through the environment.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.Linking.validate(); err != nil {
		return nil, fmt.Errorf("invalid linking policy: %w", err)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Linking.InternalDomains = parseDomainList(c.Linking.InternalDomainsStr)
	return nil
}

func (c *LinkingConfig) validate() error {
	for name, v := range map[string]float64{
		"auto_link_threshold":      c.AutoLinkThreshold,
		"thread_inherit_threshold": c.ThreadInheritThreshold,
		"contact_match_confidence": c.ContactMatchConfidence,
		"domain_match_confidence":  c.DomainMatchConfidence,
		"llm_match_confidence":     c.LLMMatchConfidence,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s=%v: %w", name, v, apperrors.ErrInvalidThreshold)
		}
	}
	if c.MinPatternOccurrences < 1 {
		return fmt.Errorf("min_pattern_occurrences must be >= 1, got %d", c.MinPatternOccurrences)
	}
	return nil
}

// parseDomainList parses a comma-separated domain list, normalizing each entry.
func parseDomainList(value string) []string {
	var domains []string
	for _, d := range strings.Split(value, ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}
