// Package config loads gateway configuration from defaults, an optional
// YAML file, a .env file, and environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/chriscow/voicegw/pkg/agent"
	"github.com/chriscow/voicegw/pkg/plugin"
	"github.com/chriscow/voicegw/pkg/session"
)

// Config is the top-level gateway configuration.
type Config struct {
	Listen          string                    `yaml:"listen"`
	Log             LogConfig                 `yaml:"log"`
	Providers       agent.Backends            `yaml:"providers"`
	Models          map[string]string         `yaml:"models"`  // plugin kind -> model
	Options         map[string]map[string]any `yaml:"options"` // plugin kind -> options
	Credentials     map[string]string         `yaml:"credentials"`
	Timeouts        TimeoutConfig             `yaml:"timeouts"`
	QueueSize       int                       `yaml:"queue_size"`
	MaxMessageBytes int64                     `yaml:"max_message_bytes"`
	AllowedOrigins  []string                  `yaml:"allowed_origins"`
	WriteTimeout    time.Duration             `yaml:"write_timeout"`
}

// LogConfig controls the root logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// TimeoutConfig bounds each provider call.
type TimeoutConfig struct {
	Augment    time.Duration `yaml:"augment"`
	Generate   time.Duration `yaml:"generate"`
	Synthesize time.Duration `yaml:"synthesize"`
}

// Agent converts the timeouts for the orchestrator.
func (t TimeoutConfig) Agent() agent.Timeouts {
	return agent.Timeouts{Augment: t.Augment, Generate: t.Generate, Synthesize: t.Synthesize}
}

// envKeys maps provider secret variables to credential names.
var envKeys = map[string]string{
	"ASSEMBLYAI_API_KEY": "assemblyai",
	"GEMINI_API_KEY":     "gemini",
	"OPENAI_API_KEY":     "openai",
	"MURF_API_KEY":       "murf",
	"SERPAPI_API_KEY":    "serpapi",
	"NEWSAPI_API_KEY":    "newsapi",
}

// Default returns a Config populated with the production backends.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Log:    LogConfig{Level: "info", Format: "json"},
		Providers: agent.Backends{
			STT:    "assemblyai",
			LLM:    "gemini",
			TTS:    "murf",
			Search: "serpapi",
			News:   "newsapi",
		},
		Credentials: map[string]string{},
		Timeouts: TimeoutConfig{
			Augment:    agent.DefaultTimeouts.Augment,
			Generate:   agent.DefaultTimeouts.Generate,
			Synthesize: agent.DefaultTimeouts.Synthesize,
		},
		QueueSize:       16,
		MaxMessageBytes: 1 << 20,
		WriteTimeout:    10 * time.Second,
	}
}

// Load builds the configuration. A missing .env file is fine; a missing
// YAML file at a non-empty path is an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(dst *string, name string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	setString(&c.Listen, "VOICEGW_LISTEN")
	setString(&c.Log.Level, "VOICEGW_LOG_LEVEL")
	setString(&c.Log.Format, "VOICEGW_LOG_FORMAT")
	setString(&c.Providers.STT, "VOICEGW_STT")
	setString(&c.Providers.LLM, "VOICEGW_LLM")
	setString(&c.Providers.TTS, "VOICEGW_TTS")
	setString(&c.Providers.Search, "VOICEGW_SEARCH")
	setString(&c.Providers.News, "VOICEGW_NEWS")

	if c.Credentials == nil {
		c.Credentials = map[string]string{}
	}
	for env, name := range envKeys {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			c.Credentials[name] = v
		}
	}
}

// Validate checks backend names against reg and the numeric settings.
func (c *Config) Validate(reg *plugin.Registry) error {
	if reg == nil {
		reg = plugin.Default()
	}

	var errs []error
	backends := []struct{ kind, name string }{
		{plugin.KindSTT, c.Providers.STT},
		{plugin.KindLLM, c.Providers.LLM},
		{plugin.KindTTS, c.Providers.TTS},
		{plugin.KindSearch, c.Providers.Search},
		{plugin.KindNews, c.Providers.News},
	}
	for _, b := range backends {
		if b.name != "" && !reg.Has(b.kind, b.name) {
			errs = append(errs, fmt.Errorf("providers.%s: unknown backend %q", b.kind, b.name))
		}
	}

	if c.Timeouts.Augment <= 0 || c.Timeouts.Generate <= 0 || c.Timeouts.Synthesize <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.QueueSize <= 0 {
		errs = append(errs, errors.New("queue_size must be positive"))
	}
	if c.MaxMessageBytes <= 0 {
		errs = append(errs, errors.New("max_message_bytes must be positive"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Selection names the configured backend for each capability.
func (c *Config) Selection() session.Selection {
	return session.Selection{
		session.SpeechToText:       c.Providers.STT,
		session.LanguageGeneration: c.Providers.LLM,
		session.SpeechSynthesis:    c.Providers.TTS,
		session.WebSearch:          c.Providers.Search,
		session.News:               c.Providers.News,
	}
}

// DefaultCredentials resolves the process-wide secret for each capability.
// A secret stored under the selected backend's name wins over one stored
// under the capability name, so OPENAI_API_KEY serves language generation
// only when the openai backend is selected.
func (c *Config) DefaultCredentials() session.Credentials {
	creds := session.Credentials{}
	for capability, backend := range c.Selection() {
		if v := c.Credentials[backend]; backend != "" && v != "" {
			creds[capability] = v
		} else if v := c.Credentials[string(capability)]; v != "" {
			creds[capability] = v
		}
	}
	return creds
}

// BuildConfig returns the provider construction settings for one session.
func (c *Config) BuildConfig(creds session.Credentials) agent.BuildConfig {
	return agent.BuildConfig{
		Backends:    c.Providers,
		Models:      c.Models,
		Options:     c.Options,
		Credentials: creds,
	}
}
