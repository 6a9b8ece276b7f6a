package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stellarlinkco/ghosthunter/internal/querytool"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	DefaultModel          = "gpt-4"
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens      = 4096
	DefaultTemperature    = 0.7
	DefaultMaxIterations  = 25
	DefaultMaxResults     = 10
	DefaultRegion         = "wt-wt"
	DefaultSafeSearch     = "moderate"
	DefaultSearchTimeout  = 15
	DefaultRetryBackoff   = "2s"
	DefaultOutputDir      = "reports"
	DefaultLogLevel       = "info"
)

// ErrMissingAPIKey is returned by Validate when no model credential is set.
var ErrMissingAPIKey = errors.New("API key is not configured (set OPENAI_API_KEY, ANTHROPIC_API_KEY or GHOSTHUNTER_API_KEY)")

type Config struct {
	Provider  ProviderConfig `json:"provider" yaml:"provider"`
	Agent     AgentConfig    `json:"agent" yaml:"agent"`
	Search    SearchConfig   `json:"search" yaml:"search"`
	Finance   FinanceConfig  `json:"finance" yaml:"finance"`
	Retry     RetryConfig    `json:"retry" yaml:"retry"`
	Log       LogConfig      `json:"log" yaml:"log"`
	Notify    NotifyConfig   `json:"notify" yaml:"notify"`
	History   HistoryConfig  `json:"history" yaml:"history"`
	OutputDir string         `json:"outputDir" yaml:"outputDir"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty" yaml:"type,omitempty"` // "openai" (default) or "anthropic"
	APIKey  string `json:"apiKey" yaml:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
}

type AgentConfig struct {
	Workspace     string  `json:"workspace" yaml:"workspace"`
	Model         string  `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens     int     `json:"maxTokens" yaml:"maxTokens"`
	Temperature   float64 `json:"temperature" yaml:"temperature"`
	MaxIterations int     `json:"maxIterations" yaml:"maxIterations"`
}

type SearchConfig struct {
	Region         string `json:"region" yaml:"region"`
	SafeSearch     string `json:"safeSearch" yaml:"safeSearch"`
	MaxResults     int    `json:"maxResults" yaml:"maxResults"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	Endpoint       string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

type FinanceConfig struct {
	BaseURL        string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

type RetryConfig struct {
	MaxAttempts int     `json:"maxAttempts" yaml:"maxAttempts"`
	Backoff     string  `json:"backoff" yaml:"backoff"`
	Multiplier  float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram" yaml:"telegram"`
}

// HistoryConfig controls the run database. An empty Path means HistoryPath().
type HistoryConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Token   string `json:"token" yaml:"token"`
	ChatID  int64  `json:"chatId" yaml:"chatId"`
	Proxy   string `json:"proxy,omitempty" yaml:"proxy,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Workspace:     filepath.Join(ConfigDir(), "workspace"),
			MaxTokens:     DefaultMaxTokens,
			Temperature:   DefaultTemperature,
			MaxIterations: DefaultMaxIterations,
		},
		Search: SearchConfig{
			Region:         DefaultRegion,
			SafeSearch:     DefaultSafeSearch,
			MaxResults:     DefaultMaxResults,
			TimeoutSeconds: DefaultSearchTimeout,
		},
		Finance: FinanceConfig{
			TimeoutSeconds: DefaultSearchTimeout,
		},
		Retry: RetryConfig{
			MaxAttempts: querytool.DefaultMaxAttempts,
			Backoff:     DefaultRetryBackoff,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
		History: HistoryConfig{
			Enabled: true,
		},
		OutputDir: DefaultOutputDir,
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".ghosthunter")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// YAMLConfigPath is read when ConfigPath does not exist.
func YAMLConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// HistoryPath is the default run database.
func HistoryPath() string {
	return filepath.Join(ConfigDir(), "history.db")
}

// WatchPath is the watchlist job store.
func WatchPath() string {
	return filepath.Join(ConfigDir(), "watch.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if err := loadFile(cfg); err != nil {
		return nil, err
	}

	// Environment variable overrides
	if key := os.Getenv("GHOSTHUNTER_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = ProviderOpenAI
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = ProviderAnthropic
		}
	}
	if url := os.Getenv("GHOSTHUNTER_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if model := os.Getenv("OPENAI_MODEL_NAME"); model != "" {
		cfg.Agent.Model = model
	}
	if temp := os.Getenv("OPENAI_TEMPERATURE"); temp != "" {
		if parsed, err := strconv.ParseFloat(temp, 64); err == nil {
			cfg.Agent.Temperature = parsed
		}
	}
	if n := os.Getenv("SEARCH_MAX_RESULTS"); n != "" {
		if parsed, err := strconv.Atoi(n); err == nil {
			cfg.Search.MaxResults = parsed
		}
	}
	if region := os.Getenv("SEARCH_REGION"); region != "" {
		cfg.Search.Region = region
	}
	if safe := os.Getenv("SEARCH_SAFESEARCH"); safe != "" {
		cfg.Search.SafeSearch = safe
	}
	if n := os.Getenv("RETRY_MAX_ATTEMPTS"); n != "" {
		if parsed, err := strconv.Atoi(n); err == nil {
			cfg.Retry.MaxAttempts = parsed
		}
	}
	if backoff := os.Getenv("RETRY_BACKOFF"); backoff != "" {
		cfg.Retry.Backoff = backoff
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		cfg.Log.File = file
	}
	if dir := os.Getenv("OUTPUT_DIR"); dir != "" {
		cfg.OutputDir = dir
	}
	if token := os.Getenv("GHOSTHUNTER_TELEGRAM_TOKEN"); token != "" {
		cfg.Notify.Telegram.Token = token
	}
	if chatID := os.Getenv("GHOSTHUNTER_TELEGRAM_CHAT_ID"); chatID != "" {
		if parsed, err := strconv.ParseInt(chatID, 10, 64); err == nil {
			cfg.Notify.Telegram.ChatID = parsed
		}
	}

	if cfg.Agent.Workspace == "" {
		cfg.Agent.Workspace = DefaultConfig().Agent.Workspace
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}
	if cfg.History.Path == "" {
		cfg.History.Path = HistoryPath()
	}
	if cfg.Retry.Backoff == "" {
		cfg.Retry.Backoff = DefaultRetryBackoff
	}

	return cfg, nil
}

// loadFile decodes config.json, or config.yaml when the JSON file is absent.
func loadFile(cfg *Config) error {
	data, err := os.ReadFile(ConfigPath())
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("read config: %w", err)
	}

	data, err = os.ReadFile(YAMLConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse yaml config: %w", err)
	}
	return nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0600)
}

// Validate checks the configuration once at process start.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Provider.APIKey) == "" {
		return ErrMissingAPIKey
	}
	switch c.ProviderType() {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unknown provider type %q (want openai or anthropic)", c.Provider.Type)
	}
	if _, err := querytool.ParseSafeSearch(c.Search.SafeSearch); err != nil {
		return err
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search max results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if _, err := parseBackoff(c.Retry.Backoff); err != nil {
		return err
	}
	if c.Notify.Telegram.Enabled {
		if c.Notify.Telegram.Token == "" {
			return errors.New("telegram notifications enabled but token is empty")
		}
		if c.Notify.Telegram.ChatID == 0 {
			return errors.New("telegram notifications enabled but chat id is not set")
		}
	}
	return nil
}

// ProviderType returns the model provider, defaulting to OpenAI.
func (c *Config) ProviderType() string {
	if c.Provider.Type == "" {
		return ProviderOpenAI
	}
	return strings.ToLower(c.Provider.Type)
}

// ModelName returns the configured model or the provider's default.
func (c *Config) ModelName() string {
	if c.Agent.Model != "" {
		return c.Agent.Model
	}
	if c.ProviderType() == ProviderAnthropic {
		return DefaultAnthropicModel
	}
	return DefaultModel
}

// RetryPolicy builds the policy shared by every query tool.
func (c *Config) RetryPolicy() querytool.RetryPolicy {
	p := querytool.DefaultRetryPolicy()
	if c.Retry.MaxAttempts > 0 {
		p.MaxAttempts = c.Retry.MaxAttempts
	}
	if d, err := parseBackoff(c.Retry.Backoff); err == nil {
		p.BackoffDelay = d
	}
	if c.Retry.Multiplier > 1 {
		p.Multiplier = c.Retry.Multiplier
	}
	return p
}

// SearchSettings returns the provider parameters for the search tool.
func (c *Config) SearchSettings() querytool.SearchSettings {
	safe, err := querytool.ParseSafeSearch(c.Search.SafeSearch)
	if err != nil {
		safe = querytool.SafeSearchModerate
	}
	return querytool.SearchSettings{
		Region:     c.Search.Region,
		SafeSearch: safe,
		MaxResults: c.Search.MaxResults,
	}
}

// WithSearch returns a copy of c with per-run search overrides applied.
// Zero values leave the existing setting in place.
func (c *Config) WithSearch(maxResults int, region string) *Config {
	out := *c
	if maxResults > 0 {
		out.Search.MaxResults = maxResults
	}
	if region != "" {
		out.Search.Region = region
	}
	return &out
}

// parseBackoff accepts a Go duration ("2s", "500ms") or a bare number of
// seconds ("2", "1.5").
func parseBackoff(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return querytool.DefaultBackoffDelay, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("retry backoff must not be negative, got %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid retry backoff %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("retry backoff must not be negative, got %q", s)
	}
	return d, nil
}
