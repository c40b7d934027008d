package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for Nova-Gateway
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Inference    InferenceConfig    `yaml:"inference"`
	Router       RouterConfig       `yaml:"router"`
	Cache        CacheConfig        `yaml:"cache"`
	Context      ContextConfig      `yaml:"context"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	History      HistoryConfig      `yaml:"history"`
	Channels     ChannelsConfig     `yaml:"channels"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig defines HTTP server settings
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// PoolConfig defines the tier-1 provider credential pool
type PoolConfig struct {
	BaseURL string   `yaml:"base_url"`
	Model   string   `yaml:"model"`
	Keys    []string `yaml:"keys"`
}

// FallbackConfig defines a single lower-tier provider. Engine selects the
// wire format: openai (the default), or ollama, llamacpp, tgi for
// self-hosted engines that speak their own API.
type FallbackConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Engine  string `yaml:"engine,omitempty"`
}

// Local reports whether the entry targets a self-hosted engine that does
// not authenticate requests.
func (f *FallbackConfig) Local() bool {
	switch f.Engine {
	case "ollama", "llamacpp", "tgi":
		return true
	}
	return false
}

// InferenceConfig defines the ordered provider tiers
type InferenceConfig struct {
	Pool      PoolConfig       `yaml:"pool"`
	Fallbacks []FallbackConfig `yaml:"fallbacks,omitempty"`
	Timeout   string           `yaml:"timeout,omitempty"`
}

// GetTimeout returns the per-request timeout as a time.Duration
func (c *InferenceConfig) GetTimeout() time.Duration {
	if c.Timeout == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// RouterConfig defines intent routing thresholds
type RouterConfig struct {
	RateLimitPerMinute  int     `yaml:"rate_limit_per_minute,omitempty"`
	PatternConfidence   float64 `yaml:"pattern_confidence,omitempty"`
	SemanticConfidence  float64 `yaml:"semantic_confidence,omitempty"`
	SemanticSampleLimit int     `yaml:"semantic_sample_limit,omitempty"`
}

// CacheConfig defines response cache settings
type CacheConfig struct {
	TTL        string `yaml:"ttl,omitempty"`
	MaxEntries int    `yaml:"max_entries,omitempty"`
}

// GetTTL returns the default cache TTL
func (c *CacheConfig) GetTTL() time.Duration {
	if c.TTL == "" {
		return 10 * time.Minute
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 10 * time.Minute
	}
	return d
}

// ContextConfig defines per-user conversation context settings
type ContextConfig struct {
	MaxMessages   int    `yaml:"max_messages,omitempty"`
	InactiveAfter string `yaml:"inactive_after,omitempty"`
}

// GetInactiveAfter returns the context GC window
func (c *ContextConfig) GetInactiveAfter() time.Duration {
	if c.InactiveAfter == "" {
		return 24 * time.Hour
	}
	d, err := time.ParseDuration(c.InactiveAfter)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// OrchestratorConfig defines task orchestrator settings
type OrchestratorConfig struct {
	MaxRetries      int    `yaml:"max_retries,omitempty"`
	MaxCapabilities int    `yaml:"max_capabilities,omitempty"`
	Heartbeat       string `yaml:"heartbeat,omitempty"`
}

// GetHeartbeat returns the streaming heartbeat interval
func (c *OrchestratorConfig) GetHeartbeat() time.Duration {
	if c.Heartbeat == "" {
		return 5 * time.Second
	}
	d, err := time.ParseDuration(c.Heartbeat)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// HistoryConfig defines session history persistence settings
type HistoryConfig struct {
	RedisAddr string `yaml:"redis_addr,omitempty"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	TTL       string `yaml:"ttl,omitempty"`
}

// GetTTL returns the history retention window
func (h *HistoryConfig) GetTTL() time.Duration {
	if h.TTL == "" {
		return 7 * 24 * time.Hour
	}
	d, err := time.ParseDuration(h.TTL)
	if err != nil {
		return 7 * 24 * time.Hour
	}
	return d
}

// ChannelsConfig defines channel configurations
type ChannelsConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
	WebChat  WebChatConfig  `yaml:"webchat"`
}

// TelegramConfig defines Telegram channel settings
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// DiscordConfig defines Discord channel settings
type DiscordConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

// WebChatConfig defines WebChat channel settings
type WebChatConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggingConfig defines logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file, applying env overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	return &cfg, nil
}

// applyEnv overrides credentials from the environment so they can stay
// out of config files. NOVA_POOL_KEYS is a comma-separated list.
func (c *Config) applyEnv() {
	if v := os.Getenv("NOVA_POOL_KEYS"); v != "" {
		keys := []string{}
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		c.Inference.Pool.Keys = keys
	}
	for i := range c.Inference.Fallbacks {
		env := "NOVA_" + strings.ToUpper(c.Inference.Fallbacks[i].Name) + "_API_KEY"
		if v := os.Getenv(env); v != "" {
			c.Inference.Fallbacks[i].APIKey = v
		}
	}
	if v := os.Getenv("NOVA_TELEGRAM_TOKEN"); v != "" {
		c.Channels.Telegram.Token = v
	}
	if v := os.Getenv("NOVA_DISCORD_TOKEN"); v != "" {
		c.Channels.Discord.Token = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Router.RateLimitPerMinute == 0 {
		c.Router.RateLimitPerMinute = 30
	}
	if c.Router.PatternConfidence == 0 {
		c.Router.PatternConfidence = 0.8
	}
	if c.Router.SemanticConfidence == 0 {
		c.Router.SemanticConfidence = 0.75
	}
	if c.Router.SemanticSampleLimit == 0 {
		c.Router.SemanticSampleLimit = 30
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 500
	}
	if c.Context.MaxMessages == 0 {
		c.Context.MaxMessages = 20
	}
	if c.Orchestrator.MaxRetries == 0 {
		c.Orchestrator.MaxRetries = 3
	}
	if c.Orchestrator.MaxCapabilities == 0 {
		c.Orchestrator.MaxCapabilities = 12
	}
}

// Validate checks the configuration for fatal problems. Missing
// credentials everywhere is the one unrecoverable setup error.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	hasPool := c.Inference.Pool.BaseURL != "" && len(c.Inference.Pool.Keys) > 0
	hasFallback := false
	for i := range c.Inference.Fallbacks {
		f := &c.Inference.Fallbacks[i]
		switch f.Engine {
		case "", "openai", "ollama", "llamacpp", "tgi":
		default:
			return fmt.Errorf("fallback %s: unknown engine %q", f.Name, f.Engine)
		}
		if f.BaseURL != "" && (f.APIKey != "" || f.Local()) {
			hasFallback = true
		}
	}
	if !hasPool && !hasFallback {
		return fmt.Errorf("no inference providers configured")
	}
	return nil
}
