package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	yaml := []byte(`
server:
  port: 18800
  host: localhost
inference:
  timeout: 30s
  pool:
    base_url: https://api.groq.com/openai/v1
    model: llama-3.3-70b-versatile
    keys: [gsk_one, gsk_two]
  fallbacks:
    - name: nvidia
      base_url: https://integrate.api.nvidia.com/v1
      api_key: nvapi-test
      model: meta/llama-3.1-405b-instruct
router:
  rate_limit_per_minute: 10
`)
	f, _ := os.CreateTemp("", "config-*.yaml")
	f.Write(yaml)
	f.Close()
	defer os.Remove(f.Name())

	cfg, err := Load(f.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 18800 {
		t.Errorf("Expected port 18800, got %d", cfg.Server.Port)
	}
	if len(cfg.Inference.Pool.Keys) != 2 {
		t.Errorf("Expected 2 pool keys, got %d", len(cfg.Inference.Pool.Keys))
	}
	if cfg.Inference.GetTimeout() != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", cfg.Inference.GetTimeout())
	}
	if cfg.Router.RateLimitPerMinute != 10 {
		t.Errorf("Expected rate limit 10, got %d", cfg.Router.RateLimitPerMinute)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	yaml := []byte(`
inference:
  pool:
    base_url: https://api.groq.com/openai/v1
    keys: [gsk_one]
`)
	f, _ := os.CreateTemp("", "config-*.yaml")
	f.Write(yaml)
	f.Close()
	defer os.Remove(f.Name())

	cfg, err := Load(f.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Router.RateLimitPerMinute != 30 {
		t.Errorf("Expected default rate limit 30, got %d", cfg.Router.RateLimitPerMinute)
	}
	if cfg.Orchestrator.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", cfg.Orchestrator.MaxRetries)
	}
	if cfg.Cache.GetTTL() != 10*time.Minute {
		t.Errorf("Expected default cache TTL 10m, got %v", cfg.Cache.GetTTL())
	}
	if cfg.Context.GetInactiveAfter() != 24*time.Hour {
		t.Errorf("Expected default inactivity window 24h, got %v", cfg.Context.GetInactiveAfter())
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 18800, Host: "localhost"},
		Inference: InferenceConfig{
			Pool: PoolConfig{BaseURL: "https://api.groq.com/openai/v1", Keys: []string{"gsk_one"}},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestValidateNoProviders(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: 18800}}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error with no providers configured")
	}
}

func TestValidateInvalidPort(t *testing.T) {
	cfg := &Config{Server: ServerConfig{Port: -1}}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for invalid port")
	}
}

func TestEnvKeyOverride(t *testing.T) {
	os.Setenv("NOVA_POOL_KEYS", "gsk_a, gsk_b,gsk_c")
	defer os.Unsetenv("NOVA_POOL_KEYS")

	yaml := []byte(`
inference:
  pool:
    base_url: https://api.groq.com/openai/v1
    keys: [gsk_old]
`)
	f, _ := os.CreateTemp("", "config-*.yaml")
	f.Write(yaml)
	f.Close()
	defer os.Remove(f.Name())

	cfg, err := Load(f.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Inference.Pool.Keys) != 3 {
		t.Fatalf("Expected 3 pool keys from env, got %d", len(cfg.Inference.Pool.Keys))
	}
	if cfg.Inference.Pool.Keys[1] != "gsk_b" {
		t.Errorf("Expected trimmed key gsk_b, got %q", cfg.Inference.Pool.Keys[1])
	}
}

func TestValidateLocalEngineNeedsNoKey(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 18800},
		Inference: InferenceConfig{
			Fallbacks: []FallbackConfig{
				{Name: "local", BaseURL: "http://localhost:11434", Engine: "ollama"},
			},
		},
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestValidateUnknownEngine(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 18800},
		Inference: InferenceConfig{
			Pool: PoolConfig{BaseURL: "https://api.groq.com/openai/v1", Keys: []string{"gsk_one"}},
			Fallbacks: []FallbackConfig{
				{Name: "local", BaseURL: "http://localhost:8000", Engine: "vllm-native"},
			},
		},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for unknown engine")
	}
}
