package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"PORT", "ENV", "LLM_PROVIDER", "LLM_MODEL", "GEMINI_API_KEY", "APP_ID", "SESSION_TTL_MINUTES", "IDENTITY_TIMEOUT_SECONDS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected port 8080, got %q", cfg.Port)
	}
	if cfg.Env != "dev" {
		t.Fatalf("expected env dev, got %q", cfg.Env)
	}
	if cfg.LLMProvider != ProviderGemini {
		t.Fatalf("expected gemini provider, got %q", cfg.LLMProvider)
	}
	if cfg.LLMModel != "gemini-2.5-flash-preview-05-20" {
		t.Fatalf("unexpected default model %q", cfg.LLMModel)
	}
	if cfg.AppID != "default-app-id" {
		t.Fatalf("unexpected app id %q", cfg.AppID)
	}
	if cfg.SessionTTL != time.Hour {
		t.Fatalf("expected 1h session ttl, got %s", cfg.SessionTTL)
	}
	if cfg.IdentityTimeout != 10*time.Second {
		t.Fatalf("expected 10s identity timeout, got %s", cfg.IdentityTimeout)
	}
	if cfg.LLMConfigured() {
		t.Fatalf("expected llm to be unconfigured without a key")
	}
}

func TestLoadOpenAIProviderUsesOpenAIKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LLM_PROVIDER", "OpenAI")
	t.Setenv("LLM_MODEL", "")
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("OPENAI_API_KEY", "oa-key")

	cfg := Load()
	if cfg.LLMProvider != ProviderOpenAI {
		t.Fatalf("expected openai provider, got %q", cfg.LLMProvider)
	}
	if cfg.LLMModel != "gpt-4o-mini" {
		t.Fatalf("unexpected default openai model %q", cfg.LLMModel)
	}
	if cfg.APIKey() != "oa-key" {
		t.Fatalf("expected openai key, got %q", cfg.APIKey())
	}
}

func TestLoadParsesDurationsAndOrigins(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SESSION_TTL_MINUTES", "15")
	t.Setenv("IDENTITY_TIMEOUT_SECONDS", "bogus")
	t.Setenv("CORS_ALLOW_ORIGINS", " http://a.test , ,http://b.test")

	cfg := Load()
	if cfg.SessionTTL != 15*time.Minute {
		t.Fatalf("expected 15m ttl, got %s", cfg.SessionTTL)
	}
	if cfg.IdentityTimeout != 10*time.Second {
		t.Fatalf("expected fallback identity timeout, got %s", cfg.IdentityTimeout)
	}
	if len(cfg.CORSAllowOrigin) != 2 || cfg.CORSAllowOrigin[1] != "http://b.test" {
		t.Fatalf("unexpected origins: %v", cfg.CORSAllowOrigin)
	}
}
