package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	defaultGeminiModel = "gemini-2.5-flash-preview-05-20"
	defaultOpenAIModel = "gpt-4o-mini"
)

// Config holds application configuration. It is read once at startup and never reloaded.
type Config struct {
	Port             string
	CORSAllowOrigin  []string
	Env              string
	LLMProvider      string
	LLMModel         string
	GeminiAPIKey     string
	GeminiBaseURL    string
	LLMTimeout       time.Duration
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	IdentityConfig   string
	InitialAuthToken string
	AppID            string
	IdentityTimeout  time.Duration
	DatabaseURL      string
	SessionTTL       time.Duration
	LLMRatePerMinute int

	// LLMClientRatePerMinute caps LLM calls per client IP across all its sessions.
	LLMClientRatePerMinute int
	SessionCreatePerMinute int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	provider := normalizeProvider(getEnv("LLM_PROVIDER", ProviderGemini))

	cfg := Config{
		Port:             getEnv("PORT", "8080"),
		CORSAllowOrigin:  splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),
		Env:              env,
		LLMProvider:      provider,
		LLMModel:         getEnv("LLM_MODEL", defaultModel(provider)),
		GeminiAPIKey:     strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", ""),
		LLMTimeout:       getSeconds("GEMINI_TIMEOUT_SECONDS", 120*time.Second),
		OpenAIAPIKey:     strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", ""),
		IdentityConfig:   os.Getenv("IDENTITY_CONFIG"),
		InitialAuthToken: strings.TrimSpace(os.Getenv("INITIAL_AUTH_TOKEN")),
		AppID:            getEnv("APP_ID", "default-app-id"),
		IdentityTimeout:  getSeconds("IDENTITY_TIMEOUT_SECONDS", 10*time.Second),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SessionTTL:       getMinutes("SESSION_TTL_MINUTES", 60*time.Minute),
		LLMRatePerMinute: getInt("RATE_LIMIT_LLM_PER_MINUTE", 20),

		LLMClientRatePerMinute: getInt("RATE_LIMIT_LLM_CLIENT_PER_MINUTE", 60),
		SessionCreatePerMinute: getInt("RATE_LIMIT_SESSIONS_PER_MINUTE", 30),
	}

	if !cfg.LLMConfigured() {
		log.Printf("no API key configured for LLM provider %q; extraction and queries will fail until one is set", provider)
	}
	return cfg
}

// APIKey returns the credential for the selected provider.
func (c Config) APIKey() string {
	if c.LLMProvider == ProviderOpenAI {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// LLMConfigured reports whether a credential is present for the selected provider.
func (c Config) LLMConfigured() bool {
	return strings.TrimSpace(c.APIKey()) != ""
}

func getEnv(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func getInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 0 {
		log.Printf("config %s invalid int %q, using %d", key, raw, def)
		return def
	}
	return parsed
}

func getSeconds(key string, def time.Duration) time.Duration {
	n := getInt(key, -1)
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

func getMinutes(key string, def time.Duration) time.Duration {
	n := getInt(key, -1)
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Minute
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	default:
		return "dev"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case ProviderOpenAI:
		return ProviderOpenAI
	default:
		return ProviderGemini
	}
}

func defaultModel(provider string) string {
	if provider == ProviderOpenAI {
		return defaultOpenAIModel
	}
	return defaultGeminiModel
}
