package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"variance-backend/internal/identity"
	"variance-backend/internal/llm"
	"variance-backend/internal/llm/gemini"
	"variance-backend/internal/llm/openai"
	"variance-backend/internal/services/health"
	"variance-backend/internal/sessions"
	"variance-backend/internal/shared/config"
	"variance-backend/internal/shared/server"
	"variance-backend/internal/shared/storage/db"
	"variance-backend/internal/shared/telemetry"
)

// App holds shared dependencies.
type App struct {
	Config     config.Config
	Router     *gin.Engine
	DB         *sql.DB
	Generator  llm.Generator
	Identities *identity.Factory
	Sessions   *sessions.Manager
	Health     *health.Service
}

// Build prepares shared dependencies and wires routes.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gen, err := NewGenerator(cfg)
	if err != nil {
		closeDB(sqlDB)
		return nil, err
	}

	app := &App{
		Config:     cfg,
		DB:         sqlDB,
		Generator:  gen,
		Identities: identity.NewFactory(cfg.IdentityConfig, cfg.AppID),
	}

	var repo sessions.Repo
	if sqlDB != nil {
		repo = &sessions.PGRepo{DB: sqlDB}
	} else {
		repo = sessions.NewMemoryRepo()
	}
	app.Sessions = sessions.NewManager(sessions.Options{
		Generator:       gen,
		Identities:      app.Identities,
		IdentityTimeout: cfg.IdentityTimeout,
		TTL:             cfg.SessionTTL,
		Repo:            repo,
		DefaultToken:    cfg.InitialAuthToken,
	})
	app.Health = health.NewService(health.Options{
		Provider:      cfg.LLMProvider,
		Model:         cfg.LLMModel,
		AppID:         cfg.AppID,
		LLMConfigured: gen != nil,
		Identity:      app.Sessions.IdentityName,
		Sessions:      app.Sessions.Len,
		DB:            sqlDB,
	})

	app.Router = server.NewRouter(server.RouterDeps{
		Config:   cfg,
		Sessions: sessions.NewHandler(app.Sessions),
		Health:   app.Health,
	})

	telemetry.Info("bootstrap.ready", map[string]any{
		"env":            cfg.Env,
		"llm_provider":   cfg.LLMProvider,
		"llm_model":      cfg.LLMModel,
		"llm_configured": gen != nil,
		"identity":       app.Identities.Name(),
		"storage":        storageName(sqlDB),
	})
	return app, nil
}

// Close releases sessions and the database pool.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	closeDB(a.DB)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			telemetry.Info("bootstrap.memory_storage", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_storage", map[string]any{"reason": "database connect failed", "error": err})
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		closeDB(sqlDB)
		if isDevLike(cfg.Env) {
			telemetry.Warn("bootstrap.memory_storage", map[string]any{"reason": "migrations failed", "error": err})
			return nil, nil
		}
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

// NewGenerator returns nil when no credential is configured; cycles then
// report the missing key to the user instead of failing startup.
func NewGenerator(cfg config.Config) (llm.Generator, error) {
	if !cfg.LLMConfigured() {
		telemetry.Warn("bootstrap.llm_unconfigured", map[string]any{"llm_provider": cfg.LLMProvider})
		return nil, nil
	}
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		client, err := openai.NewClient(openai.Options{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.LLMModel,
			BaseURL: cfg.OpenAIBaseURL,
			Timeout: cfg.LLMTimeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case config.ProviderGemini:
		client, err := gemini.NewClient(gemini.Options{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.LLMModel,
			BaseURL: cfg.GeminiBaseURL,
			Timeout: cfg.LLMTimeout,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

func storageName(sqlDB *sql.DB) string {
	if sqlDB == nil {
		return "memory"
	}
	return "postgres"
}

func closeDB(sqlDB *sql.DB) {
	if sqlDB != nil {
		_ = sqlDB.Close()
	}
}
