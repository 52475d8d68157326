package health

import (
	"context"
	"database/sql"
	"time"
)

// Status is the health payload.
type Status struct {
	OK             bool   `json:"ok"`
	LLMConfigured  bool   `json:"llmConfigured"`
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	Identity       string `json:"identity"`
	AppID          string `json:"appId"`
	Database       string `json:"database"`
	ActiveSessions int    `json:"activeSessions"`
}

// Options describes what the service reports on.
type Options struct {
	Provider      string
	Model         string
	AppID         string
	LLMConfigured bool
	Identity      func() string
	Sessions      func() int
	DB            *sql.DB
}

// Service encapsulates health-related checks.
type Service struct {
	opts Options
}

// NewService constructs a new health service.
func NewService(opts Options) *Service {
	return &Service{opts: opts}
}

// Status reports configuration and dependency state. A missing credential
// does not make the service unhealthy; cycles surface it per request.
func (s *Service) Status(ctx context.Context) Status {
	st := Status{
		OK:            true,
		LLMConfigured: s.opts.LLMConfigured,
		Provider:      s.opts.Provider,
		Model:         s.opts.Model,
		AppID:         s.opts.AppID,
		Identity:      "none",
		Database:      "memory",
	}
	if s.opts.Identity != nil {
		st.Identity = s.opts.Identity()
	}
	if s.opts.Sessions != nil {
		st.ActiveSessions = s.opts.Sessions()
	}
	if s.opts.DB != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := s.opts.DB.PingContext(pingCtx); err != nil {
			st.OK = false
			st.Database = "unreachable"
		} else {
			st.Database = "postgres"
		}
	}
	return st
}
