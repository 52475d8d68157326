package identity

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings is the identity configuration blob. JSON is accepted as YAML.
type Settings struct {
	Provider    string `yaml:"provider"`
	Secret      string `yaml:"secret"`
	Audience    string `yaml:"audience"`
	UserInfoURL string `yaml:"userinfo_url"`
}

const (
	ProviderAnonymous = "anonymous"
	ProviderJWT       = "jwt"
	ProviderGoogle    = "google"
)

// ParseSettings decodes blob. A blank blob reports ok=false.
func ParseSettings(blob string) (Settings, bool, error) {
	if strings.TrimSpace(blob) == "" {
		return Settings{}, false, nil
	}
	var s Settings
	if err := yaml.Unmarshal([]byte(blob), &s); err != nil {
		return Settings{}, true, fmt.Errorf("parse identity config: %w", err)
	}
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
	if s.Provider == "" {
		s.Provider = ProviderAnonymous
	}
	switch s.Provider {
	case ProviderAnonymous, ProviderJWT, ProviderGoogle:
	default:
		return Settings{}, true, fmt.Errorf("unknown identity provider %q", s.Provider)
	}
	if s.Provider == ProviderJWT && strings.TrimSpace(s.Secret) == "" {
		return Settings{}, true, fmt.Errorf("%w: jwt provider requires secret", ErrMissingSecret)
	}
	return s, true, nil
}

// Factory builds per-session providers from the process configuration.
// Initialization errors are kept and surface as bootstrap warnings.
type Factory struct {
	configured bool
	settings   Settings
	verifier   TokenVerifier
	initErr    error
}

// NewFactory parses blob; appID is the default JWT audience.
func NewFactory(blob, appID string) *Factory {
	settings, ok, err := ParseSettings(blob)
	f := &Factory{configured: ok, settings: settings, initErr: err}
	if !ok || err != nil {
		return f
	}
	switch settings.Provider {
	case ProviderJWT:
		audience := settings.Audience
		if audience == "" {
			audience = appID
		}
		f.verifier = JWTVerifier{Secret: []byte(settings.Secret), Audience: audience}
	case ProviderGoogle:
		f.verifier = GoogleVerifier{UserInfoURL: settings.UserInfoURL}
	}
	return f
}

// Name describes the configured backend for health output.
func (f *Factory) Name() string {
	switch {
	case !f.configured:
		return "none"
	case f.initErr != nil:
		return "misconfigured"
	default:
		return f.settings.Provider
	}
}

// Settings returns the parsed configuration.
func (f *Factory) Settings() Settings { return f.settings }

// Provider picks the variant for one session. A non-empty token selects the
// token-authenticated variant.
func (f *Factory) Provider(token string) Provider {
	token = strings.TrimSpace(token)
	if !f.configured {
		return Absent()
	}
	kind := KindAnonymous
	if token != "" {
		kind = KindToken
	}
	if f.initErr != nil {
		return Failed(kind, f.initErr)
	}
	if token == "" {
		return NewAnonymous()
	}
	if f.verifier == nil {
		return Failed(KindToken, ErrNoVerifier)
	}
	return NewTokenAuthenticated(token, f.verifier)
}
