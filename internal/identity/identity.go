package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Source records where a SessionIdentity id came from.
type Source string

const (
	SourceProvider Source = "provider"
	SourceLocal    Source = "local"
)

// SessionIdentity is the opaque id attached to one form session.
type SessionIdentity struct {
	ID     string `json:"id"`
	Source Source `json:"source"`
}

// Kind names the provider variant.
type Kind string

const (
	KindAbsent    Kind = "absent"
	KindAnonymous Kind = "anonymous"
	KindToken     Kind = "token"
)

// User is the signed-in principal returned by a provider.
type User struct {
	UID string
}

// Provider is the identity capability injected into session bootstrap.
// SignIn may return a nil user without error, in which case a local id is used.
type Provider interface {
	Kind() Kind
	SignIn(ctx context.Context) (*User, error)
}

// TokenVerifier resolves a custom token to a user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrNoVerifier    = errors.New("no token verifier configured")
	ErrMissingSecret = errors.New("identity secret not configured")
)

type absentProvider struct{}

// Absent is the provider used when no identity backend is configured.
func Absent() Provider { return absentProvider{} }

func (absentProvider) Kind() Kind { return KindAbsent }

func (absentProvider) SignIn(context.Context) (*User, error) { return nil, nil }

type anonymousProvider struct{}

// NewAnonymous signs every session in as a fresh anonymous user.
func NewAnonymous() Provider { return anonymousProvider{} }

func (anonymousProvider) Kind() Kind { return KindAnonymous }

func (anonymousProvider) SignIn(ctx context.Context) (*User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &User{UID: "anon:" + uuid.NewString()}, nil
}

type tokenProvider struct {
	token    string
	verifier TokenVerifier
}

// NewTokenAuthenticated signs in with a custom token checked by verifier.
func NewTokenAuthenticated(token string, verifier TokenVerifier) Provider {
	return &tokenProvider{token: token, verifier: verifier}
}

func (p *tokenProvider) Kind() Kind { return KindToken }

func (p *tokenProvider) SignIn(ctx context.Context) (*User, error) {
	if p.verifier == nil {
		return nil, ErrNoVerifier
	}
	uid, err := p.verifier.Verify(ctx, p.token)
	if err != nil {
		return nil, err
	}
	if uid == "" {
		return nil, nil
	}
	return &User{UID: uid}, nil
}

type failedProvider struct {
	kind Kind
	err  error
}

// Failed is a provider whose initialization failed; every sign-in returns err.
func Failed(kind Kind, err error) Provider {
	return failedProvider{kind: kind, err: err}
}

func (p failedProvider) Kind() Kind { return p.kind }

func (p failedProvider) SignIn(context.Context) (*User, error) { return nil, p.err }

func localIdentity() SessionIdentity {
	return SessionIdentity{ID: uuid.NewString(), Source: SourceLocal}
}
