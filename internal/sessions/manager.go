package sessions

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"variance-backend/internal/commentary"
	"variance-backend/internal/identity"
	"variance-backend/internal/llm"
	"variance-backend/internal/shared/metrics"
	"variance-backend/internal/shared/telemetry"
	"variance-backend/internal/shared/util"
)

const defaultTTL = 60 * time.Minute

// Options configures a Manager.
type Options struct {
	Generator       llm.Generator
	Identities      *identity.Factory
	IdentityTimeout time.Duration
	TTL             time.Duration
	Repo            Repo
	Now             func() time.Time
	// DefaultToken is used when a create request carries no bearer token.
	DefaultToken string
}

// Session is one live form.
type Session struct {
	ID         string
	CreatedAt  time.Time
	Controller *commentary.Controller
}

type entry struct {
	session  *Session
	lastSeen time.Time
}

// Manager owns the live sessions and their persisted snapshots.
type Manager struct {
	gen             llm.Generator
	identities      *identity.Factory
	identityTimeout time.Duration
	ttl             time.Duration
	repo            Repo
	now             func() time.Time
	defaultToken    string

	mu    sync.Mutex
	live  map[string]*entry
	group singleflight.Group
}

// NewManager constructs a Manager. A nil Repo keeps sessions in memory only.
func NewManager(opts Options) *Manager {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Repo == nil {
		opts.Repo = NewMemoryRepo()
	}
	if opts.Identities == nil {
		opts.Identities = identity.NewFactory("", "")
	}
	return &Manager{
		gen:             opts.Generator,
		identities:      opts.Identities,
		identityTimeout: opts.IdentityTimeout,
		ttl:             opts.TTL,
		repo:            opts.Repo,
		now:             opts.Now,
		defaultToken:    strings.TrimSpace(opts.DefaultToken),
		live:            make(map[string]*entry),
	}
}

// Create starts a session and its identity bootstrap. token may be empty.
func (m *Manager) Create(ctx context.Context, token string) (*Session, error) {
	id := uuid.NewString()
	if strings.TrimSpace(token) == "" {
		token = m.defaultToken
	}
	provider := m.identities.Provider(token)
	pending := identity.Bootstrap(ctx, provider, m.identityTimeout)

	sess := &Session{
		ID:        id,
		CreatedAt: m.now().UTC(),
		Controller: commentary.New(commentary.Options{
			SessionID: id,
			Generator: m.gen,
			Identity:  pending,
		}),
	}

	m.mu.Lock()
	m.live[id] = &entry{session: sess, lastSeen: m.now()}
	active := len(m.live)
	m.mu.Unlock()

	metrics.IncSessionCreated()
	metrics.SetActiveSessions(active)
	telemetry.Info("session.created", map[string]any{
		"session_id":    id,
		"identity_kind": string(provider.Kind()),
	})

	if err := m.Save(ctx, sess); err != nil {
		m.drop(id)
		return nil, err
	}
	return sess, nil
}

// Get returns a live session, rehydrating it from the repo when needed.
// Concurrent rehydrations of the same id are collapsed into one.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidInput
	}
	if sess, ok := m.touch(id); ok {
		return sess, nil
	}

	v, err, _ := m.group.Do(id, func() (any, error) {
		if sess, ok := m.touch(id); ok {
			return sess, nil
		}
		rec, err := m.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		sess := m.restore(rec)

		m.mu.Lock()
		m.live[id] = &entry{session: sess, lastSeen: m.now()}
		active := len(m.live)
		m.mu.Unlock()
		metrics.SetActiveSessions(active)

		telemetry.Info("session.rehydrated", map[string]any{
			"session_id": id,
			"identity":   util.Fingerprint(rec.IdentityID),
		})
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (m *Manager) restore(rec Record) *Session {
	var pending *identity.Pending
	if rec.IdentityID != "" {
		pending = identity.Resolved(identity.Result{Identity: identity.SessionIdentity{
			ID:     rec.IdentityID,
			Source: identity.Source(rec.IdentitySource),
		}})
	} else {
		pending = identity.Bootstrap(context.Background(), identity.Absent(), 0)
	}
	ctrl := commentary.New(commentary.Options{
		SessionID: rec.ID,
		Generator: m.gen,
		Identity:  pending,
	})
	ctrl.Restore(rec.Snapshot)
	return &Session{ID: rec.ID, CreatedAt: rec.CreatedAt, Controller: ctrl}
}

// Save persists the session snapshot and extends its expiry.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	now := m.now().UTC()
	rec := Record{
		ID:        sess.ID,
		Snapshot:  sess.Controller.Snapshot(),
		CreatedAt: sess.CreatedAt,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if state := sess.Controller.State(); state.Identity != nil {
		rec.IdentityID = state.Identity.ID
		rec.IdentitySource = string(state.Identity.Source)
	}
	// The request context may already be cancelled after a long cycle.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.repo.Save(saveCtx, rec); err != nil {
		metrics.IncSessionSaveFailed()
		telemetry.Error("session.save_failed", map[string]any{"session_id": sess.ID, "error": err})
		return err
	}
	return nil
}

// Delete tears a session down: the bootstrap is released and the snapshot removed.
func (m *Manager) Delete(ctx context.Context, id string) error {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	m.drop(sess.ID)
	if err := m.repo.Delete(ctx, sess.ID); err != nil {
		return err
	}
	telemetry.Info("session.deleted", map[string]any{"session_id": sess.ID})
	return nil
}

// Sweep evicts sessions idle for longer than the TTL and purges expired snapshots.
func (m *Manager) Sweep(ctx context.Context) int {
	now := m.now()
	var expired []*Session

	m.mu.Lock()
	for id, e := range m.live {
		if now.Sub(e.lastSeen) > m.ttl {
			expired = append(expired, e.session)
			delete(m.live, id)
		}
	}
	active := len(m.live)
	m.mu.Unlock()

	for _, sess := range expired {
		sess.Controller.Close()
	}
	purged, err := m.repo.DeleteExpired(ctx, now.UTC())
	if err != nil && !errors.Is(err, context.Canceled) {
		telemetry.Error("session.sweep_failed", map[string]any{"error": err})
	}

	metrics.SetActiveSessions(active)
	metrics.IncSessionsExpired(len(expired))
	if len(expired) > 0 || purged > 0 {
		telemetry.Info("session.sweep", map[string]any{"evicted": len(expired), "purged": purged})
	}
	return len(expired)
}

// Run sweeps on every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Close releases every live session.
func (m *Manager) Close() {
	m.mu.Lock()
	live := m.live
	m.live = make(map[string]*entry)
	m.mu.Unlock()
	for _, e := range live {
		e.session.Controller.Close()
	}
	metrics.SetActiveSessions(0)
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// IdentityName describes the configured identity backend.
func (m *Manager) IdentityName() string {
	return m.identities.Name()
}

// LLMConfigured reports whether cycles can reach a generator.
func (m *Manager) LLMConfigured() bool {
	return m.gen != nil
}

func (m *Manager) touch(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.live[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = m.now()
	return e.session, true
}

func (m *Manager) drop(id string) {
	m.mu.Lock()
	e, ok := m.live[id]
	delete(m.live, id)
	active := len(m.live)
	m.mu.Unlock()
	if ok {
		e.session.Controller.Close()
	}
	metrics.SetActiveSessions(active)
}
