package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"variance-backend/internal/identity"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestManagerRehydratesFromRepo(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	first := NewManager(Options{Repo: repo})
	sess, err := first.Create(ctx, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := sess.Controller.SetTranscript("Revenue up vs budget."); err != nil {
		t.Fatalf("set transcript: %v", err)
	}
	if err := first.Save(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}
	first.Close()

	second := NewManager(Options{Repo: repo})
	defer second.Close()
	restored, err := second.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := restored.Controller.Snapshot().Transcript; got != "Revenue up vs budget." {
		t.Fatalf("unexpected transcript %q", got)
	}
	state := restored.Controller.State()
	if !state.IdentityReady || state.Identity == nil {
		t.Fatalf("expected restored identity to be ready, got %+v", state)
	}
	if state.Identity.ID != sess.Controller.State().Identity.ID {
		t.Fatalf("expected identity %q to survive, got %q", sess.Controller.State().Identity.ID, state.Identity.ID)
	}
}

func TestManagerConcurrentGetSharesSession(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	seed := NewManager(Options{Repo: repo})
	sess, err := seed.Create(ctx, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	seed.Close()

	m := NewManager(Options{Repo: repo})
	defer m.Close()

	var wg sync.WaitGroup
	results := make([]*Session, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := m.Get(ctx, sess.ID)
			if err != nil {
				t.Errorf("get: %v", err)
				return
			}
			results[i] = got
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		if got != results[0] {
			t.Fatalf("result %d is a different session instance", i)
		}
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", m.Len())
	}
}

func TestManagerGetRejectsBlankID(t *testing.T) {
	m := NewManager(Options{})
	defer m.Close()
	if _, err := m.Get(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestManagerSweepEvictsIdleSessions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)}
	repo := NewMemoryRepo()
	m := NewManager(Options{Repo: repo, TTL: time.Minute, Now: clock.Now})
	defer m.Close()
	ctx := context.Background()

	idle, err := m.Create(ctx, "")
	if err != nil {
		t.Fatalf("create idle: %v", err)
	}
	clock.Advance(45 * time.Second)
	active, err := m.Create(ctx, "")
	if err != nil {
		t.Fatalf("create active: %v", err)
	}
	clock.Advance(30 * time.Second)

	if evicted := m.Sweep(ctx); evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", m.Len())
	}
	if _, ok := m.touch(active.ID); !ok {
		t.Fatalf("expected active session to remain live")
	}
	if _, ok := m.touch(idle.ID); ok {
		t.Fatalf("expected idle session to be evicted")
	}
}

func TestManagerCreateWithFailingProviderWarns(t *testing.T) {
	m := NewManager(Options{
		Identities:      identity.NewFactory(`{"provider":"jwt","secret":"s3cret"}`, "variance-app"),
		IdentityTimeout: time.Second,
	})
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sess, err := m.Create(ctx, "not-a-token")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !sess.Controller.State().IdentityReady {
		if time.Now().After(deadline) {
			t.Fatalf("identity bootstrap did not finish")
		}
		time.Sleep(5 * time.Millisecond)
	}
	state := sess.Controller.State()
	if state.Warning != identity.WarningInitFailed {
		t.Fatalf("expected init warning, got %q", state.Warning)
	}
	if state.Identity == nil || state.Identity.Source != identity.SourceLocal {
		t.Fatalf("expected local fallback identity, got %+v", state.Identity)
	}
}

func TestMemoryRepoDeleteExpired(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.Save(ctx, Record{ID: "old", ExpiresAt: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("save old: %v", err)
	}
	if err := repo.Save(ctx, Record{ID: "fresh", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("save fresh: %v", err)
	}

	if _, err := repo.Get(ctx, "old"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired record to be hidden, got %v", err)
	}
	removed, err := repo.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := repo.Get(ctx, "fresh"); err != nil {
		t.Fatalf("expected fresh record, got %v", err)
	}
}
