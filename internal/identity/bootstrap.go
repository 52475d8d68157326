package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"variance-backend/internal/shared/telemetry"
)

// WarningInitFailed is shown when the provider could not sign the session in.
const WarningInitFailed = "Failed to initialize auth. You can still try processing."

// Result is the single outcome of a bootstrap.
type Result struct {
	Identity SessionIdentity `json:"identity"`
	Warning  string          `json:"warning,omitempty"`
}

// Pending is a one-shot future for a session bootstrap.
type Pending struct {
	done      chan struct{}
	result    Result
	cancel    context.CancelFunc
	closeOnce sync.Once
	closed    chan struct{}
}

// Bootstrap starts obtaining an identity. The returned Pending completes
// exactly once; it never fails, falling back to a local id with a warning.
func Bootstrap(ctx context.Context, provider Provider, timeout time.Duration) *Pending {
	p := &Pending{
		done:   make(chan struct{}),
		closed: make(chan struct{}),
		cancel: func() {},
	}
	if provider == nil || provider.Kind() == KindAbsent {
		p.complete(Result{Identity: localIdentity()})
		return p
	}

	signCtx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		signCtx, cancel = context.WithTimeout(signCtx, timeout)
		p.cancel = cancel
	} else {
		var cancel context.CancelFunc
		signCtx, cancel = context.WithCancel(signCtx)
		p.cancel = cancel
	}
	go p.run(signCtx, provider)
	return p
}

// Resolved returns a Pending that is already complete with r.
func Resolved(r Result) *Pending {
	p := &Pending{done: make(chan struct{}), closed: make(chan struct{}), cancel: func() {}}
	p.complete(r)
	return p
}

type signInOutcome struct {
	user *User
	err  error
}

func (p *Pending) run(ctx context.Context, provider Provider) {
	defer p.cancel()

	outcome := make(chan signInOutcome, 1)
	go func() {
		user, err := provider.SignIn(ctx)
		outcome <- signInOutcome{user: user, err: err}
	}()

	var res signInOutcome
	select {
	case res = <-outcome:
	case <-ctx.Done():
		res = signInOutcome{err: ctx.Err()}
	}

	select {
	case <-p.closed:
		p.complete(Result{Identity: localIdentity()})
		return
	default:
	}

	if res.err != nil {
		fields := map[string]any{"provider": string(provider.Kind()), "error": res.err}
		if errors.Is(res.err, context.DeadlineExceeded) {
			fields["reason"] = "timeout"
		}
		telemetry.Warn("identity.bootstrap_failed", fields)
		p.complete(Result{Identity: localIdentity(), Warning: WarningInitFailed})
		return
	}
	if res.user == nil || res.user.UID == "" {
		p.complete(Result{Identity: localIdentity()})
		return
	}
	p.complete(Result{Identity: SessionIdentity{ID: res.user.UID, Source: SourceProvider}})
}

func (p *Pending) complete(r Result) {
	p.result = r
	close(p.done)
}

// Done is closed once the identity is ready.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Ready reports whether the bootstrap has completed.
func (p *Pending) Ready() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome and whether it is available yet.
func (p *Pending) Result() (Result, bool) {
	if !p.Ready() {
		return Result{}, false
	}
	return p.result, true
}

// Wait blocks until the bootstrap completes or ctx ends.
func (p *Pending) Wait(ctx context.Context) (Result, error) {
	select {
	case <-p.done:
		return p.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Close releases an in-flight sign-in. It is safe to call more than once.
func (p *Pending) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.cancel()
	})
}
