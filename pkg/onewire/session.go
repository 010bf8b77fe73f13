package onewire

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Holder identifies one logical flow that may own an adapter. Re-acquiring
// with the same Holder while its session is still valid succeeds at once.
//
// The zero Holder is anonymous: each call made with it runs in its own
// one-shot session.
type Holder struct {
	id uuid.UUID
}

// NewHolder returns a fresh holder token.
func NewHolder() Holder {
	return Holder{id: uuid.New()}
}

// IsZero reports whether h is the anonymous holder.
func (h Holder) IsZero() bool { return h.id == uuid.Nil }

func (h Holder) String() string {
	if h.IsZero() {
		return "anonymous"
	}
	return h.id.String()
}

// Session is exclusive ownership of an adapter's transport.
type Session struct {
	holder Holder
	arb    *Arbiter
	valid  bool
}

// Holder returns the owner of the session.
func (s *Session) Holder() Holder { return s.holder }

// Valid reports whether the session still owns the adapter.
func (s *Session) Valid() bool {
	s.arb.mu.Lock()
	defer s.arb.mu.Unlock()
	return s.valid
}

// Release ends the session. It is safe to call more than once.
func (s *Session) Release() { s.arb.Release(s.holder) }

// Arbiter grants at most one live Session at a time.
type Arbiter struct {
	mu       sync.Mutex
	owner    *Session
	released chan struct{}
}

// NewArbiter returns an idle arbiter.
func NewArbiter() *Arbiter {
	return &Arbiter{released: make(chan struct{})}
}

func (a *Arbiter) tryLocked(h Holder) (*Session, bool) {
	if a.owner != nil {
		if a.owner.holder == h && a.owner.valid {
			return a.owner, true
		}
		return nil, false
	}
	a.owner = &Session{holder: h, arb: a, valid: true}
	return a.owner, true
}

// TryAcquire makes a single attempt and fails with ErrBusy when another
// holder owns the adapter. An anonymous h gets a fresh token, so the
// returned Session is the only way to release it.
func (a *Arbiter) TryAcquire(h Holder) (*Session, error) {
	if h.IsZero() {
		h = NewHolder()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.tryLocked(h); ok {
		return s, nil
	}
	return nil, ErrBusy
}

// Acquire waits until h owns the adapter. It retries for as long as ctx
// allows; with context.Background it waits indefinitely.
func (a *Arbiter) Acquire(ctx context.Context, h Holder) (*Session, error) {
	if h.IsZero() {
		h = NewHolder()
	}
	for {
		a.mu.Lock()
		if s, ok := a.tryLocked(h); ok {
			a.mu.Unlock()
			return s, nil
		}
		wait := a.released
		a.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Holds reports whether h currently owns a valid session.
func (a *Arbiter) Holds(h Holder) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owner != nil && a.owner.holder == h && a.owner.valid
}

// Release drops h's session if it has one.
func (a *Arbiter) Release(h Holder) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.owner == nil || a.owner.holder != h {
		return
	}
	a.dropLocked()
}

// Invalidate ends whatever session is live, for instance because the port
// under it was freed.
func (a *Arbiter) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.owner != nil {
		a.dropLocked()
	}
}

func (a *Arbiter) dropLocked() {
	a.owner.valid = false
	a.owner = nil
	close(a.released)
	a.released = make(chan struct{})
}
