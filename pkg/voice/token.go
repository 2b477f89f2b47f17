package voice

import (
	"sync"

	"github.com/google/uuid"
)

// Token identifies one connect attempt. At most one token is active at a
// time; work tagged with any other token is stale.
type Token uuid.UUID

// String returns the token in canonical UUID form.
func (t Token) String() string {
	return uuid.UUID(t).String()
}

// IsZero reports whether t is the zero token, which is never active.
func (t Token) IsZero() bool {
	return uuid.UUID(t) == uuid.Nil
}

// Guard holds the active token. It is safe for concurrent use so capture
// goroutines can check validity without going through the session actor.
type Guard struct {
	mu     sync.RWMutex
	active Token
}

// Mint replaces the active token with a fresh one and returns it.
func (g *Guard) Mint() Token {
	t := Token(uuid.New())
	g.mu.Lock()
	g.active = t
	g.mu.Unlock()
	return t
}

// Valid reports whether t is the active token.
func (g *Guard) Valid(t Token) bool {
	if t.IsZero() {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active == t
}

// Active returns the active token, or the zero token.
func (g *Guard) Active() Token {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.active
}

// Invalidate clears the active token.
func (g *Guard) Invalidate() {
	g.mu.Lock()
	g.active = Token{}
	g.mu.Unlock()
}
