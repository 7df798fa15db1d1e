package position

import "sync"

// InMemoryTracker is a concurrency-safe Tracker backed by a map, used in
// tests and as a local-development stand-in for the real in-game plugin.
type InMemoryTracker struct {
	mu        sync.RWMutex
	positions map[string]Position
}

// NewInMemoryTracker creates an empty InMemoryTracker.
func NewInMemoryTracker() *InMemoryTracker {
	return &InMemoryTracker{positions: make(map[string]Position)}
}

// Set records or updates a player's position.
func (t *InMemoryTracker) Set(p Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positions[p.PlayerID] = p
}

// Remove drops a player's position.
func (t *InMemoryTracker) Remove(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.positions, playerID)
}

// Get implements Tracker.
func (t *InMemoryTracker) Get(playerID string) (Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.positions[playerID]
	return p, ok
}

// List implements Tracker.
func (t *InMemoryTracker) List() []Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Position, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, p)
	}
	return out
}

// InMemoryPresence is a concurrency-safe Presence backed by a set.
type InMemoryPresence struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

// NewInMemoryPresence creates an empty InMemoryPresence.
func NewInMemoryPresence() *InMemoryPresence {
	return &InMemoryPresence{online: make(map[string]struct{})}
}

// SetOnline marks a player online or offline.
func (p *InMemoryPresence) SetOnline(playerID string, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if online {
		p.online[playerID] = struct{}{}
	} else {
		delete(p.online, playerID)
	}
}

// IsOnline implements Presence.
func (p *InMemoryPresence) IsOnline(playerID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[playerID]
	return ok
}

// InMemoryAuthCodes is a concurrency-safe AuthCodeStore backed by a map
// of single-use codes.
type InMemoryAuthCodes struct {
	mu    sync.Mutex
	codes map[string]string // "username:code" -> player id
}

// NewInMemoryAuthCodes creates an empty InMemoryAuthCodes.
func NewInMemoryAuthCodes() *InMemoryAuthCodes {
	return &InMemoryAuthCodes{codes: make(map[string]string)}
}

// Issue registers a one-shot login code for username, resolving to playerID.
func (a *InMemoryAuthCodes) Issue(username, code, playerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.codes[username+":"+code] = playerID
}

// Validate implements AuthCodeStore. Codes are single-use: a successful
// validation consumes the code.
func (a *InMemoryAuthCodes) Validate(username, code string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := username + ":" + code
	playerID, ok := a.codes[key]
	if ok {
		delete(a.codes, key)
	}
	return playerID, ok
}
