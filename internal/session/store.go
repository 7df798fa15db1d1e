package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/concord-chat/voicecore/internal/cache"
)

var (
	// ErrAlreadyLive is returned by Resume when the client id is already
	// present in the live map (a second authenticate replaces the first
	// instead of resuming).
	ErrAlreadyLive = errors.New("session: client already live")
	ErrResumeFailed = errors.New("session: resume token or session id mismatch, or record expired")
)

// resumableCacheMaxEntries bounds the in-memory resumable-session LRU;
// entries also expire by TTL well before eviction would matter in
// practice.
const resumableCacheMaxEntries = 16384

// Store holds the live client map and the resumable-session cache
// (§3, §5). One Session per client_id; resumable records survive a
// clean disconnect until resumed or expired.
type Store struct {
	mu      sync.RWMutex
	clients map[string]*Session

	resumable *cache.LRU
	window    time.Duration
}

// NewStore creates a Store whose resumable records expire after window.
func NewStore(window time.Duration) *Store {
	return &Store{
		clients:   make(map[string]*Session),
		resumable: cache.NewLRU(resumableCacheMaxEntries),
		window:    window,
	}
}

// Put installs sess as the live session for its ClientID, replacing any
// prior session for the same id (a second authenticate replaces the
// first, per §3).
func (st *Store) Put(sess *Session) (previous *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	previous = st.clients[sess.ClientID]
	st.clients[sess.ClientID] = sess
	return previous
}

// Get returns the live session for clientID, if any.
func (st *Store) Get(clientID string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.clients[clientID]
	return sess, ok
}

// Remove deletes the live session for clientID.
func (st *Store) Remove(clientID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.clients, clientID)
}

// Range calls fn for every live session. fn must not call back into the
// Store.
func (st *Store) Range(fn func(*Session)) {
	st.mu.RLock()
	snapshot := make([]*Session, 0, len(st.clients))
	for _, s := range st.clients {
		snapshot = append(snapshot, s)
	}
	st.mu.RUnlock()

	for _, s := range snapshot {
		fn(s)
	}
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.clients)
}

// NewSessionIdentity mints a fresh session id and resume token for a
// newly authenticated client.
func NewSessionIdentity() (sessionID, resumeToken string, err error) {
	resumeToken, err = generateOpaqueToken()
	if err != nil {
		return "", "", err
	}
	return uuid.NewString(), resumeToken, nil
}

// SaveResumable stores a resumable record for clientID, keyed by its
// resume token, with the store's configured window TTL.
func (st *Store) SaveResumable(rec ResumableRecord) {
	rec.ExpiresAt = time.Now().Add(st.window)
	st.resumable.Set(rec.ResumeToken, &rec, st.window)
}

// Resume looks up a resumable record by token, validates the session id
// matches and the client is not already live, rotates the resume token,
// and removes the old record. On failure it returns ErrResumeFailed (or
// ErrAlreadyLive if the client id raced back onto the live map).
func (st *Store) Resume(sessionID, resumeToken string) (ResumableRecord, error) {
	val, ok := st.resumable.Get(resumeToken)
	if !ok {
		return ResumableRecord{}, ErrResumeFailed
	}
	rec := *val.(*ResumableRecord)
	if rec.SessionID != sessionID {
		return ResumableRecord{}, ErrResumeFailed
	}

	if _, live := st.Get(rec.ClientID); live {
		return ResumableRecord{}, ErrAlreadyLive
	}

	st.resumable.Delete(resumeToken)

	newToken, err := generateOpaqueToken()
	if err != nil {
		return ResumableRecord{}, err
	}
	rec.ResumeToken = newToken
	return rec, nil
}

// PruneExpiredResumable actively drops resumable records past their
// expiry, rather than leaving them to lazy expiry on the next Resume
// attempt (§4.1 "Heartbeat monitor" also expires resumable records).
func (st *Store) PruneExpiredResumable() {
	st.resumable.PruneExpired()
}

func generateOpaqueToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
