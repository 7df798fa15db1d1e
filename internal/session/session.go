// Package session tracks live client sessions and short-lived resumable
// session records across a clean disconnect/reconnect window.
package session

import (
	"sync"
	"time"
)

// Codec is a negotiated audio codec.
type Codec string

const (
	CodecPCM  Codec = "PCM"
	CodecOpus Codec = "OPUS"
)

// Session is one authenticated client's live state (§3 "Client session").
type Session struct {
	mu sync.Mutex

	ClientID          string // == player_id
	Username          string
	SessionID         string
	ResumeToken       string
	NegotiatedCodec   Codec
	LastHeartbeatAt   time.Time
	IsMuted           bool
	IsSpeaking        bool
	Volume            float64
	PendingGameSession bool

	// Send is the transport-facing outbound channel for signaling frames;
	// nil until the transport/signaling layer wires it up.
	Send chan []byte
}

// Touch stamps LastHeartbeatAt with the current time.
func (s *Session) Touch() {
	s.mu.Lock()
	s.LastHeartbeatAt = time.Now()
	s.mu.Unlock()
}

// HeartbeatAge returns how long it has been since the last heartbeat.
func (s *Session) HeartbeatAge() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.LastHeartbeatAt)
}

// SetSpeaking updates the speaking flag and returns whether it changed.
func (s *Session) SetSpeaking(speaking bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IsSpeaking == speaking {
		return false
	}
	s.IsSpeaking = speaking
	return true
}

// SetMuted updates the muted flag and returns whether it changed.
func (s *Session) SetMuted(muted bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.IsMuted == muted {
		return false
	}
	s.IsMuted = muted
	return true
}

// SetPendingGameSession updates the pending-game-session gate flag.
func (s *Session) SetPendingGameSession(pending bool) {
	s.mu.Lock()
	s.PendingGameSession = pending
	s.mu.Unlock()
}

// IsPending reports whether the session is still gated on in-game presence.
func (s *Session) IsPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PendingGameSession
}

// ResumableRecord is a short-lived, in-memory record kept across a clean
// disconnect so the client can resume within RESUME_WINDOW_MS.
type ResumableRecord struct {
	ClientID        string
	Username        string
	SessionID       string
	ResumeToken     string
	LastGroupID     string
	NegotiatedCodec Codec
	ExpiresAt       time.Time
}
