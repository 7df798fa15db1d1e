package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/concord-chat/voicecore/internal/audio"
	"github.com/concord-chat/voicecore/internal/observability"
)

// Config carries the subset of the service configuration the transport
// layer needs (§6.3 "webrtc", "signaling.stun_servers").
type Config struct {
	STUNServers []string
	SCTPPort    int
}

// Manager owns every client's PeerSession and is the single point through
// which the signaling layer drives WebRTC negotiation and the audio engine
// dispatches outbound frames (it implements audio.Sender).
type Manager struct {
	cfg      Config
	identity *serverIdentity
	logger   zerolog.Logger
	metrics  *observability.Metrics

	loggerFactory *zerologFactory

	mu      sync.RWMutex
	sessions map[string]*PeerSession

	onCandidate func(clientID, candidateSDP string)
	onOpen      func(clientID string)
	onMessage   func(clientID string, payload []byte)
	onClosed    func(clientID string)
}

// NewManager constructs a transport Manager. A single self-signed DTLS
// identity is generated once and shared by every peer session.
func NewManager(cfg Config, metrics *observability.Metrics, logger zerolog.Logger) (*Manager, error) {
	identity, err := newServerIdentity()
	if err != nil {
		return nil, fmt.Errorf("transport: init server identity: %w", err)
	}

	l := logger.With().Str("component", "transport_manager").Logger()
	return &Manager{
		cfg:           cfg,
		identity:      identity,
		logger:        l,
		metrics:       metrics,
		loggerFactory: &zerologFactory{base: l},
		sessions:      make(map[string]*PeerSession),
	}, nil
}

// OnCandidate, OnDataChannelOpen, OnMessage, and OnClosed register the
// callbacks the signaling layer uses to receive transport events.
func (m *Manager) OnCandidate(fn func(clientID, candidateSDP string)) { m.onCandidate = fn }
func (m *Manager) OnDataChannelOpen(fn func(clientID string))         { m.onOpen = fn }
func (m *Manager) OnMessage(fn func(clientID string, payload []byte)) { m.onMessage = fn }
func (m *Manager) OnClosed(fn func(clientID string))                 { m.onClosed = fn }

// HandleOffer creates (or replaces) clientID's peer session, parses its
// offer, and returns the SDP answer to send back immediately (§4.3 step
// 1-2, before trickle ICE begins).
func (m *Manager) HandleOffer(ctx context.Context, clientID, offerSDP string) (answerSDP string, err error) {
	m.mu.Lock()
	existing, hadExisting := m.sessions[clientID]
	delete(m.sessions, clientID)
	m.mu.Unlock()
	if hadExisting {
		// Closed outside m.mu: its OnClosed callback takes m.mu itself.
		existing.Close()
	}

	m.mu.Lock()
	session := NewPeerSession(clientID, m.identity, m.logger)
	session.OnDataChannelOpen(func(id string) {
		if m.metrics != nil {
			m.metrics.PeerSessionsActive.Inc()
		}
		if m.onOpen != nil {
			m.onOpen(id)
		}
	})
	session.OnMessage(m.onMessage)
	session.OnCandidate(m.onCandidate)
	session.OnClosed(func(id string) {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.PeerSessionsActive.Dec()
		}
		if m.onClosed != nil {
			m.onClosed(id)
		}
	})
	m.sessions[clientID] = session
	m.mu.Unlock()

	answerSDP, err = session.HandleOffer(ctx, offerSDP, m.cfg.STUNServers, m.cfg.SCTPPort, m.loggerFactory)
	if err != nil {
		m.logger.Warn().Str("client_id", clientID).Err(err).Msg("failed to handle offer")
		return "", err
	}
	return answerSDP, nil
}

// StartDataChannel forwards clientID's start_datachannel signal to its
// peer session, gating the DTLS/SCTP handshake start (§4.3).
func (m *Manager) StartDataChannel(clientID string) error {
	m.mu.RLock()
	session, ok := m.sessions[clientID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: no peer session for client %q", clientID)
	}
	return session.StartDataChannel()
}

// AddRemoteCandidate forwards one trickled ICE candidate to clientID's
// session, which buffers it while its offer is still being processed. If
// no offer has created a session for clientID yet, it returns an error and
// the candidate is not kept.
func (m *Manager) AddRemoteCandidate(clientID, candidateSDP string) error {
	m.mu.RLock()
	session, ok := m.sessions[clientID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("transport: no peer session for client %q", clientID)
	}
	return session.AddRemoteCandidate(candidateSDP)
}

// SendAudio implements audio.Sender: it dispatches one pre-encoded frame
// to clientID's data channel, translating transport failures into the
// audio engine's SendResult vocabulary.
func (m *Manager) SendAudio(clientID string, payload []byte) audio.SendResult {
	m.mu.RLock()
	session, ok := m.sessions[clientID]
	m.mu.RUnlock()
	if !ok {
		return audio.SendClosed
	}
	if session.State() != StateConnected {
		return audio.SendClosed
	}
	if err := session.Send(payload); err != nil {
		return audio.SendBackpressured
	}
	return audio.SendSuccess
}

// Close tears down clientID's peer session, if it has one.
func (m *Manager) Close(clientID string) {
	m.mu.Lock()
	session, ok := m.sessions[clientID]
	delete(m.sessions, clientID)
	m.mu.Unlock()
	if ok {
		session.Close()
	}
}

// CloseAll tears down every peer session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*PeerSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*PeerSession)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
