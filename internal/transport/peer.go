package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pion/dtls/v3"
	"github.com/pion/ice/v4"
	"github.com/pion/sctp"
	"github.com/rs/zerolog"
)

// State is a peer session's position in its connection lifecycle
// (§4.3 "Peer session state machine").
type State int

const (
	StateNew State = iota
	StateGathering
	StateChecking
	StateConnected
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateGathering:
		return "gathering"
	case StateChecking:
		return "checking"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// sendCooldown is the minimum spacing between consecutive sends to a single
// recipient once it has signaled backpressure, and the rate limit on the
// warning log that accompanies it (§4.3 "backpressure cooldown").
const (
	sendCooldown       = 250 * time.Millisecond
	backpressureLogGap = 5 * time.Second
)

// PeerSession owns one client's ICE agent, DTLS connection, SCTP
// association, and negotiated data channels. Exactly one goroutine
// (started by Manager) drives its lifecycle; public methods besides that
// goroutine's internals are safe to call concurrently.
type PeerSession struct {
	clientID string
	identity *serverIdentity
	logger   zerolog.Logger

	mu    sync.Mutex
	state State
	ice   *iceSide

	dtlsConn *dtls.Conn
	assoc    *sctp.Association
	channel  *sctp.Stream

	onOpen      func(clientID string)
	onMessage   func(clientID string, payload []byte)
	onCandidate func(clientID string, candidateSDP string)
	onClosed    func(clientID string)

	pendingRemote []string // remote candidates buffered before the ICE agent exists

	handshakeCtx    context.Context
	remoteUfrag     string
	remotePwd       string
	handshakeStarted bool

	cooldownUntil   time.Time
	lastBackpressLog time.Time
}

// NewPeerSession allocates a session for clientID in StateNew. Call
// HandleOffer once an offer has arrived to start ICE, and StartDataChannel
// to begin the DTLS/SCTP handshake.
func NewPeerSession(clientID string, identity *serverIdentity, logger zerolog.Logger) *PeerSession {
	return &PeerSession{
		clientID: clientID,
		identity: identity,
		state:    StateNew,
		logger:   logger.With().Str("component", "peer_session").Str("client_id", clientID).Logger(),
	}
}

func (p *PeerSession) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *PeerSession) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// OnDataChannelOpen, OnMessage, OnCandidate, and OnClosed register the
// callbacks Manager uses to bridge this session into signaling and audio.
func (p *PeerSession) OnDataChannelOpen(fn func(clientID string)) { p.onOpen = fn }
func (p *PeerSession) OnMessage(fn func(clientID string, payload []byte)) { p.onMessage = fn }
func (p *PeerSession) OnCandidate(fn func(clientID string, candidateSDP string)) { p.onCandidate = fn }
func (p *PeerSession) OnClosed(fn func(clientID string)) { p.onClosed = fn }

// HandleOffer runs the negotiation setup: it parses the offer, starts ICE
// gathering, and renders the SDP answer. The DTLS/SCTP handshake itself
// does not start here — it waits for the client's start_datachannel
// signal (§4.3 "Start DataChannel"), handled by StartDataChannel.
func (p *PeerSession) HandleOffer(ctx context.Context, offerSDP string, stunServers []string, sctpPort int, loggerFactory *zerologFactory) (answerSDP string, err error) {
	info, err := parseOffer(offerSDP)
	if err != nil {
		return "", err
	}

	side, err := newICESide(stunServers, loggerFactory)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	p.ice = side
	for _, c := range p.pendingRemote {
		_ = side.addRemoteCandidate(c)
	}
	p.pendingRemote = nil
	p.mu.Unlock()
	p.setState(StateGathering)

	ufrag, pwd, err := side.localCredentials()
	if err != nil {
		return "", err
	}

	answerSDP = buildAnswer(answerParams{
		SessionID:   uint64(rand.Int63()),
		Media:       info.Media,
		ICEUfrag:    ufrag,
		ICEPwd:      pwd,
		Fingerprint: p.identity.fingerprint,
		SCTPPort:    sctpPort,
	})

	if err := side.gatherCandidates(func(c ice.Candidate) {
		if p.onCandidate != nil {
			p.onCandidate(p.clientID, c.Marshal())
		}
	}); err != nil {
		return "", err
	}

	_ = side.onConnectionStateChange(func(cs ice.ConnectionState) {
		switch cs {
		case ice.ConnectionStateFailed, ice.ConnectionStateDisconnected:
			p.setState(StateFailed)
		}
	})

	// The remote ICE credentials travel with the offer (trickled candidates
	// arrive separately via AddRemoteCandidate), but the handshake itself
	// waits for start_datachannel before it begins.
	p.mu.Lock()
	p.handshakeCtx = ctx
	p.remoteUfrag = info.RemoteUfrag
	p.remotePwd = info.RemotePwd
	p.mu.Unlock()

	return answerSDP, nil
}

// StartDataChannel implements §4.3 "Start DataChannel": on the client's
// start_datachannel message, kick off the DTLS/SCTP handshake in the
// background. The ICE connectivity checks inside CompleteHandshake block
// until a pair is selected, so the handshake only actually proceeds once
// ICE has one, matching "if ICE has a selected pair on the datachannel
// component, initiate the DTLS handshake". Repeated calls are ignored.
func (p *PeerSession) StartDataChannel() error {
	p.mu.Lock()
	if p.handshakeStarted {
		p.mu.Unlock()
		return nil
	}
	if p.ice == nil {
		p.mu.Unlock()
		return fmt.Errorf("transport: start_datachannel received before offer was handled")
	}
	p.handshakeStarted = true
	ctx, ufrag, pwd := p.handshakeCtx, p.remoteUfrag, p.remotePwd
	p.mu.Unlock()

	go func() {
		if err := p.CompleteHandshake(ctx, ufrag, pwd); err != nil {
			p.logger.Warn().Err(err).Msg("peer handshake failed")
			p.Close()
		}
	}()
	return nil
}

// AddRemoteCandidate buffers or forwards one trickled ICE candidate
// (§4.3 "ice_candidate" message, arriving before or after the offer).
func (p *PeerSession) AddRemoteCandidate(candidateSDP string) error {
	p.mu.Lock()
	side := p.ice
	if side == nil {
		p.pendingRemote = append(p.pendingRemote, candidateSDP)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return side.addRemoteCandidate(candidateSDP)
}

// CompleteHandshake runs ICE connectivity checks, then layers DTLS and
// SCTP on top, and finally waits for the client to open its data channel
// via DCEP. It blocks until the channel is open, ctx is cancelled, or a
// step fails, so callers should run it in its own goroutine.
func (p *PeerSession) CompleteHandshake(ctx context.Context, remoteUfrag, remotePwd string) error {
	p.mu.Lock()
	side := p.ice
	p.mu.Unlock()
	if side == nil {
		return fmt.Errorf("transport: handshake started before offer was handled")
	}

	p.setState(StateChecking)
	conn, err := side.accept(ctx, remoteUfrag, remotePwd)
	if err != nil {
		p.setState(StateFailed)
		return fmt.Errorf("transport: ice connectivity checks failed: %w", err)
	}

	dtlsConn, err := dtls.Server(conn, p.identity.dtlsConfig())
	if err != nil {
		p.setState(StateFailed)
		return fmt.Errorf("transport: dtls handshake failed: %w", err)
	}

	assocConfig := sctp.Config{
		NetConn:       dtlsConn,
		LoggerFactory: nil,
	}
	assoc, err := sctp.Server(assocConfig)
	if err != nil {
		p.setState(StateFailed)
		return fmt.Errorf("transport: sctp association failed: %w", err)
	}

	stream, err := assoc.AcceptStream()
	if err != nil {
		p.setState(StateFailed)
		return fmt.Errorf("transport: sctp accept stream failed: %w", err)
	}
	stream.SetDefaultPayloadType(sctp.PayloadTypeWebRTCBinary)

	p.mu.Lock()
	p.dtlsConn = dtlsConn
	p.assoc = assoc
	p.channel = stream
	p.mu.Unlock()

	if err := p.negotiateDataChannel(stream); err != nil {
		p.setState(StateFailed)
		return err
	}

	p.setState(StateConnected)
	if p.onOpen != nil {
		p.onOpen(p.clientID)
	}

	go p.readLoop(stream)
	return nil
}

// negotiateDataChannel completes the passive side of DCEP: read the
// client's DATA_CHANNEL_OPEN and reply with an ACK (§4.3 "DCEP").
func (p *PeerSession) negotiateDataChannel(stream *sctp.Stream) error {
	buf := make([]byte, 4096)
	n, ppi, err := stream.ReadSCTP(buf)
	if err != nil {
		return fmt.Errorf("transport: read dcep open: %w", err)
	}
	if ppi != sctp.PayloadTypeWebRTCDCEP {
		return fmt.Errorf("transport: expected DCEP control ppid, got %d", ppi)
	}
	if _, err := parseDCEPOpen(buf[:n]); err != nil {
		return fmt.Errorf("transport: parse dcep open: %w", err)
	}

	stream.SetDefaultPayloadType(sctp.PayloadTypeWebRTCDCEP)
	if _, err := stream.WriteSCTP(buildDCEPAck(), sctp.PayloadTypeWebRTCDCEP); err != nil {
		return fmt.Errorf("transport: write dcep ack: %w", err)
	}
	stream.SetDefaultPayloadType(sctp.PayloadTypeWebRTCBinary)
	return nil
}

// readLoop forwards inbound binary data-channel messages to onMessage
// until the stream closes.
func (p *PeerSession) readLoop(stream *sctp.Stream) {
	buf := make([]byte, 64*1024)
	for {
		n, ppi, err := stream.ReadSCTP(buf)
		if err != nil {
			p.Close()
			return
		}
		if ppi != sctp.PayloadTypeWebRTCBinary {
			continue
		}
		if p.onMessage != nil {
			payload := make([]byte, n)
			copy(payload, buf[:n])
			p.onMessage(p.clientID, payload)
		}
	}
}

// Send writes one binary data-channel message, enforcing the per-recipient
// backpressure cooldown (§4.3): once a send has failed, further sends are
// skipped (and logged at most once per backpressureLogGap) until the
// cooldown elapses.
func (p *PeerSession) Send(payload []byte) error {
	p.mu.Lock()
	stream := p.channel
	inCooldown := time.Now().Before(p.cooldownUntil)
	p.mu.Unlock()

	if stream == nil {
		return fmt.Errorf("transport: data channel not open")
	}
	if inCooldown {
		return fmt.Errorf("transport: recipient in backpressure cooldown")
	}

	_, err := stream.WriteSCTP(payload, sctp.PayloadTypeWebRTCBinary)
	if err != nil {
		p.mu.Lock()
		p.cooldownUntil = time.Now().Add(sendCooldown)
		shouldLog := time.Since(p.lastBackpressLog) > backpressureLogGap
		if shouldLog {
			p.lastBackpressLog = time.Now()
		}
		p.mu.Unlock()
		if shouldLog {
			p.logger.Warn().Err(err).Msg("data channel write failed, entering backpressure cooldown")
		}
		return err
	}
	return nil
}

// Close tears down the SCTP association, DTLS connection, and ICE agent,
// in that order, and invokes onClosed at most once.
func (p *PeerSession) Close() {
	p.mu.Lock()
	if p.state == StateClosed {
		p.mu.Unlock()
		return
	}
	p.state = StateClosed
	assoc, dtlsConn, side := p.assoc, p.dtlsConn, p.ice
	p.mu.Unlock()

	if assoc != nil {
		_ = assoc.Close()
	}
	if dtlsConn != nil {
		_ = dtlsConn.Close()
	}
	if side != nil {
		_ = side.close()
	}
	if p.onClosed != nil {
		p.onClosed(p.clientID)
	}
}
