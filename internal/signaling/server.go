package signaling

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/concord-chat/voicecore/internal/audio"
	"github.com/concord-chat/voicecore/internal/config"
	"github.com/concord-chat/voicecore/internal/group"
	"github.com/concord-chat/voicecore/internal/identity"
	"github.com/concord-chat/voicecore/internal/observability"
	"github.com/concord-chat/voicecore/internal/position"
	"github.com/concord-chat/voicecore/internal/security"
	"github.com/concord-chat/voicecore/internal/session"
	"github.com/concord-chat/voicecore/internal/transport"
	"github.com/concord-chat/voicecore/pkg/protocol"
)

// AdminChecker resolves whether a player id holds admin privileges. The
// host game integration supplies this; the default (nil) grants no one
// admin rights, which is the safe choice absent that integration.
type AdminChecker interface {
	IsAdmin(playerID string) bool
}

// Deps collects every external collaborator the signaling server needs.
type Deps struct {
	Config     *config.Config
	Groups     *group.Manager
	Identity   *identity.Mapper
	Sessions   *session.Store
	Audio      *audio.Engine
	Transport  *transport.Manager
	Positions  position.Tracker
	Presence   position.Presence
	AuthCodes  position.AuthCodeStore
	Admins     AdminChecker
	Validator  *security.Validator
	Hasher     *security.PasswordHasher
	Metrics    *observability.Metrics
	Logger     zerolog.Logger
}

// Server is the WebSocket signaling endpoint. It owns the live client
// connections and drives every message type named in §4.1.
type Server struct {
	cfg       *config.Config
	groups    *group.Manager
	identity  *identity.Mapper
	sessions  *session.Store
	audioEng  *audio.Engine
	transport *transport.Manager
	positions position.Tracker
	presence  position.Presence
	authCodes position.AuthCodeStore
	admins    AdminChecker
	validator *security.Validator
	hasher    *security.PasswordHasher
	metrics   *observability.Metrics
	logger    zerolog.Logger
	loggerMW  *observability.LoggerMiddleware

	mu      sync.RWMutex
	clients map[string]*client // clientID -> connection, only once authenticated

	listening         bool
	lastMonitorTickAt atomic.Int64 // unix nanos, updated every RunHeartbeatMonitor tick
}

// NewServer constructs a Server. Call Handler to obtain the http.HandlerFunc
// to mount at the voice WebSocket path, and RunHeartbeatMonitor to start
// its background heartbeat monitor.
func NewServer(d Deps) *Server {
	s := &Server{
		cfg:       d.Config,
		groups:    d.Groups,
		identity:  d.Identity,
		sessions:  d.Sessions,
		audioEng:  d.Audio,
		transport: d.Transport,
		positions: d.Positions,
		presence:  d.Presence,
		authCodes: d.AuthCodes,
		admins:    d.Admins,
		validator: d.Validator,
		hasher:    d.Hasher,
		metrics:   d.Metrics,
		logger:    d.Logger.With().Str("component", "signaling_server").Logger(),
		clients:   make(map[string]*client),
	}
	s.loggerMW = observability.NewLoggerMiddleware(s.logger)
	if s.transport != nil {
		s.wireTransport()
	}
	return s
}

// SetAudioEngine installs the audio engine after construction, breaking
// the construction cycle between Server (which the engine needs as its
// sender/obfuscator) and the engine itself (which Server needs to route
// inbound data-channel frames to).
func (s *Server) SetAudioEngine(e *audio.Engine) {
	s.mu.Lock()
	s.audioEng = e
	s.mu.Unlock()
}

// IsListening reports whether the server is accepting connections, for
// the health checker (§ AMBIENT STACK, Health).
func (s *Server) IsListening() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listening
}

// Handler returns the http.HandlerFunc that upgrades a request to the
// voice WebSocket. Unlike the teacher's allow-all CheckOrigin, the origin
// allowlist is enforced here with an explicit 403, per §4.1.
func (s *Server) Handler() http.HandlerFunc {
	s.mu.Lock()
	s.listening = true
	s.mu.Unlock()

	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && !s.cfg.IsOriginAllowed(origin) {
			if s.metrics != nil {
				s.metrics.SignalingConnectionsTotal.WithLabelValues("origin_rejected").Inc()
			}
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}
		if s.metrics != nil {
			s.metrics.SignalingConnectionsTotal.WithLabelValues("accepted").Inc()
		}

		c := newClient(conn, s, s.logger)
		go c.writePump()
		go s.handleConnection(c)
	}
}

// handleConnection runs a client's read loop from upgrade until close,
// dispatching every decoded envelope and cleaning up on exit.
func (s *Server) handleConnection(c *client) {
	defer s.onDisconnect(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.sendHello(c)
	c.setState(connStateAuthenticating)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := protocol.Decode(raw)
		if err != nil {
			s.sendError(c, "", "malformed message")
			continue
		}
		if s.metrics != nil {
			s.metrics.SignalingMessagesTotal.WithLabelValues(env.Type).Inc()
		}
		s.dispatch(context.Background(), c, env)
	}
}

func (s *Server) sendHello(c *client) {
	payload := protocol.HelloPayload{
		HeartbeatIntervalMs:        int(s.cfg.Heartbeat.Interval / time.Millisecond),
		ResumeWindowMs:             int(s.cfg.Resume.Window / time.Millisecond),
		ProximityRadar:             s.cfg.Proximity.RadarEnabled,
		ProximityRadarSpeakingOnly: s.cfg.Proximity.RadarSpeakingOnly,
		GroupSpatialAudio:          s.cfg.Group.SpatialAudio,
		DefaultAudioCodec:          defaultCodecName(s.cfg),
	}
	s.send(c, protocol.TypeHello, payload)
}

func defaultCodecName(cfg *config.Config) string {
	if cfg.Opus.DataChannelEnabled {
		return string(session.CodecOpus)
	}
	return string(session.CodecPCM)
}

// send encodes and enqueues one server->client message.
func (s *Server) send(c *client, msgType string, payload interface{}) {
	raw, err := protocol.Encode(msgType, payload)
	if err != nil {
		s.logger.Error().Err(err).Str("type", msgType).Msg("failed to encode outbound message")
		return
	}
	c.enqueue(raw)
}

func (s *Server) sendError(c *client, code, message string) {
	s.send(c, protocol.TypeError, protocol.ErrorPayload{Message: message, Code: code})
}

// clientByID returns the live connection for an authenticated client id.
func (s *Server) clientByID(clientID string) (*client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	return c, ok
}

// registerClient installs c as the live connection for clientID, closing
// out any prior connection for the same id.
func (s *Server) registerClient(clientID string, c *client) {
	s.mu.Lock()
	prior, existed := s.clients[clientID]
	s.clients[clientID] = c
	s.mu.Unlock()

	if existed && prior != c {
		prior.close()
	}
	if s.metrics != nil {
		s.metrics.SignalingActiveSessions.Set(float64(len(s.clients)))
	}
}

func (s *Server) unregisterClient(clientID string) {
	s.mu.Lock()
	delete(s.clients, clientID)
	count := len(s.clients)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SignalingActiveSessions.Set(float64(count))
	}
}

// LiveClientIDs enumerates authenticated client ids; it backs both the
// audio engine's fanout and the position broadcast scheduler.
func (s *Server) LiveClientIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	return ids
}

// CodecFor implements the audio engine's codec resolver callback.
func (s *Server) CodecFor(clientID string) (session.Codec, bool) {
	sess, ok := s.sessions.Get(clientID)
	if !ok {
		return "", false
	}
	return sess.NegotiatedCodec, true
}

// Shutdown closes every live connection, e.g. during graceful shutdown.
func (s *Server) Shutdown() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.closeWithCode(websocket.CloseGoingAway, "server shutting down")
	}
}

// SendPositionUpdate implements position.Sink, delivering one
// proximity-filtered position_update frame to a live client (§4.5).
func (s *Server) SendPositionUpdate(clientID string, payload protocol.PositionUpdatePayload) {
	c, ok := s.clientByID(clientID)
	if !ok {
		return
	}
	s.send(c, protocol.TypePositionUpdate, payload)
}

// RangeForPlayer implements position.RangeResolver: a grouped player's
// effective proximity range is its group's configured range, otherwise
// the server default (§4.5).
func (s *Server) RangeForPlayer(playerID string) float64 {
	if groupID, ok := s.groups.GetPlayerGroup(playerID); ok {
		if g, ok := s.groups.GetGroup(groupID); ok {
			return g.Settings.ProximityRangeMeters
		}
	}
	return s.cfg.Proximity.DefaultDistance
}

// Obfuscate implements audio.Obfuscator and position.Obfuscator.
func (s *Server) Obfuscate(id string) (string, error) {
	return s.identity.Obfuscate(id)
}

var _ fmt.Stringer = connState(0)

func (cs connState) String() string {
	switch cs {
	case connStateConnected:
		return "connected"
	case connStateAuthenticating:
		return "authenticating"
	case connStateAuthenticated:
		return "authenticated"
	case connStatePendingGame:
		return "pending_game_session"
	case connStateGone:
		return "gone"
	default:
		return "unknown"
	}
}
