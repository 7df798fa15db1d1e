package signaling

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/concord-chat/voicecore/internal/observability"
	"github.com/concord-chat/voicecore/internal/session"
	"github.com/concord-chat/voicecore/pkg/protocol"
)

var (
	errInvalidAuthCode = errors.New("invalid username or auth code")
	errNoCommonCodec   = errors.New("no codec common to client and server")
)

// negotiateCodec implements §4.1.1: OPUS is picked only when the server
// has it enabled and the client advertises support for it; otherwise PCM,
// which fails the whole authentication if the server requires OPUS.
func negotiateCodec(s *Server, offered []string) (session.Codec, bool) {
	opusEnabled := s.cfg.Opus.DataChannelEnabled
	clientHasOpus := false
	for _, c := range offered {
		if c == string(session.CodecOpus) {
			clientHasOpus = true
			break
		}
	}
	if opusEnabled {
		if clientHasOpus {
			return session.CodecOpus, true
		}
		return "", false
	}
	return session.CodecPCM, true
}

func (s *Server) handleAuthenticate(c *client, data json.RawMessage) {
	perf := observability.NewPerformanceLog(s.logger, "authenticate")

	var req protocol.AuthenticatePayload
	if !unmarshalInto(data, &req) {
		s.sendError(c, "", "malformed authenticate payload")
		return
	}

	authEvent := &observability.LogEvent{
		Logger: s.loggerMW.WithUserID(req.Username),
		Action: "authenticate",
		Entity: "player",
		ID:     req.Username,
		Context: observability.SanitizeForLog(map[string]interface{}{
			"username": req.Username,
			"authCode": req.AuthCode,
		}),
	}

	playerID, ok := s.authCodes.Validate(req.Username, req.AuthCode)
	if !ok {
		if s.metrics != nil {
			s.metrics.AuthAttemptsTotal.WithLabelValues("invalid_code").Inc()
		}
		authEvent.Error(errInvalidAuthCode, "authentication rejected: invalid username or auth code")
		perf.EndWithError(errInvalidAuthCode)
		s.sendError(c, "", "invalid username or auth code")
		c.close()
		return
	}

	codec, ok := negotiateCodec(s, req.AudioCodecs)
	if !ok {
		if s.metrics != nil {
			s.metrics.AuthAttemptsTotal.WithLabelValues("codec_unsupported").Inc()
		}
		authEvent.Error(errNoCommonCodec, "authentication rejected: no common codec")
		perf.EndWithError(errNoCommonCodec)
		s.sendError(c, protocol.ErrCodeCodecUnsupported, "server requires a codec the client did not advertise")
		c.close()
		return
	}

	sessionID, resumeToken, err := session.NewSessionIdentity()
	if err != nil {
		authEvent.Error(err, "failed to create session identity")
		perf.EndWithError(err)
		s.sendError(c, "", "failed to create session")
		c.close()
		return
	}

	sess := &session.Session{
		ClientID:        playerID,
		Username:        req.Username,
		SessionID:       sessionID,
		ResumeToken:     resumeToken,
		NegotiatedCodec: codec,
		LastHeartbeatAt: time.Now(),
		Send:            c.send,
	}

	pending := s.presence != nil && !s.presence.IsOnline(playerID)
	sess.SetPendingGameSession(pending)

	s.sessions.Put(sess)
	c.mu.Lock()
	c.clientID = playerID
	c.mu.Unlock()
	s.registerClient(playerID, c)

	if pending {
		c.setState(connStatePendingGame)
		s.schedulePendingTimeout(c, playerID)
	} else {
		c.setState(connStateAuthenticated)
	}

	isAdmin := s.admins != nil && s.admins.IsAdmin(playerID)

	if s.metrics != nil {
		s.metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	}

	clientToken := mustObfuscate(s, playerID)
	authEvent.Logger = s.loggerMW.WithClientID(clientToken)
	authEvent.ID = clientToken
	authEvent.Success("authentication succeeded")
	perf.EndWithContext(map[string]interface{}{
		"client_id": clientToken,
		"codec":     string(codec),
		"pending":   pending,
	})

	s.send(c, protocol.TypeAuthSuccess, protocol.AuthSuccessPayload{
		ClientID:            clientToken,
		SessionID:           sessionID,
		ResumeToken:         resumeToken,
		IsAdmin:             isAdmin,
		STUNServers:         s.cfg.Signaling.STUNServers,
		HeartbeatIntervalMs: int(s.cfg.Heartbeat.Interval / time.Millisecond),
		ResumeWindowMs:      int(s.cfg.Resume.Window / time.Millisecond),
		NegotiatedCodec:     string(codec),
	})

	if pending {
		s.send(c, protocol.TypePendingGameSession, protocol.PendingGameSessionPayload{
			Message:        "waiting for in-game session",
			TimeoutSeconds: s.cfg.Signaling.PendingGameJoinTimeoutSecs,
		})
	} else {
		s.broadcastPlayerList()
	}
}

func (s *Server) handleResume(c *client, data json.RawMessage) {
	perf := observability.NewPerformanceLog(s.logger, "resume")

	var req protocol.ResumePayload
	if !unmarshalInto(data, &req) {
		s.sendError(c, protocol.ErrCodeResumeFailed, "malformed resume payload")
		return
	}

	resumeEvent := &observability.LogEvent{
		Logger:  s.loggerMW.WithAction("resume"),
		Action:  "resume",
		Entity:  "session",
		ID:      req.SessionID,
		Context: observability.SanitizeForLog(map[string]interface{}{"sessionId": req.SessionID}),
	}

	rec, err := s.sessions.Resume(req.SessionID, req.ResumeToken)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ResumeAttemptsTotal.WithLabelValues("resume_failed").Inc()
		}
		resumeEvent.Error(err, "resume rejected")
		perf.EndWithError(err)
		s.sendError(c, protocol.ErrCodeResumeFailed, "resume failed")
		c.close()
		return
	}

	codec := rec.NegotiatedCodec
	if len(req.AudioCodecs) > 0 {
		if negotiated, ok := negotiateCodec(s, req.AudioCodecs); ok {
			codec = negotiated
		}
	}

	sess := &session.Session{
		ClientID:        rec.ClientID,
		Username:        rec.Username,
		SessionID:       rec.SessionID,
		ResumeToken:     rec.ResumeToken,
		NegotiatedCodec: codec,
		LastHeartbeatAt: time.Now(),
		Send:            c.send,
	}
	s.sessions.Put(sess)
	c.mu.Lock()
	c.clientID = rec.ClientID
	c.mu.Unlock()
	s.registerClient(rec.ClientID, c)
	c.setState(connStateAuthenticated)

	groupID := ""
	if rec.LastGroupID != "" {
		if _, err := s.groups.JoinGroup(rec.ClientID, rec.LastGroupID); err == nil {
			groupID = rec.LastGroupID
		}
	}

	if s.metrics != nil {
		s.metrics.ResumeAttemptsTotal.WithLabelValues("success").Inc()
	}

	clientToken := mustObfuscate(s, rec.ClientID)
	resumeEvent.Logger = s.loggerMW.WithClientID(clientToken)
	resumeEvent.ID = clientToken
	resumeEvent.Success("session resumed")
	perf.EndWithContext(map[string]interface{}{
		"client_id": clientToken,
		"group_id":  groupID,
	})

	s.send(c, protocol.TypeResumed, protocol.ResumedPayload{
		ClientID:        clientToken,
		SessionID:       rec.SessionID,
		ResumeToken:     rec.ResumeToken,
		NegotiatedCodec: string(codec),
		GroupID:         groupID,
	})
	s.broadcastPlayerList()
}

func (s *Server) handleHeartbeat(c *client, data json.RawMessage) {
	var req protocol.HeartbeatPayload
	_ = unmarshalInto(data, &req)

	sess, ok := s.sessions.Get(c.clientID)
	if !ok {
		return
	}
	sess.Touch()
	s.send(c, protocol.TypeHeartbeatAck, req)
}

// schedulePendingTimeout arms the one-shot timer that closes a session
// with code 4002 if the game session never materializes (§4.1.2).
func (s *Server) schedulePendingTimeout(c *client, playerID string) {
	timeout := time.Duration(s.cfg.Signaling.PendingGameJoinTimeoutSecs) * time.Second
	c.mu.Lock()
	c.pendingTimer = time.AfterFunc(timeout, func() {
		sess, ok := s.sessions.Get(playerID)
		if !ok || !sess.IsPending() {
			return
		}
		s.sendError(c, "", "pending game session timed out")
		c.closeWithCode(protocol.ClosePendingSessionLapsed, "pending game session lapsed")
	})
	c.mu.Unlock()
}

// ActivatePending clears the pending-game-session gate for playerID once
// the host game reports the player has joined, per §4.1.2.
func (s *Server) ActivatePending(playerID string) {
	sess, ok := s.sessions.Get(playerID)
	if !ok || !sess.IsPending() {
		return
	}
	sess.SetPendingGameSession(false)

	c, ok := s.clientByID(playerID)
	if !ok {
		return
	}
	c.mu.Lock()
	if c.pendingTimer != nil {
		c.pendingTimer.Stop()
	}
	c.mu.Unlock()
	c.setState(connStateAuthenticated)

	s.send(c, protocol.TypeGameSessionReady, struct{}{})
	s.broadcastPlayerList()
}

// remainingPendingSeconds reports the configured pending-session timeout;
// it is not adjusted for elapsed time, since the one-shot timer (not this
// value) is authoritative for when the gate actually lapses.
func (s *Server) remainingPendingSeconds(c *client) int {
	return s.cfg.Signaling.PendingGameJoinTimeoutSecs
}

func mustObfuscate(s *Server, id string) string {
	token, err := s.identity.Obfuscate(id)
	if err != nil {
		return id
	}
	return token
}
