package signaling

import (
	"context"
	"encoding/json"

	"github.com/concord-chat/voicecore/pkg/protocol"
)

// dispatch routes one decoded envelope to its handler. Every message
// except authenticate/resume requires an authenticated connection.
func (s *Server) dispatch(ctx context.Context, c *client, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeAuthenticate:
		s.handleAuthenticate(c, env.Data)
		return
	case protocol.TypeResume:
		s.handleResume(c, env.Data)
		return
	}

	state := c.getState()
	if state != connStateAuthenticated && state != connStatePendingGame {
		s.sendError(c, "", "not authenticated")
		return
	}

	// Pending-message gate (§4.1.2): while gated on in-game presence,
	// only a small allowlist of message types is accepted.
	if state == connStatePendingGame {
		switch env.Type {
		case protocol.TypeHeartbeat, protocol.TypeDisconnect, protocol.TypePing:
		default:
			s.send(c, protocol.TypePendingGameSession, protocol.PendingGameSessionPayload{
				Message:        "waiting for in-game session",
				TimeoutSeconds: s.remainingPendingSeconds(c),
			})
			return
		}
	}

	switch env.Type {
	case protocol.TypeHeartbeat:
		s.handleHeartbeat(c, env.Data)
	case protocol.TypeDisconnect:
		c.close()
	case protocol.TypePing:
		s.send(c, protocol.TypePong, protocol.HeartbeatPayload{})
	case protocol.TypeCreateGroup:
		s.handleCreateGroup(c, env.Data)
	case protocol.TypeJoinGroup:
		s.handleJoinGroup(c, env.Data)
	case protocol.TypeLeaveGroup:
		s.handleLeaveGroup(c)
	case protocol.TypeListGroups:
		s.handleListGroups(c)
	case protocol.TypeListPlayers:
		s.handleListPlayers(c)
	case protocol.TypeGetGroupMembers:
		s.handleGetGroupMembers(c, env.Data)
	case protocol.TypeUpdateGroupPass:
		s.handleUpdateGroupPassword(c, env.Data)
	case protocol.TypeSetGroupPerm:
		s.handleSetGroupPermanent(c, env.Data)
	case protocol.TypeUserSpeaking:
		s.handleUserSpeaking(c, env.Data)
	case protocol.TypeUserMute:
		s.handleUserMute(c, env.Data)
	case protocol.TypeOffer:
		s.handleOffer(ctx, c, env.Data)
	case protocol.TypeICECandidate:
		s.handleICECandidate(c, env.Data)
	case protocol.TypeStartDataChannel:
		s.handleStartDataChannel(c)
	default:
		s.sendError(c, "", "unknown message type")
	}
}

func unmarshalInto(data json.RawMessage, v interface{}) bool {
	if len(data) == 0 {
		return true
	}
	return json.Unmarshal(data, v) == nil
}
