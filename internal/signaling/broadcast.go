package signaling

import (
	"github.com/concord-chat/voicecore/internal/position"
	"github.com/concord-chat/voicecore/pkg/protocol"
)

func (s *Server) playerPayload(id string) protocol.PlayerPayload {
	username := ""
	isMuted := false
	if sess, ok := s.sessions.Get(id); ok {
		username = sess.Username
		isMuted = sess.IsMuted
	}
	groupID, _ := s.groups.GetPlayerGroup(id)
	return protocol.PlayerPayload{
		ClientID: mustObfuscate(s, id),
		Username: username,
		GroupID:  groupID,
		IsMuted:  isMuted,
	}
}

// playerListPayload enumerates every live, non-pending client (§4.1.2:
// pending sessions are excluded from player-list broadcasts).
func (s *Server) playerListPayload() protocol.PlayerListPayload {
	ids := s.LiveClientIDs()
	players := make([]protocol.PlayerPayload, 0, len(ids))
	for _, id := range ids {
		if sess, ok := s.sessions.Get(id); ok && sess.IsPending() {
			continue
		}
		players = append(players, s.playerPayload(id))
	}
	return protocol.PlayerListPayload{Players: players}
}

// broadcastPlayerList sends the current player_list to every live,
// authenticated connection (§4.1.3, server-wide broadcast).
func (s *Server) broadcastPlayerList() {
	payload := s.playerListPayload()
	for _, id := range s.LiveClientIDs() {
		if c, ok := s.clientByID(id); ok {
			s.send(c, protocol.TypePlayerList, payload)
		}
	}
}

// broadcastGroupList sends the current group_list to every live
// connection (§4.1.3, server-wide broadcast).
func (s *Server) broadcastGroupList() {
	snaps := s.groups.ListGroups()
	payloads := make([]protocol.GroupPayload, 0, len(snaps))
	for _, snap := range snaps {
		payloads = append(payloads, s.groupPayload(snap))
	}
	payload := protocol.GroupListPayload{Groups: payloads}
	for _, id := range s.LiveClientIDs() {
		if c, ok := s.clientByID(id); ok {
			s.send(c, protocol.TypeGroupList, payload)
		}
	}
}

// broadcastGroupMembersUpdated notifies every member of groupID of a
// membership change (§4.1.3, group-scoped broadcast).
func (s *Server) broadcastGroupMembersUpdated(groupID, newOwner string) {
	members, err := s.groups.GetMembers(groupID)
	if err != nil {
		return
	}
	payload := protocol.GroupMembersUpdatedPayload{
		GroupID:  groupID,
		Members:  s.obfuscateMembers(members),
		NewOwner: mustObfuscateIfSet(s, newOwner),
	}
	for _, id := range members {
		if c, ok := s.clientByID(id); ok {
			s.send(c, protocol.TypeGroupMembersUpdated, payload)
		}
	}
}

func mustObfuscateIfSet(s *Server, id string) string {
	if id == "" {
		return ""
	}
	return mustObfuscate(s, id)
}

func (s *Server) handleUserSpeaking(c *client, data []byte) {
	var req protocol.UserSpeakingPayload
	if !unmarshalInto(data, &req) {
		return
	}
	sess, ok := s.sessions.Get(c.clientID)
	if !ok || !sess.SetSpeaking(req.IsSpeaking) {
		return
	}
	s.broadcastToGroupExceptSender(c.clientID, protocol.TypeUserSpeakingStatus, protocol.UserSpeakingStatusPayload{
		ClientID:   mustObfuscate(s, c.clientID),
		IsSpeaking: req.IsSpeaking,
	})
}

func (s *Server) handleUserMute(c *client, data []byte) {
	var req protocol.UserMutePayload
	if !unmarshalInto(data, &req) {
		return
	}
	sess, ok := s.sessions.Get(c.clientID)
	if !ok || !sess.SetMuted(req.IsMuted) {
		return
	}
	s.broadcastToGroupIncludingSender(c.clientID, protocol.TypeUserMuteStatus, protocol.UserMuteStatusPayload{
		ClientID: mustObfuscate(s, c.clientID),
		IsMuted:  req.IsMuted,
	})
}

// broadcastToGroupExceptSender implements the speaking-event broadcast
// policy: every group member but the sender (§4.1.3).
func (s *Server) broadcastToGroupExceptSender(senderID, msgType string, payload interface{}) {
	groupID, ok := s.groups.GetPlayerGroup(senderID)
	if !ok {
		return
	}
	members, err := s.groups.GetMembers(groupID)
	if err != nil {
		return
	}
	for _, id := range members {
		if id == senderID {
			continue
		}
		if c, ok := s.clientByID(id); ok {
			s.send(c, msgType, payload)
		}
	}
}

// broadcastToGroupIncludingSender implements the mute-event broadcast
// policy: every group member, including the sender (§4.1.3).
func (s *Server) broadcastToGroupIncludingSender(senderID, msgType string, payload interface{}) {
	groupID, ok := s.groups.GetPlayerGroup(senderID)
	if !ok {
		return
	}
	members, err := s.groups.GetMembers(groupID)
	if err != nil {
		return
	}
	for _, id := range members {
		if c, ok := s.clientByID(id); ok {
			s.send(c, msgType, payload)
		}
	}
}

var _ position.Sink = (*Server)(nil)
var _ position.RangeResolver = (*Server)(nil)
var _ position.Obfuscator = (*Server)(nil)
