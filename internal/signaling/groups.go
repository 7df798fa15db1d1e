package signaling

import (
	"encoding/json"
	"errors"

	"github.com/concord-chat/voicecore/internal/group"
	"github.com/concord-chat/voicecore/internal/observability"
	"github.com/concord-chat/voicecore/pkg/protocol"
)

var (
	errNotInGroup        = errors.New("player is not a member of any group")
	errIncorrectPassword = errors.New("incorrect group password")
)

func (s *Server) groupPayload(snap group.Snapshot) protocol.GroupPayload {
	return protocol.GroupPayload{
		GroupID:       snap.ID,
		Name:          snap.Name,
		IsPermanent:   snap.IsPermanent,
		IsIsolated:    snap.IsIsolated,
		CreatorID:     mustObfuscate(s, snap.CreatorID),
		MemberCount:   len(snap.Members),
		MaxMembers:    snap.Settings.MaxMembers,
		HasPassword:   snap.HasPassword,
		DefaultVolume: snap.Settings.DefaultVolume,
	}
}

func (s *Server) obfuscateMembers(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, mustObfuscate(s, id))
	}
	return out
}

func (s *Server) handleCreateGroup(c *client, data json.RawMessage) {
	var req protocol.CreateGroupPayload
	if !unmarshalInto(data, &req) {
		s.sendError(c, "", "malformed create_group payload")
		return
	}

	clientToken := mustObfuscate(s, c.clientID)
	createEvent := &observability.LogEvent{
		Logger: s.loggerMW.WithClientID(clientToken),
		Action: "create_group",
		Entity: "group",
		Context: observability.SanitizeForLog(map[string]interface{}{
			"name":     req.Name,
			"password": req.Password,
		}),
	}

	if err := s.validator.ValidateGroupName(req.Name); err != nil {
		createEvent.Error(err, "create_group rejected: invalid name")
		s.sendError(c, "", err.Error())
		return
	}

	isAdmin := s.admins != nil && s.admins.IsAdmin(c.clientID)
	permanent := req.Permanent && isAdmin

	settings := group.Settings{
		DefaultVolume:        req.DefaultVolume,
		ProximityRangeMeters: req.ProximityMeters,
		AllowInvites:         req.AllowInvites,
		MaxMembers:           req.MaxMembers,
	}
	if settings.DefaultVolume == 0 {
		settings.DefaultVolume = s.cfg.Group.MinVolume * 100
	}

	snap, err := s.groups.CreateGroup(req.Name, permanent, c.clientID, settings, req.Isolated || s.cfg.Group.DefaultIsIsolated)
	if err != nil {
		if s.metrics != nil {
			s.metrics.GroupOpsTotal.WithLabelValues("create", "name_taken").Inc()
		}
		createEvent.Error(err, "create_group rejected")
		s.sendError(c, "", err.Error())
		return
	}

	if req.Password != "" {
		hash, err := s.hasher.Hash(req.Password)
		if err == nil {
			_ = s.groups.SetPassword(snap.ID, c.clientID, hash)
			snap.HasPassword = true
		}
	}

	if s.metrics != nil {
		s.metrics.GroupOpsTotal.WithLabelValues("create", "success").Inc()
		s.metrics.GroupsActive.Set(float64(len(s.groups.ListGroups())))
	}

	if _, err := s.groups.JoinGroup(c.clientID, snap.ID); err == nil {
		snap, _ = s.groups.GetGroup(snap.ID)
	}

	createEvent.Logger = s.loggerMW.WithGroupID(snap.ID)
	createEvent.ID = snap.ID
	createEvent.Success("group created")

	s.send(c, protocol.TypeGroupCreated, s.groupPayload(snap))
	s.broadcastGroupList()
	s.broadcastGroupMembersUpdated(snap.ID, "")
}

func (s *Server) handleJoinGroup(c *client, data json.RawMessage) {
	var req protocol.JoinGroupPayload
	if !unmarshalInto(data, &req) {
		s.sendError(c, "", "malformed join_group payload")
		return
	}

	clientToken := mustObfuscate(s, c.clientID)
	joinEvent := &observability.LogEvent{
		Logger: s.loggerMW.WithGroupID(req.GroupID).With().Str("client_id", clientToken).Logger(),
		Action: "join_group",
		Entity: "group",
		ID:     req.GroupID,
	}

	snap, ok := s.groups.GetGroup(req.GroupID)
	if !ok {
		joinEvent.Error(group.ErrNotFound, "join_group rejected")
		s.sendError(c, protocol.ErrCodeGroupNotFound, "group not found")
		return
	}

	if snap.HasPassword {
		matches, err := s.groups.CheckPassword(req.GroupID, func(hash string) (bool, error) {
			return s.hasher.Verify(req.Password, hash)
		})
		if err != nil || !matches {
			joinEvent.Error(errIncorrectPassword, "join_group rejected: incorrect password")
			s.sendError(c, protocol.ErrCodeIncorrectPass, "incorrect password")
			return
		}
	}

	joined, err := s.groups.JoinGroup(c.clientID, req.GroupID)
	if err != nil {
		joinEvent.Error(err, "join_group rejected")
		if err == group.ErrFull {
			s.sendError(c, protocol.ErrCodeGroupFull, "group is full")
		} else {
			s.sendError(c, protocol.ErrCodeGroupNotFound, "group not found")
		}
		return
	}

	if s.metrics != nil {
		s.metrics.GroupOpsTotal.WithLabelValues("join", "success").Inc()
	}

	joinEvent.Success("player joined group")

	s.send(c, protocol.TypeGroupJoined, protocol.GroupJoinedPayload{
		Group:   s.groupPayload(joined),
		Members: s.obfuscateMembers(joined.Members),
	})
	s.broadcastGroupMembersUpdated(req.GroupID, "")
}

func (s *Server) handleLeaveGroup(c *client) {
	clientToken := mustObfuscate(s, c.clientID)
	leaveEvent := &observability.LogEvent{
		Logger: s.loggerMW.WithClientID(clientToken),
		Action: "leave_group",
		Entity: "group",
	}

	groupID, ok := s.groups.GetPlayerGroup(c.clientID)
	if !ok {
		leaveEvent.Error(errNotInGroup, "leave_group rejected")
		s.sendError(c, "", "not in a group")
		return
	}
	leaveEvent.ID = groupID
	leaveEvent.Logger = s.loggerMW.WithGroupID(groupID)

	newOwner, wasMember := s.groups.LeaveGroup(c.clientID)
	if !wasMember {
		return
	}

	if s.metrics != nil {
		s.metrics.GroupOpsTotal.WithLabelValues("leave", "success").Inc()
	}

	newOwnerToken := ""
	if newOwner != "" {
		newOwnerToken = mustObfuscate(s, newOwner)
	}
	leaveEvent.Context = map[string]interface{}{"new_owner": newOwnerToken}
	leaveEvent.Success("player left group")

	s.send(c, protocol.TypeGroupLeft, protocol.GroupLeftPayload{GroupID: groupID})
	s.broadcastGroupMembersUpdated(groupID, newOwner)
	s.broadcastGroupList()
}

func (s *Server) handleListGroups(c *client) {
	snaps := s.groups.ListGroups()
	payloads := make([]protocol.GroupPayload, 0, len(snaps))
	for _, snap := range snaps {
		payloads = append(payloads, s.groupPayload(snap))
	}
	s.send(c, protocol.TypeGroupList, protocol.GroupListPayload{Groups: payloads})
}

func (s *Server) handleListPlayers(c *client) {
	s.send(c, protocol.TypePlayerList, s.playerListPayload())
}

func (s *Server) handleGetGroupMembers(c *client, data json.RawMessage) {
	var req protocol.GetGroupMembersPayload
	if !unmarshalInto(data, &req) {
		s.sendError(c, "", "malformed get_group_members payload")
		return
	}

	ids, err := s.groups.GetMembers(req.GroupID)
	if err != nil {
		s.sendError(c, protocol.ErrCodeGroupNotFound, "group not found")
		return
	}

	members := make([]protocol.PlayerPayload, 0, len(ids))
	for _, id := range ids {
		members = append(members, s.playerPayload(id))
	}
	s.send(c, protocol.TypeGroupMembersList, protocol.GroupMembersListPayload{
		GroupID: req.GroupID,
		Members: members,
	})
}

func (s *Server) handleUpdateGroupPassword(c *client, data json.RawMessage) {
	var req protocol.UpdateGroupPasswordPayload
	if !unmarshalInto(data, &req) {
		s.sendError(c, "", "malformed update_group_password payload")
		return
	}

	hash := ""
	if req.Password != "" {
		var err error
		hash, err = s.hasher.Hash(req.Password)
		if err != nil {
			s.sendError(c, "", "failed to hash password")
			return
		}
	}

	if err := s.groups.SetPassword(req.GroupID, c.clientID, hash); err != nil {
		s.sendError(c, "", "not authorized")
		return
	}

	s.send(c, protocol.TypeGroupPasswordUpdated, protocol.GroupPasswordUpdatedPayload{
		GroupID:     req.GroupID,
		HasPassword: hash != "",
	})
}

func (s *Server) handleSetGroupPermanent(c *client, data json.RawMessage) {
	var req protocol.SetGroupPermanentPayload
	if !unmarshalInto(data, &req) {
		s.sendError(c, "", "malformed set_group_permanent payload")
		return
	}

	if req.Permanent && (s.admins == nil || !s.admins.IsAdmin(c.clientID)) {
		s.sendError(c, "", "not authorized")
		return
	}

	if err := s.groups.SetPermanent(req.GroupID, c.clientID, req.Permanent); err != nil {
		s.sendError(c, "", "not authorized")
		return
	}

	s.send(c, protocol.TypeGroupPermanentUpdated, protocol.GroupPermanentUpdatedPayload{
		GroupID:   req.GroupID,
		Permanent: req.Permanent,
	})
}

