package signaling

import (
	"context"
	"fmt"
	"time"

	"github.com/concord-chat/voicecore/internal/session"
	"github.com/concord-chat/voicecore/pkg/protocol"
)

// RunHeartbeatMonitor scans live sessions once per heartbeat interval and
// closes any whose last heartbeat is older than the configured timeout
// (§4.1, close code 4000). It blocks until ctx is cancelled.
func (s *Server) RunHeartbeatMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Heartbeat.Interval)
	defer ticker.Stop()

	s.lastMonitorTickAt.Store(time.Now().UnixNano())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.lastMonitorTickAt.Store(time.Now().UnixNano())
			s.sweepExpiredHeartbeats()
			s.sessions.PruneExpiredResumable()
		}
	}
}

// HeartbeatMonitorAlive reports an error once RunHeartbeatMonitor has not
// ticked for more than twice its configured interval, for the health
// checker (§ AMBIENT STACK, Health).
func (s *Server) HeartbeatMonitorAlive() error {
	last := time.Unix(0, s.lastMonitorTickAt.Load())
	threshold := 2 * s.cfg.Heartbeat.Interval
	if age := time.Since(last); age > threshold {
		return fmt.Errorf("heartbeat monitor has not ticked in %s", age)
	}
	return nil
}

func (s *Server) sweepExpiredHeartbeats() {
	var stale []string
	s.sessions.Range(func(sess *session.Session) {
		if sess.HeartbeatAge() > s.cfg.Heartbeat.Timeout {
			stale = append(stale, sess.ClientID)
		}
	})

	for _, clientID := range stale {
		c, ok := s.clientByID(clientID)
		if !ok {
			continue
		}
		if s.metrics != nil {
			s.metrics.HeartbeatTimeoutsTotal.Inc()
		}
		c.closeWithCode(protocol.CloseHeartbeatTimeout, "heartbeat timeout")
	}
}

// onDisconnect runs the cleanup sequence for a connection that has dropped,
// whether cleanly (disconnect message, close frame) or abruptly (read
// error, heartbeat timeout) (§4.1.3). It is idempotent per client id.
func (s *Server) onDisconnect(c *client) {
	c.mu.Lock()
	if c.pendingTimer != nil {
		c.pendingTimer.Stop()
	}
	clientID := c.clientID
	c.mu.Unlock()
	c.close()

	if clientID == "" {
		return
	}

	// Only clean up if this client's still-registered connection is the
	// one disconnecting; a resumed/re-authenticated connection owns the
	// client id now and must not be torn down by the stale goroutine.
	if current, ok := s.clientByID(clientID); !ok || current != c {
		return
	}
	s.unregisterClient(clientID)

	sess, hadSession := s.sessions.Get(clientID)
	s.sessions.Remove(clientID)

	groupID, wasInGroup := s.groups.GetPlayerGroup(clientID)
	newOwner, _ := s.groups.LeaveGroup(clientID)

	// A resumable record is retained whenever a resume token is in force,
	// regardless of in-game presence; absent that, the mapping is dropped
	// for good (§4.1.3, §4.2 "Identity mapping").
	retained := false
	if hadSession && sess.ResumeToken != "" {
		s.sessions.SaveResumable(session.ResumableRecord{
			ClientID:        sess.ClientID,
			Username:        sess.Username,
			SessionID:       sess.SessionID,
			ResumeToken:     sess.ResumeToken,
			LastGroupID:     groupID,
			NegotiatedCodec: sess.NegotiatedCodec,
		})
		retained = true
	}
	if !retained {
		s.identity.Remove(clientID)
	}

	// The position tracker is an external collaborator the core only
	// reads from (lookup, list); it owns removal of offline players
	// itself, driven by the same presence oracle the core consults here.

	s.transport.Close(clientID)

	if wasInGroup {
		s.broadcastGroupMembersUpdated(groupID, newOwner)
	}
	s.broadcastPlayerList()
}
