package audio

import (
	"github.com/concord-chat/voicecore/internal/group"
	"github.com/concord-chat/voicecore/internal/position"
)

// Target is one recipient of a routed audio frame.
type Target struct {
	ClientID string
	Mode     Mode
	Distance float64
	MaxRange float64
}

// RoutingConfig carries the server-side tunables recipient computation
// needs (§4.4, mirrors internal/config's Proximity/Group sections).
type RoutingConfig struct {
	GroupGlobalVoice         bool
	GroupSpatialAudio        bool
	DefaultProximityDistance float64
}

// computeRecipients implements §4.4's two-path recipient-set computation:
// the sender's group (if any) first, then the server-wide proximity path
// for everyone else, honoring group isolation.
func computeRecipients(senderID string, groups *group.Manager, positions position.Tracker, liveClientIDs []string, cfg RoutingConfig) []Target {
	senderPos, ok := positions.Get(senderID)
	if !ok {
		return nil
	}

	targeted := make(map[string]struct{})
	var targets []Target

	senderGroupID, inGroup := groups.GetPlayerGroup(senderID)
	var senderGroup group.Snapshot
	if inGroup {
		senderGroup, inGroup = groups.GetGroup(senderGroupID)
	}

	if inGroup {
		for _, memberID := range senderGroup.Members {
			if memberID == senderID {
				continue
			}
			memberPos, ok := positions.Get(memberID)
			if !ok || memberPos.WorldID != senderPos.WorldID {
				continue
			}
			d := position.Distance(senderPos, memberPos)

			var mode Mode
			maxRange := senderGroup.Settings.ProximityRangeMeters
			if cfg.GroupGlobalVoice {
				if cfg.GroupSpatialAudio && d <= senderGroup.Settings.ProximityRangeMeters {
					mode = ModeMinVolume
				} else {
					mode = ModeFullVolume
				}
				targeted[memberID] = struct{}{}
				targets = append(targets, Target{ClientID: memberID, Mode: mode, Distance: d, MaxRange: maxRange})
			} else if d <= senderGroup.Settings.ProximityRangeMeters {
				targeted[memberID] = struct{}{}
				targets = append(targets, Target{ClientID: memberID, Mode: ModeNormal, Distance: d, MaxRange: maxRange})
			}
		}
	}

	for _, clientID := range liveClientIDs {
		if clientID == senderID {
			continue
		}
		if _, already := targeted[clientID]; already {
			continue
		}

		otherGroupID, otherInGroup := groups.GetPlayerGroup(clientID)
		if inGroup && senderGroup.IsIsolated && (!otherInGroup || otherGroupID != senderGroupID) {
			// Isolated senders only reach members of their own group.
			continue
		}
		if otherInGroup {
			if otherGroup, ok := groups.GetGroup(otherGroupID); ok && otherGroup.IsIsolated && otherGroupID != senderGroupID {
				continue
			}
		}

		otherPos, ok := positions.Get(clientID)
		if !ok || otherPos.WorldID != senderPos.WorldID {
			continue
		}
		d := position.Distance(senderPos, otherPos)
		if d <= cfg.DefaultProximityDistance {
			targets = append(targets, Target{
				ClientID: clientID,
				Mode:     ModeNormal,
				Distance: d,
				MaxRange: cfg.DefaultProximityDistance,
			})
		}
	}

	return targets
}
