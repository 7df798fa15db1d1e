package audio

import (
	"testing"

	"github.com/concord-chat/voicecore/internal/group"
	"github.com/concord-chat/voicecore/internal/position"
)

func TestComputeRecipientsProximityOnlyWithinRange(t *testing.T) {
	tracker := position.NewInMemoryTracker()
	tracker.Set(position.Position{PlayerID: "a", WorldID: "w1", X: 0})
	tracker.Set(position.Position{PlayerID: "b", WorldID: "w1", X: 10})
	tracker.Set(position.Position{PlayerID: "c", WorldID: "w1", X: 1000})

	groups := group.NewManager(group.Event{})
	cfg := RoutingConfig{DefaultProximityDistance: 30}

	targets := computeRecipients("a", groups, tracker, []string{"a", "b", "c"}, cfg)
	if len(targets) != 1 || targets[0].ClientID != "b" {
		t.Fatalf("targets = %+v, want only b", targets)
	}
	if targets[0].Mode != ModeNormal {
		t.Fatalf("mode = %v, want ModeNormal", targets[0].Mode)
	}
}

func TestComputeRecipientsCrossWorldIsInfiniteDistance(t *testing.T) {
	tracker := position.NewInMemoryTracker()
	tracker.Set(position.Position{PlayerID: "a", WorldID: "w1", X: 0})
	tracker.Set(position.Position{PlayerID: "b", WorldID: "w2", X: 0})

	groups := group.NewManager(group.Event{})
	cfg := RoutingConfig{DefaultProximityDistance: 1000}

	targets := computeRecipients("a", groups, tracker, []string{"a", "b"}, cfg)
	if len(targets) != 0 {
		t.Fatalf("targets = %+v, want none across worlds", targets)
	}
}

func TestComputeRecipientsGroupLegacyProximity(t *testing.T) {
	tracker := position.NewInMemoryTracker()
	tracker.Set(position.Position{PlayerID: "a", WorldID: "w1", X: 0})
	tracker.Set(position.Position{PlayerID: "b", WorldID: "w1", X: 10})

	groups := group.NewManager(group.Event{})
	snap, _ := groups.CreateGroup("g", true, "a", group.Settings{ProximityRangeMeters: 30, MaxMembers: 2}.Clamp(), false)
	groups.JoinGroup("a", snap.ID)
	groups.JoinGroup("b", snap.ID)

	cfg := RoutingConfig{GroupGlobalVoice: false, DefaultProximityDistance: 5}
	targets := computeRecipients("a", groups, tracker, []string{"a", "b"}, cfg)
	if len(targets) != 1 || targets[0].ClientID != "b" || targets[0].Mode != ModeNormal {
		t.Fatalf("targets = %+v, want NORMAL to b via group path", targets)
	}
}

func TestComputeRecipientsGroupGlobalVoiceFullVolumeOutOfRange(t *testing.T) {
	tracker := position.NewInMemoryTracker()
	tracker.Set(position.Position{PlayerID: "a", WorldID: "w1", X: 0})
	tracker.Set(position.Position{PlayerID: "b", WorldID: "w1", X: 1000})

	groups := group.NewManager(group.Event{})
	snap, _ := groups.CreateGroup("g", true, "a", group.Settings{ProximityRangeMeters: 30, MaxMembers: 2}.Clamp(), false)
	groups.JoinGroup("a", snap.ID)
	groups.JoinGroup("b", snap.ID)

	cfg := RoutingConfig{GroupGlobalVoice: true, GroupSpatialAudio: true, DefaultProximityDistance: 30}
	targets := computeRecipients("a", groups, tracker, []string{"a", "b"}, cfg)
	if len(targets) != 1 || targets[0].ClientID != "b" || targets[0].Mode != ModeFullVolume {
		t.Fatalf("targets = %+v, want FULL_VOLUME to b (out of spatial range)", targets)
	}
}

func TestComputeRecipientsGroupGlobalVoiceMinVolumeWithinRange(t *testing.T) {
	tracker := position.NewInMemoryTracker()
	tracker.Set(position.Position{PlayerID: "a", WorldID: "w1", X: 0})
	tracker.Set(position.Position{PlayerID: "b", WorldID: "w1", X: 10})

	groups := group.NewManager(group.Event{})
	snap, _ := groups.CreateGroup("g", true, "a", group.Settings{ProximityRangeMeters: 30, MaxMembers: 2}.Clamp(), false)
	groups.JoinGroup("a", snap.ID)
	groups.JoinGroup("b", snap.ID)

	cfg := RoutingConfig{GroupGlobalVoice: true, GroupSpatialAudio: true, DefaultProximityDistance: 30}
	targets := computeRecipients("a", groups, tracker, []string{"a", "b"}, cfg)
	if len(targets) != 1 || targets[0].ClientID != "b" || targets[0].Mode != ModeMinVolume {
		t.Fatalf("targets = %+v, want MIN_VOLUME to b (within spatial range)", targets)
	}
}

func TestComputeRecipientsIsolatedGroupBlocksOutsiders(t *testing.T) {
	tracker := position.NewInMemoryTracker()
	tracker.Set(position.Position{PlayerID: "a", WorldID: "w1", X: 0})
	tracker.Set(position.Position{PlayerID: "b", WorldID: "w1", X: 5})
	tracker.Set(position.Position{PlayerID: "o", WorldID: "w1", X: 8})

	groups := group.NewManager(group.Event{})
	snap, _ := groups.CreateGroup("g", true, "a", group.Settings{ProximityRangeMeters: 30, MaxMembers: 2}.Clamp(), true)
	groups.JoinGroup("a", snap.ID)
	groups.JoinGroup("b", snap.ID)

	cfg := RoutingConfig{DefaultProximityDistance: 30}
	targets := computeRecipients("a", groups, tracker, []string{"a", "b", "o"}, cfg)

	seen := map[string]bool{}
	for _, tg := range targets {
		seen[tg.ClientID] = true
	}
	if !seen["b"] {
		t.Fatalf("expected b (group member) to be routed, got %+v", targets)
	}
	if seen["o"] {
		t.Fatalf("expected outsider o to be blocked by isolation, got %+v", targets)
	}
}

func TestComputeRecipientsExcludesOtherIsolatedGroupFromProximityPath(t *testing.T) {
	tracker := position.NewInMemoryTracker()
	tracker.Set(position.Position{PlayerID: "a", WorldID: "w1", X: 0})
	tracker.Set(position.Position{PlayerID: "iso", WorldID: "w1", X: 5})

	groups := group.NewManager(group.Event{})
	isoSnap, _ := groups.CreateGroup("iso-group", true, "iso", group.Settings{ProximityRangeMeters: 1, MaxMembers: 2}.Clamp(), true)
	groups.JoinGroup("iso", isoSnap.ID)

	cfg := RoutingConfig{DefaultProximityDistance: 30}
	targets := computeRecipients("a", groups, tracker, []string{"a", "iso"}, cfg)
	if len(targets) != 0 {
		t.Fatalf("targets = %+v, want none (member of other isolated group excluded)", targets)
	}
}

func TestComputeRecipientsUnknownSenderPositionYieldsNoTargets(t *testing.T) {
	tracker := position.NewInMemoryTracker()
	groups := group.NewManager(group.Event{})
	cfg := RoutingConfig{DefaultProximityDistance: 30}
	targets := computeRecipients("ghost", groups, tracker, []string{"ghost"}, cfg)
	if targets != nil {
		t.Fatalf("targets = %+v, want nil", targets)
	}
}
