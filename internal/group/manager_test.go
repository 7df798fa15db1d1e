package group

import "testing"

func defaultSettings() Settings {
	return Settings{DefaultVolume: 100, ProximityRangeMeters: 30, MaxMembers: 2}.Clamp()
}

func TestCreateGroupRejectsDuplicateNameCaseInsensitive(t *testing.T) {
	m := NewManager(Event{})
	if _, err := m.CreateGroup("Squad", false, "p1", defaultSettings(), false); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := m.CreateGroup("squad", false, "p2", defaultSettings(), false); err != ErrNameTaken {
		t.Fatalf("err = %v, want ErrNameTaken", err)
	}
}

func TestJoinGroupRespectsMaxMembers(t *testing.T) {
	m := NewManager(Event{})
	snap, _ := m.CreateGroup("duo", false, "p1", Settings{MaxMembers: 2}.Clamp(), false)
	if _, err := m.JoinGroup("p1", snap.ID); err != nil {
		t.Fatalf("JoinGroup p1: %v", err)
	}
	if _, err := m.JoinGroup("p2", snap.ID); err != nil {
		t.Fatalf("JoinGroup p2: %v", err)
	}
	if _, err := m.JoinGroup("p3", snap.ID); err != ErrFull {
		t.Fatalf("err = %v, want ErrFull", err)
	}
}

func TestJoinGroupLeavesPriorGroup(t *testing.T) {
	m := NewManager(Event{})
	a, _ := m.CreateGroup("alpha", true, "p1", defaultSettings(), false)
	b, _ := m.CreateGroup("bravo", true, "p1", defaultSettings(), false)

	if _, err := m.JoinGroup("p1", a.ID); err != nil {
		t.Fatalf("join a: %v", err)
	}
	if _, err := m.JoinGroup("p1", b.ID); err != nil {
		t.Fatalf("join b: %v", err)
	}

	members, err := m.GetMembers(a.ID)
	if err != nil {
		t.Fatalf("GetMembers a: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected p1 to have left group a, members=%v", members)
	}

	groupID, ok := m.GetPlayerGroup("p1")
	if !ok || groupID != b.ID {
		t.Fatalf("GetPlayerGroup(p1) = (%q, %v), want (%q, true)", groupID, ok, b.ID)
	}
}

func TestLeaveGroupAutoDisbandsNonPermanent(t *testing.T) {
	var deletedID string
	m := NewManager(Event{Deleted: func(id string) { deletedID = id }})

	snap, _ := m.CreateGroup("temp", false, "p1", defaultSettings(), false)
	if _, err := m.JoinGroup("p1", snap.ID); err != nil {
		t.Fatalf("JoinGroup: %v", err)
	}

	m.LeaveGroup("p1")

	if deletedID != snap.ID {
		t.Fatalf("expected Deleted event for %q, got %q", snap.ID, deletedID)
	}
	if _, ok := m.GetGroup(snap.ID); ok {
		t.Fatal("expected group to be gone after last member left")
	}
}

func TestLeaveGroupTransfersOwnership(t *testing.T) {
	m := NewManager(Event{})
	snap, _ := m.CreateGroup("trio", true, "p1", Settings{MaxMembers: 3}.Clamp(), false)
	m.JoinGroup("p1", snap.ID)
	m.JoinGroup("p2", snap.ID)

	newOwner, wasMember := m.LeaveGroup("p1")
	if !wasMember {
		t.Fatal("expected p1 to have been a member")
	}
	if newOwner != "p2" {
		t.Fatalf("newOwner = %q, want p2", newOwner)
	}

	got, ok := m.GetGroup(snap.ID)
	if !ok {
		t.Fatal("expected group to still exist with remaining member")
	}
	if got.CreatorID != "p2" {
		t.Fatalf("CreatorID = %q, want p2", got.CreatorID)
	}
}

func TestUpdateSettingsRequiresCreator(t *testing.T) {
	m := NewManager(Event{})
	snap, _ := m.CreateGroup("owned", true, "p1", defaultSettings(), false)

	newSettings := Settings{DefaultVolume: 50, ProximityRangeMeters: 10, MaxMembers: 4}
	if err := m.UpdateSettings(snap.ID, "p2", &newSettings, nil); err != ErrNotCreator {
		t.Fatalf("err = %v, want ErrNotCreator", err)
	}
	if err := m.UpdateSettings(snap.ID, "p1", &newSettings, nil); err != nil {
		t.Fatalf("UpdateSettings as creator: %v", err)
	}

	got, _ := m.GetGroup(snap.ID)
	if got.Settings.MaxMembers != 4 {
		t.Fatalf("MaxMembers = %d, want 4", got.Settings.MaxMembers)
	}
}

func TestShutdownClearsNonPermanentOnly(t *testing.T) {
	m := NewManager(Event{})
	perm, _ := m.CreateGroup("keep", true, "p1", defaultSettings(), false)
	temp, _ := m.CreateGroup("drop", false, "p2", defaultSettings(), false)
	m.JoinGroup("p1", perm.ID)
	m.JoinGroup("p2", temp.ID)

	m.Shutdown()

	if _, ok := m.GetGroup(perm.ID); !ok {
		t.Fatal("expected permanent group to survive shutdown")
	}
	if _, ok := m.GetGroup(temp.ID); ok {
		t.Fatal("expected non-permanent group to be cleared on shutdown")
	}
}
