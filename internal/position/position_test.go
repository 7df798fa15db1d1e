package position

import (
	"math"
	"testing"
)

func TestDistanceSameWorld(t *testing.T) {
	a := Position{WorldID: "w1", X: 0, Y: 0, Z: 0}
	b := Position{WorldID: "w1", X: 3, Y: 4, Z: 0}
	if got := Distance(a, b); got != 5 {
		t.Fatalf("Distance = %v, want 5", got)
	}
}

func TestDistanceCrossWorldIsInfinite(t *testing.T) {
	a := Position{WorldID: "w1"}
	b := Position{WorldID: "w2"}
	if got := Distance(a, b); !math.IsInf(got, 1) {
		t.Fatalf("Distance = %v, want +Inf", got)
	}
}

func TestInMemoryTrackerSetGetRemove(t *testing.T) {
	tr := NewInMemoryTracker()
	tr.Set(Position{PlayerID: "p1", WorldID: "w1"})

	if _, ok := tr.Get("p1"); !ok {
		t.Fatal("expected p1 to be present")
	}
	if len(tr.List()) != 1 {
		t.Fatalf("List() len = %d, want 1", len(tr.List()))
	}

	tr.Remove("p1")
	if _, ok := tr.Get("p1"); ok {
		t.Fatal("expected p1 to be removed")
	}
}

func TestInMemoryPresence(t *testing.T) {
	p := NewInMemoryPresence()
	if p.IsOnline("p1") {
		t.Fatal("expected p1 offline by default")
	}
	p.SetOnline("p1", true)
	if !p.IsOnline("p1") {
		t.Fatal("expected p1 online after SetOnline(true)")
	}
	p.SetOnline("p1", false)
	if p.IsOnline("p1") {
		t.Fatal("expected p1 offline after SetOnline(false)")
	}
}

func TestInMemoryAuthCodesSingleUse(t *testing.T) {
	codes := NewInMemoryAuthCodes()
	codes.Issue("astra", "ABC123", "player-1")

	id, ok := codes.Validate("astra", "ABC123")
	if !ok || id != "player-1" {
		t.Fatalf("Validate = (%q, %v), want (player-1, true)", id, ok)
	}

	if _, ok := codes.Validate("astra", "ABC123"); ok {
		t.Fatal("expected code to be single-use")
	}
}
