package session

import "testing"

func TestTouchAndHeartbeatAge(t *testing.T) {
	s := &Session{ClientID: "p1"}
	s.Touch()
	if s.HeartbeatAge() < 0 {
		t.Fatal("expected non-negative heartbeat age")
	}
}

func TestSetSpeakingReportsChange(t *testing.T) {
	s := &Session{ClientID: "p1"}
	if !s.SetSpeaking(true) {
		t.Fatal("expected first SetSpeaking(true) to report a change")
	}
	if s.SetSpeaking(true) {
		t.Fatal("expected repeated SetSpeaking(true) to report no change")
	}
	if !s.SetSpeaking(false) {
		t.Fatal("expected SetSpeaking(false) to report a change")
	}
}

func TestSetMutedReportsChange(t *testing.T) {
	s := &Session{ClientID: "p1"}
	if !s.SetMuted(true) {
		t.Fatal("expected first SetMuted(true) to report a change")
	}
	if s.SetMuted(true) {
		t.Fatal("expected repeated SetMuted(true) to report no change")
	}
}

func TestPendingGameSessionFlag(t *testing.T) {
	s := &Session{ClientID: "p1"}
	if s.IsPending() {
		t.Fatal("expected default pending=false")
	}
	s.SetPendingGameSession(true)
	if !s.IsPending() {
		t.Fatal("expected pending=true after SetPendingGameSession(true)")
	}
}
