package session

import (
	"testing"
	"time"
)

func TestPutReplacesExistingSession(t *testing.T) {
	st := NewStore(30 * time.Second)
	first := &Session{ClientID: "p1", Username: "first"}
	second := &Session{ClientID: "p1", Username: "second"}

	if prev := st.Put(first); prev != nil {
		t.Fatalf("expected no previous session, got %+v", prev)
	}
	prev := st.Put(second)
	if prev != first {
		t.Fatal("expected Put to return the replaced session")
	}

	got, ok := st.Get("p1")
	if !ok || got.Username != "second" {
		t.Fatalf("Get(p1) = (%+v, %v), want second", got, ok)
	}
}

func TestRemoveAndLen(t *testing.T) {
	st := NewStore(30 * time.Second)
	st.Put(&Session{ClientID: "p1"})
	st.Put(&Session{ClientID: "p2"})
	if st.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", st.Len())
	}

	st.Remove("p1")
	if st.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", st.Len())
	}
	if _, ok := st.Get("p1"); ok {
		t.Fatal("expected p1 to be removed")
	}
}

func TestResumeRoundTrip(t *testing.T) {
	st := NewStore(30 * time.Second)
	sessionID, resumeToken, err := NewSessionIdentity()
	if err != nil {
		t.Fatalf("NewSessionIdentity: %v", err)
	}

	st.SaveResumable(ResumableRecord{
		ClientID:        "p1",
		Username:        "astra",
		SessionID:       sessionID,
		ResumeToken:     resumeToken,
		NegotiatedCodec: CodecOpus,
	})

	rec, err := st.Resume(sessionID, resumeToken)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if rec.ClientID != "p1" || rec.ResumeToken == resumeToken {
		t.Fatalf("expected resume to rotate token and preserve client id, got %+v", rec)
	}
}

func TestResumeFailsOnWrongSessionID(t *testing.T) {
	st := NewStore(30 * time.Second)
	sessionID, resumeToken, _ := NewSessionIdentity()
	st.SaveResumable(ResumableRecord{ClientID: "p1", SessionID: sessionID, ResumeToken: resumeToken})

	if _, err := st.Resume("wrong-session-id", resumeToken); err != ErrResumeFailed {
		t.Fatalf("err = %v, want ErrResumeFailed", err)
	}
}

func TestResumeFailsWhenClientAlreadyLive(t *testing.T) {
	st := NewStore(30 * time.Second)
	sessionID, resumeToken, _ := NewSessionIdentity()
	st.SaveResumable(ResumableRecord{ClientID: "p1", SessionID: sessionID, ResumeToken: resumeToken})
	st.Put(&Session{ClientID: "p1"})

	if _, err := st.Resume(sessionID, resumeToken); err != ErrAlreadyLive {
		t.Fatalf("err = %v, want ErrAlreadyLive", err)
	}
}

func TestResumeFailsAfterExpiry(t *testing.T) {
	st := NewStore(1 * time.Millisecond)
	sessionID, resumeToken, _ := NewSessionIdentity()
	st.SaveResumable(ResumableRecord{ClientID: "p1", SessionID: sessionID, ResumeToken: resumeToken})

	time.Sleep(10 * time.Millisecond)

	if _, err := st.Resume(sessionID, resumeToken); err != ErrResumeFailed {
		t.Fatalf("err = %v, want ErrResumeFailed", err)
	}
}
