package protocol

import (
	"encoding/json"
	"testing"
)

func TestEncodeDecodeEnvelope(t *testing.T) {
	raw, err := Encode(TypeAuthenticate, AuthenticatePayload{
		Username: "astra",
		AuthCode: "ABC123",
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Type != TypeAuthenticate {
		t.Fatalf("type = %q, want %q", env.Type, TypeAuthenticate)
	}

	var payload AuthenticatePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Username != "astra" || payload.AuthCode != "ABC123" {
		t.Fatalf("payload mismatch: %+v", payload)
	}
}

func TestDecodeRejectsMalformedEnvelope(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected error decoding malformed envelope")
	}
}

func TestICECandidateCompleteMarker(t *testing.T) {
	raw, err := Encode(TypeICECandidate, ICECandidatePayload{Complete: true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	env, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var payload ICECandidatePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !payload.Complete {
		t.Fatal("expected complete=true to round-trip")
	}
	if payload.Candidate != "" {
		t.Fatalf("expected empty candidate, got %q", payload.Candidate)
	}
}
