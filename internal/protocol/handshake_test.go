package protocol

import (
	"bytes"
	"testing"

	"github.com/liamsto/alaric/internal/ids"
)

func mustAgentId(t *testing.T, s string) ids.AgentId {
	t.Helper()
	id, err := ids.NewAgentId(s)
	if err != nil {
		t.Fatalf("agent id %q: %v", s, err)
	}
	return id
}

func mustClientId(t *testing.T, s string) ids.ClientId {
	t.Helper()
	id, err := ids.NewClientId(s)
	if err != nil {
		t.Fatalf("client id %q: %v", s, err)
	}
	return id
}

func TestHandshakeRequestAgentJSONRoundTrip(t *testing.T) {
	in := NewAgentHandshakeRequest(mustAgentId(t, "agent-route"))

	var buf bytes.Buffer
	if err := WriteJSONFrame(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out HandshakeRequest
	if err := ReadJSONFrame(&buf, &out); err != nil {
		t.Fatalf("read: %v", err)
	}

	if out.Role != RoleAgent || out.AgentId != in.AgentId || out.ProtocolVersion != ProtocolVersion {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestHandshakeRequestClientJSONRoundTrip(t *testing.T) {
	in := NewClientHandshakeRequest(mustClientId(t, "client-route"), mustAgentId(t, "agent-route"))

	data, err := in.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out HandshakeRequest
	if err := out.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if out.Role != RoleClient || out.ClientId != in.ClientId || out.TargetAgentId != in.TargetAgentId {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestHandshakeRequestRejectsMissingFields(t *testing.T) {
	var out HandshakeRequest
	err := out.UnmarshalJSON([]byte(`{"role":"agent","protocol_version":1,"metadata":{}}`))
	if err == nil {
		t.Fatal("expected error for agent request missing agent_id")
	}
}

func TestHandshakeRequestRejectsUnknownRole(t *testing.T) {
	var out HandshakeRequest
	err := out.UnmarshalJSON([]byte(`{"role":"supervisor","protocol_version":1}`))
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestHandshakeResponseAcceptedJSONRoundTrip(t *testing.T) {
	in := Accept(ids.SessionId(42))

	var buf bytes.Buffer
	if err := WriteJSONFrame(&buf, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out HandshakeResponse
	if err := ReadJSONFrame(&buf, &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !out.Accepted || out.SessionId != 42 {
		t.Fatalf("round trip mismatch: got %+v", out)
	}
}

func TestHandshakeResponseRejectedJSONRoundTrip(t *testing.T) {
	in := Reject(CodeAgentUnavailable, "target agent not connected")

	data, err := in.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out HandshakeResponse
	if err := out.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Accepted || out.Code != CodeAgentUnavailable || out.Message != in.Message {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestMetadataStableSortedOutput(t *testing.T) {
	req := NewAgentHandshakeRequest(mustAgentId(t, "agent-route"))
	req.Metadata = Metadata{"z": "1", "a": "2", "m": "3"}

	data, err := req.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// encoding/json sorts map keys on output; verify "a" precedes "m" precedes "z".
	s := string(data)
	ai := indexOf(s, `"a":`)
	mi := indexOf(s, `"m":`)
	zi := indexOf(s, `"z":`)
	if !(ai < mi && mi < zi) {
		t.Fatalf("expected sorted metadata keys, got %s", s)
	}
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
