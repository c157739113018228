package ids

import "testing"

func TestNewAgentIdValidation(t *testing.T) {
	cases := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid", "agent-route", false},
		{"minimum length", "abc", false},
		{"maximum length of zero bytes", string(make([]byte, 64)), true}, // zero bytes aren't valid chars
		{"too short", "ab", true},
		{"contains space", "agent id", true},
		{"empty", "", true},
		{"dots underscores dashes", "agent.route_1-a", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAgentId(tc.value)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error for %q, got none", tc.value)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.value, err)
			}
		})
	}
}

func TestNewAgentIdLengthBoundaries(t *testing.T) {
	tooLong := make([]byte, 65)
	for i := range tooLong {
		tooLong[i] = 'a'
	}
	if _, err := NewAgentId(string(tooLong)); err == nil {
		t.Fatal("expected error for 65-byte id")
	}

	exact := make([]byte, 64)
	for i := range exact {
		exact[i] = 'a'
	}
	if _, err := NewAgentId(string(exact)); err != nil {
		t.Fatalf("unexpected error for 64-byte id: %v", err)
	}
}

func TestNewClientIdValidation(t *testing.T) {
	if _, err := NewClientId("client-route"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := NewClientId("no"); err == nil {
		t.Fatal("expected error for 2-byte id")
	}
}

func TestAgentIdJSONRoundTrip(t *testing.T) {
	id, err := NewAgentId("agent-route")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := id.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back AgentId
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != id {
		t.Fatalf("round trip mismatch: got %q, want %q", back, id)
	}
}

func TestAgentIdJSONRejectsInvalid(t *testing.T) {
	var a AgentId
	if err := a.UnmarshalJSON([]byte(`"agent id"`)); err == nil {
		t.Fatal("expected error decoding id with a space")
	}
}
