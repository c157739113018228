package authn

import (
	"testing"

	"github.com/liamsto/alaric/internal/ids"
	"github.com/liamsto/alaric/internal/protocol"
)

func TestPermissiveAcceptsAnyRequest(t *testing.T) {
	agentId, err := ids.NewAgentId("agent-route")
	if err != nil {
		t.Fatalf("agent id: %v", err)
	}
	req := protocol.NewAgentHandshakeRequest(agentId)
	if err := Permissive.Authenticate(req); err != nil {
		t.Fatalf("expected acceptance, got %v", err)
	}
}

func TestRequireTokenRejectsMissingAuth(t *testing.T) {
	agentId, err := ids.NewAgentId("agent-route")
	if err != nil {
		t.Fatalf("agent id: %v", err)
	}
	req := protocol.NewAgentHandshakeRequest(agentId)

	auth := RequireToken("secret")
	if err := auth.Authenticate(req); err != ErrUnauthorized {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}

func TestRequireTokenAcceptsMatchingToken(t *testing.T) {
	agentId, err := ids.NewAgentId("agent-route")
	if err != nil {
		t.Fatalf("agent id: %v", err)
	}
	req := protocol.NewAgentHandshakeRequest(agentId)
	req.Auth = &protocol.AuthRequest{Method: "bearer", Token: "secret"}

	auth := RequireToken("secret")
	if err := auth.Authenticate(req); err != nil {
		t.Fatalf("expected acceptance, got %v", err)
	}
}

func TestRequireTokenRejectsWrongToken(t *testing.T) {
	agentId, err := ids.NewAgentId("agent-route")
	if err != nil {
		t.Fatalf("agent id: %v", err)
	}
	req := protocol.NewAgentHandshakeRequest(agentId)
	req.Auth = &protocol.AuthRequest{Method: "bearer", Token: "wrong"}

	auth := RequireToken("secret")
	if err := auth.Authenticate(req); err != ErrUnauthorized {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}
