package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/liamsto/alaric/internal/ids"
)

// ProtocolVersion is the only handshake protocol version this server speaks.
const ProtocolVersion uint16 = 1

// Role discriminates the two HandshakeRequest variants.
type Role string

const (
	RoleAgent  Role = "agent"
	RoleClient Role = "client"
)

// AuthRequest is carried through the handshake but, per spec §9, never
// inspected by the default (permissive) Authenticator. See internal/authn.
type AuthRequest struct {
	Method string `json:"method"`
	Token  string `json:"token"`
}

// Metadata is a string-to-string map with stable, sorted iteration order
// when marshaled — encoding/json already sorts map keys on output, so a
// plain map satisfies the "stable, sorted iteration order" requirement
// without extra bookkeeping.
type Metadata map[string]string

// HandshakeRequest is the tagged union (on "role") a new connection sends
// first. Exactly one of Agent/Client fields is populated, selected by Role.
type HandshakeRequest struct {
	Role            Role
	ProtocolVersion uint16
	Auth            *AuthRequest
	Metadata        Metadata

	// Agent variant fields.
	AgentId ids.AgentId

	// Client variant fields.
	ClientId      ids.ClientId
	TargetAgentId ids.AgentId
}

// NewAgentHandshakeRequest builds the agent variant of HandshakeRequest.
func NewAgentHandshakeRequest(agentId ids.AgentId) HandshakeRequest {
	return HandshakeRequest{
		Role:            RoleAgent,
		ProtocolVersion: ProtocolVersion,
		Metadata:        Metadata{},
		AgentId:         agentId,
	}
}

// NewClientHandshakeRequest builds the client variant of HandshakeRequest.
func NewClientHandshakeRequest(clientId ids.ClientId, targetAgentId ids.AgentId) HandshakeRequest {
	return HandshakeRequest{
		Role:            RoleClient,
		ProtocolVersion: ProtocolVersion,
		Metadata:        Metadata{},
		ClientId:        clientId,
		TargetAgentId:   targetAgentId,
	}
}

type handshakeRequestWire struct {
	Role            Role         `json:"role"`
	ProtocolVersion uint16       `json:"protocol_version"`
	Auth            *AuthRequest `json:"auth,omitempty"`
	Metadata        Metadata     `json:"metadata"`
	AgentId         *ids.AgentId `json:"agent_id,omitempty"`
	ClientId        *ids.ClientId `json:"client_id,omitempty"`
	TargetAgentId   *ids.AgentId `json:"target_agent_id,omitempty"`
}

// MarshalJSON renders the role-tagged union with only the fields that
// variant carries.
func (h HandshakeRequest) MarshalJSON() ([]byte, error) {
	wire := handshakeRequestWire{
		Role:            h.Role,
		ProtocolVersion: h.ProtocolVersion,
		Auth:            h.Auth,
		Metadata:        h.Metadata,
	}
	if wire.Metadata == nil {
		wire.Metadata = Metadata{}
	}
	switch h.Role {
	case RoleAgent:
		wire.AgentId = &h.AgentId
	case RoleClient:
		wire.ClientId = &h.ClientId
		wire.TargetAgentId = &h.TargetAgentId
	default:
		return nil, fmt.Errorf("protocol: unknown handshake role %q", h.Role)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON parses the role-tagged union and validates that the fields
// required by the discriminated role are present.
func (h *HandshakeRequest) UnmarshalJSON(data []byte) error {
	var wire handshakeRequestWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	out := HandshakeRequest{
		Role:            wire.Role,
		ProtocolVersion: wire.ProtocolVersion,
		Auth:            wire.Auth,
		Metadata:        wire.Metadata,
	}
	if out.Metadata == nil {
		out.Metadata = Metadata{}
	}

	switch wire.Role {
	case RoleAgent:
		if wire.AgentId == nil {
			return fmt.Errorf("protocol: agent handshake missing agent_id")
		}
		out.AgentId = *wire.AgentId
	case RoleClient:
		if wire.ClientId == nil {
			return fmt.Errorf("protocol: client handshake missing client_id")
		}
		if wire.TargetAgentId == nil {
			return fmt.Errorf("protocol: client handshake missing target_agent_id")
		}
		out.ClientId = *wire.ClientId
		out.TargetAgentId = *wire.TargetAgentId
	default:
		return fmt.Errorf("protocol: unknown handshake role %q", wire.Role)
	}

	*h = out
	return nil
}

// ErrorCode enumerates HandshakeResponse rejection reasons.
type ErrorCode string

const (
	CodeUnsupportedProtocolVersion ErrorCode = "unsupported_protocol_version"
	CodeInvalidRequest             ErrorCode = "invalid_request"
	CodeAgentIdInUse               ErrorCode = "agent_id_in_use"
	CodeAgentUnavailable           ErrorCode = "agent_unavailable"
	CodeUnauthorized               ErrorCode = "unauthorized"
	CodeInternalError              ErrorCode = "internal_error"
)

// HandshakeResponse is the tagged union (on "status") the server sends back.
type HandshakeResponse struct {
	Accepted bool // true => Accepted fields populated, false => Rejected fields populated

	ProtocolVersion uint16
	SessionId       ids.SessionId // Accepted only

	Code    ErrorCode // Rejected only
	Message string    // Rejected only
}

// Accept builds an "accepted" HandshakeResponse.
func Accept(sessionId ids.SessionId) HandshakeResponse {
	return HandshakeResponse{
		Accepted:        true,
		ProtocolVersion: ProtocolVersion,
		SessionId:       sessionId,
	}
}

// Reject builds a "rejected" HandshakeResponse.
func Reject(code ErrorCode, message string) HandshakeResponse {
	return HandshakeResponse{
		Accepted:        false,
		ProtocolVersion: ProtocolVersion,
		Code:            code,
		Message:         message,
	}
}

type handshakeAcceptedWire struct {
	Status          string        `json:"status"`
	ProtocolVersion uint16        `json:"protocol_version"`
	SessionId       ids.SessionId `json:"session_id"`
}

type handshakeRejectedWire struct {
	Status          string    `json:"status"`
	ProtocolVersion uint16    `json:"protocol_version"`
	Code            ErrorCode `json:"code"`
	Message         string    `json:"message"`
}

// MarshalJSON renders the status-tagged union.
func (h HandshakeResponse) MarshalJSON() ([]byte, error) {
	if h.Accepted {
		return json.Marshal(handshakeAcceptedWire{
			Status:          "accepted",
			ProtocolVersion: h.ProtocolVersion,
			SessionId:       h.SessionId,
		})
	}
	return json.Marshal(handshakeRejectedWire{
		Status:          "rejected",
		ProtocolVersion: h.ProtocolVersion,
		Code:            h.Code,
		Message:         h.Message,
	})
}

// UnmarshalJSON parses the status-tagged union.
func (h *HandshakeResponse) UnmarshalJSON(data []byte) error {
	var status struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &status); err != nil {
		return err
	}

	switch status.Status {
	case "accepted":
		var wire handshakeAcceptedWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		*h = HandshakeResponse{
			Accepted:        true,
			ProtocolVersion: wire.ProtocolVersion,
			SessionId:       wire.SessionId,
		}
	case "rejected":
		var wire handshakeRejectedWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		*h = HandshakeResponse{
			Accepted:        false,
			ProtocolVersion: wire.ProtocolVersion,
			Code:            wire.Code,
			Message:         wire.Message,
		}
	default:
		return fmt.Errorf("protocol: unknown handshake status %q", status.Status)
	}
	return nil
}
