// Package ids implements the validated identifier types shared by the
// handshake wire format and the agent registry: AgentId and ClientId.
package ids

import (
	"encoding/json"
	"fmt"
)

const (
	minLen = 3
	maxLen = 64
)

// Error is returned when an identifier fails validation.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s id %s", e.Kind, e.Message)
}

func newError(kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func validate(kind, value string) error {
	if n := len(value); n < minLen || n > maxLen {
		return newError(kind, fmt.Sprintf("must be between %d and %d bytes, got %d", minLen, maxLen, n))
	}
	for i := 0; i < len(value); i++ {
		b := value[i]
		switch {
		case b >= 'a' && b <= 'z':
		case b >= 'A' && b <= 'Z':
		case b >= '0' && b <= '9':
		case b == '-' || b == '_' || b == '.':
		default:
			return newError(kind, "contains invalid characters (allowed: a-z, A-Z, 0-9, '-', '_', '.')")
		}
	}
	return nil
}

// AgentId is the validated, immutable identifier an agent registers under.
type AgentId string

// NewAgentId validates value and returns it as an AgentId.
func NewAgentId(value string) (AgentId, error) {
	if err := validate("agent", value); err != nil {
		return "", err
	}
	return AgentId(value), nil
}

func (a AgentId) String() string { return string(a) }

// MarshalJSON renders the id as a plain JSON string.
func (a AgentId) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(a))
}

// UnmarshalJSON validates the incoming string before accepting it.
func (a *AgentId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := NewAgentId(s)
	if err != nil {
		return err
	}
	*a = id
	return nil
}

// ClientId is the validated, immutable identifier a client presents itself as.
type ClientId string

// NewClientId validates value and returns it as a ClientId.
func NewClientId(value string) (ClientId, error) {
	if err := validate("client", value); err != nil {
		return "", err
	}
	return ClientId(value), nil
}

func (c ClientId) String() string { return string(c) }

// MarshalJSON renders the id as a plain JSON string.
func (c ClientId) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(c))
}

// UnmarshalJSON validates the incoming string before accepting it.
func (c *ClientId) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	id, err := NewClientId(s)
	if err != nil {
		return err
	}
	*c = id
	return nil
}

// SessionId is the server-assigned, monotonically increasing correlation id
// returned in an accepted handshake response. It is not a security token.
type SessionId uint64
