// Package clientdriver implements the client side of the system: a
// single-shot connect to the broker, a request to be paired with a named
// agent, and the Noise XX initiator role over the resulting secure channel.
// Unlike the agent driver, there is no reconnect loop — a rejected or
// failed pairing attempt is reported to the caller directly.
package clientdriver

import (
	"context"
	"fmt"
	"net"

	"github.com/flynn/noise"

	"github.com/liamsto/alaric/internal/ids"
	"github.com/liamsto/alaric/internal/protocol"
	"github.com/liamsto/alaric/internal/secure"
)

// Session is an established, paired secure channel to a specific agent.
type Session struct {
	conn    net.Conn
	Channel *secure.Channel
}

// Close tears down the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Connect dials serverAddr, requests pairing with targetAgentId under
// clientId, and — if the broker accepts — runs the Noise XX initiator
// handshake directly with the agent through the resulting relay. Every
// step is abandoned if ctx is canceled first.
func Connect(ctx context.Context, serverAddr string, clientId ids.ClientId, targetAgentId ids.AgentId, staticKey noise.DHKey) (*Session, error) {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", serverAddr)
	if err != nil {
		return nil, fmt.Errorf("clientdriver: dial: %w", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	req := protocol.NewClientHandshakeRequest(clientId, targetAgentId)
	if err := protocol.WriteJSONFrame(conn, req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clientdriver: send handshake request: %w", err)
	}

	var resp protocol.HandshakeResponse
	if err := protocol.ReadJSONFrame(conn, &resp); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clientdriver: read handshake response: %w", err)
	}
	if !resp.Accepted {
		conn.Close()
		return nil, fmt.Errorf("clientdriver: pairing rejected: %s (%s)", resp.Code, resp.Message)
	}

	channel, err := secure.EstablishInitiator(conn, staticKey)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("clientdriver: noise handshake: %w", err)
	}

	return &Session{conn: conn, Channel: channel}, nil
}
