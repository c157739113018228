// Package agentdriver implements the agent side of the system: connect to
// the broker, register under a fixed AgentId, and once paired with a
// client, run the Noise XX responder role and serve application messages
// until the pairing ends, then reconnect and wait to be paired again.
package agentdriver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"

	"github.com/liamsto/alaric/internal/backoff"
	"github.com/liamsto/alaric/internal/ids"
	"github.com/liamsto/alaric/internal/protocol"
	"github.com/liamsto/alaric/internal/secure"
)

// MessageHandler processes one decrypted application message from the
// paired client and returns an optional reply (nil means send nothing
// back).
type MessageHandler func(ctx context.Context, msg []byte) ([]byte, error)

// Echo is the default MessageHandler: it returns every message unchanged,
// matching the teacher's echo examples.
func Echo(_ context.Context, msg []byte) ([]byte, error) {
	return msg, nil
}

// Driver owns the agent's reconnect loop.
type Driver struct {
	serverAddr string
	agentId    ids.AgentId
	staticKey  noise.DHKey
	backoff    *backoff.Fixed
	log        *logrus.Logger
	handler    MessageHandler
}

// Option configures a Driver at construction time.
type Option func(*Driver)

// WithLogger overrides the default logrus.Logger.
func WithLogger(l *logrus.Logger) Option {
	return func(d *Driver) { d.log = l }
}

// WithHandler overrides the default Echo handler.
func WithHandler(h MessageHandler) Option {
	return func(d *Driver) { d.handler = h }
}

// WithBackoff overrides the default one-second reconnect delay.
func WithBackoff(b *backoff.Fixed) Option {
	return func(d *Driver) { d.backoff = b }
}

// New builds a Driver that reconnects to serverAddr under agentId, using
// staticKey as its long-term Noise identity.
func New(serverAddr string, agentId ids.AgentId, staticKey noise.DHKey, opts ...Option) *Driver {
	d := &Driver{
		serverAddr: serverAddr,
		agentId:    agentId,
		staticKey:  staticKey,
		backoff:    backoff.New(reconnectDelay),
		log:        logrus.StandardLogger(),
		handler:    Echo,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// reconnectDelay is the fixed delay spec §4.5 requires between reconnect
// attempts.
const reconnectDelay = time.Second

// Run drives the reconnect loop until ctx is canceled, at which point it
// returns nil. Any other outcome (a malformed response from the broker, a
// handshake failure) is logged and treated as a reason to back off and
// retry, never as a fatal error for the process.
func (d *Driver) Run(ctx context.Context) error {
	log := d.log.WithField("agent_id", d.agentId.String())

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := d.runOnce(ctx, log); err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("connection attempt ended, will retry")
		}

		if ctx.Err() != nil {
			return nil
		}
		if err := d.backoff.Wait(ctx); err != nil {
			return nil
		}
	}
}

func (d *Driver) runOnce(ctx context.Context, log *logrus.Entry) error {
	conn, err := net.Dial("tcp", d.serverAddr)
	if err != nil {
		return fmt.Errorf("agentdriver: dial: %w", err)
	}
	defer conn.Close()

	// conn.Close() is the only way to unblock a blocking Read on this
	// connection when the caller wants to shut down mid-handshake or
	// mid-serve; this goroutine exits once runOnce returns and closes conn
	// via its own defer above.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	req := protocol.NewAgentHandshakeRequest(d.agentId)
	if err := protocol.WriteJSONFrame(conn, req); err != nil {
		return fmt.Errorf("agentdriver: send handshake request: %w", err)
	}

	var resp protocol.HandshakeResponse
	if err := protocol.ReadJSONFrame(conn, &resp); err != nil {
		return fmt.Errorf("agentdriver: read handshake response: %w", err)
	}
	if !resp.Accepted {
		return fmt.Errorf("agentdriver: registration rejected: %s (%s)", resp.Code, resp.Message)
	}
	log.Info("registered with broker, waiting to be paired")

	channel, err := secure.EstablishResponder(conn, d.staticKey)
	if err != nil {
		return fmt.Errorf("agentdriver: noise handshake: %w", err)
	}
	log.Info("paired with client, secure channel established")

	return serve(ctx, channel, d.handler)
}

// serve relays decrypted application messages to handler until the channel
// errors (the client disconnected, or the relay tore the connection down)
// or ctx is canceled.
func serve(ctx context.Context, channel *secure.Channel, handler MessageHandler) error {
	for {
		msg, err := channel.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("agentdriver: recv: %w", err)
		}

		reply, err := handler(ctx, msg)
		if err != nil {
			return fmt.Errorf("agentdriver: handler: %w", err)
		}
		if reply == nil {
			continue
		}
		if err := channel.Send(reply); err != nil {
			return fmt.Errorf("agentdriver: send: %w", err)
		}
	}
}
