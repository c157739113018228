// Package server implements the rendezvous broker's accept loop: it speaks
// just enough of the control-plane protocol to pair an agent with a client,
// then gets out of the way — once paired, the two sides run their own
// end-to-end Noise XX channel through the server, which relays opaque bytes
// without ever decrypting them (spec §4.2/§4.3).
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/liamsto/alaric/internal/authn"
	"github.com/liamsto/alaric/internal/ids"
	"github.com/liamsto/alaric/internal/metrics"
	"github.com/liamsto/alaric/internal/protocol"
	"github.com/liamsto/alaric/internal/registry"
	"github.com/liamsto/alaric/internal/splice"
)

// Server runs the accept loop and pairs agents with clients. It holds no
// application-layer secrets: the Noise handshake between an agent and a
// client happens entirely inside the bytes it relays after pairing.
type Server struct {
	listener net.Listener
	registry *registry.Registry
	auth     authn.Authenticator
	metrics  metrics.Metrics
	log      *logrus.Logger

	sessionCounter atomic.Uint64
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithAuthenticator overrides the default permissive Authenticator.
func WithAuthenticator(a authn.Authenticator) Option {
	return func(s *Server) { s.auth = a }
}

// WithMetrics overrides the default no-op Metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger overrides the default logrus.Logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New wraps an already-listening net.Listener with a Server.
func New(l net.Listener, opts ...Option) *Server {
	s := &Server{
		listener: l,
		registry: registry.New(),
		auth:     authn.Permissive,
		metrics:  metrics.Noop(),
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve runs the accept loop until ctx is canceled or the listener fails.
// It returns nil on a clean shutdown (ctx canceled) and the listener's
// error otherwise.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

// Metrics returns the Metrics sink this server reports against, mirroring
// aznet's Conn.GetMetrics() accessor.
func (s *Server) Metrics() metrics.Metrics {
	return s.metrics
}

func (s *Server) nextSessionId() ids.SessionId {
	return ids.SessionId(s.sessionCounter.Add(1))
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	traceId := uuid.NewString()
	log := s.log.WithFields(logrus.Fields{
		"trace_id":    traceId,
		"remote_addr": conn.RemoteAddr().String(),
	})

	var req protocol.HandshakeRequest
	if err := protocol.ReadJSONFrame(conn, &req); err != nil {
		log.WithError(err).Debug("failed to read handshake request")
		s.reject(conn, log, protocol.CodeInvalidRequest, err.Error())
		conn.Close()
		return
	}

	if req.ProtocolVersion != protocol.ProtocolVersion {
		s.reject(conn, log, protocol.CodeUnsupportedProtocolVersion,
			fmt.Sprintf("server speaks protocol version %d", protocol.ProtocolVersion))
		conn.Close()
		return
	}

	if err := s.auth.Authenticate(req); err != nil {
		s.reject(conn, log, protocol.CodeUnauthorized, "authentication failed")
		conn.Close()
		return
	}

	switch req.Role {
	case protocol.RoleAgent:
		s.handleAgent(ctx, conn, log, req)
	case protocol.RoleClient:
		s.handleClient(ctx, conn, log, req)
	default:
		s.reject(conn, log, protocol.CodeInvalidRequest, "unknown role")
		conn.Close()
	}
}

func (s *Server) handleAgent(ctx context.Context, conn net.Conn, log *logrus.Entry, req protocol.HandshakeRequest) {
	log = log.WithField("agent_id", req.AgentId.String())

	handoff, err := s.registry.Insert(req.AgentId)
	if err != nil {
		s.reject(conn, log, protocol.CodeAgentIdInUse, "agent id already registered")
		conn.Close()
		return
	}

	sessionId := s.nextSessionId()
	log = log.WithField("session_id", sessionId)
	if err := protocol.WriteJSONFrame(conn, protocol.Accept(sessionId)); err != nil {
		log.WithError(err).Debug("failed to send accept to agent")
		s.registry.Remove(req.AgentId)
		conn.Close()
		return
	}
	s.metrics.HandshakeAccepted("agent")
	s.metrics.AgentRegistered()
	log.Info("agent registered, waiting for client")

	clientConn, err := s.waitForClient(ctx, conn, handoff)
	if err != nil {
		s.registry.Remove(req.AgentId)
		s.metrics.AgentDeregistered()
		conn.Close()
		if !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("agent connection ended before pairing")
		}
		return
	}

	s.metrics.AgentDeregistered()
	log.Info("agent paired with client, relaying")
	n := splice.Splice(ctx, conn, clientConn)
	log.WithField("bytes_relayed", n).Info("splice ended")
	s.metrics.BytesRelayed(n)
}

// errEarlyActivity is the internal sentinel for an agent sending bytes
// before it has been paired with a client — a protocol violation, since an
// agent must stay silent on the control connection until handed off.
var errEarlyActivity = errors.New("server: agent sent data before pairing")

// waitForClient blocks until a client is handed off to this agent, the
// agent connection itself produces unexpected activity or closes, or ctx is
// canceled, whichever happens first.
//
// A background goroutine holds a blocking Read on agentConn the entire
// time: per the secure channel's Noise XX roles the agent is always the
// responder and so never speaks first, so any bytes arriving before pairing
// are a protocol violation. Once the outer select decides the wait is over,
// the read is joined before control returns (after being forced to return
// via SetReadDeadline when a handoff or ctx cancellation ended the wait), so
// it can never race with the splice's own Read of the same connection
// afterward.
func (s *Server) waitForClient(ctx context.Context, agentConn net.Conn, handoff <-chan net.Conn) (net.Conn, error) {
	earlyActivity := make(chan error, 1)
	readDone := make(chan struct{})

	go func() {
		defer close(readDone)
		var probe [1]byte
		n, err := agentConn.Read(probe[:])
		if n > 0 {
			earlyActivity <- errEarlyActivity
			return
		}
		if err != nil {
			earlyActivity <- err
		}
	}()

	stopProbe := func() {
		agentConn.SetReadDeadline(time.Now())
		<-readDone
		agentConn.SetReadDeadline(time.Time{})
	}

	select {
	case clientConn := <-handoff:
		stopProbe()
		return clientConn, nil
	case err := <-earlyActivity:
		<-readDone
		return nil, err
	case <-ctx.Done():
		stopProbe()
		return nil, ctx.Err()
	}
}

func (s *Server) handleClient(ctx context.Context, conn net.Conn, log *logrus.Entry, req protocol.HandshakeRequest) {
	log = log.WithFields(logrus.Fields{
		"client_id":       req.ClientId.String(),
		"target_agent_id": req.TargetAgentId.String(),
	})

	res, err := s.registry.Reserve(req.TargetAgentId)
	if err != nil {
		s.reject(conn, log, protocol.CodeAgentUnavailable, "requested agent is not connected")
		conn.Close()
		return
	}

	sessionId := s.nextSessionId()
	log = log.WithField("session_id", sessionId)
	if err := protocol.WriteJSONFrame(conn, protocol.Accept(sessionId)); err != nil {
		log.WithError(err).Debug("failed to send accept to client")
		s.registry.Rollback(res)
		conn.Close()
		return
	}
	s.metrics.HandshakeAccepted("client")
	log.Info("client paired with agent, handing off")

	// Ownership of conn now transfers to the agent-side goroutine that reads
	// it off the handoff channel and runs the splice; this goroutine must not
	// close it.
	res.Commit(conn)
}

func (s *Server) reject(conn net.Conn, log *logrus.Entry, code protocol.ErrorCode, message string) {
	s.metrics.HandshakeRejected("", string(code))
	log.WithFields(logrus.Fields{"code": code, "message": message}).Info("rejecting handshake")
	if err := protocol.WriteJSONFrame(conn, protocol.Reject(code, message)); err != nil {
		log.WithError(err).Debug("failed to send reject response")
	}
}
