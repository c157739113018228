package agentdriver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/liamsto/alaric/internal/backoff"
	"github.com/liamsto/alaric/internal/ids"
	"github.com/liamsto/alaric/internal/protocol"
	"github.com/liamsto/alaric/internal/secure"
)

func TestDriverReconnectsAfterRejection(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	attempts := make(chan struct{}, 4)
	agentKey, err := secure.GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("static key: %v", err)
	}

	go func() {
		// First attempt: reject.
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		var req protocol.HandshakeRequest
		protocol.ReadJSONFrame(conn, &req)
		protocol.WriteJSONFrame(conn, protocol.Reject(protocol.CodeInvalidRequest, "try again"))
		conn.Close()
		attempts <- struct{}{}

		// Second attempt: accept and complete a Noise handshake, then close.
		conn, err = listener.Accept()
		if err != nil {
			return
		}
		protocol.ReadJSONFrame(conn, &req)
		protocol.WriteJSONFrame(conn, protocol.Accept(ids.SessionId(1)))
		serverKey, _ := secure.GenerateStaticKeypair()
		secure.EstablishInitiator(conn, serverKey)
		conn.Close()
		attempts <- struct{}{}
	}()

	agentId, err := ids.NewAgentId("agent-retry")
	if err != nil {
		t.Fatalf("agent id: %v", err)
	}
	d := New(listener.Addr().String(), agentId, agentKey, WithBackoff(backoff.New(10*time.Millisecond)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	select {
	case <-attempts:
	case <-time.After(2 * time.Second):
		t.Fatal("first attempt did not complete")
	}
	select {
	case <-attempts:
	case <-time.After(2 * time.Second):
		t.Fatal("second attempt did not complete")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not shut down after cancellation")
	}
}

func TestEchoHandlerReturnsInputUnchanged(t *testing.T) {
	out, err := Echo(context.Background(), []byte("hello"))
	if err != nil {
		t.Fatalf("echo: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("got %q, want %q", out, "hello")
	}
}
