package clientdriver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/liamsto/alaric/internal/agentdriver"
	"github.com/liamsto/alaric/internal/ids"
	"github.com/liamsto/alaric/internal/secure"
	"github.com/liamsto/alaric/internal/server"
)

func TestConnectPairsAndExchangesMessages(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := server.New(listener)

	srvCtx, srvCancel := context.WithCancel(context.Background())
	defer srvCancel()
	srvDone := make(chan struct{})
	go func() {
		srv.Serve(srvCtx)
		close(srvDone)
	}()

	agentId, err := ids.NewAgentId("agent-integration")
	if err != nil {
		t.Fatalf("agent id: %v", err)
	}
	clientId, err := ids.NewClientId("client-integration")
	if err != nil {
		t.Fatalf("client id: %v", err)
	}

	agentKey, err := secure.GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("agent static key: %v", err)
	}
	clientKey, err := secure.GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("client static key: %v", err)
	}

	agentCtx, agentCancel := context.WithCancel(context.Background())
	defer agentCancel()
	driver := agentdriver.New(listener.Addr().String(), agentId, agentKey)
	agentDone := make(chan struct{})
	go func() {
		driver.Run(agentCtx)
		close(agentDone)
	}()

	// Give the agent a moment to register before the client asks for it.
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := Connect(ctx, listener.Addr().String(), clientId, agentId, clientKey)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer session.Close()

	msg := []byte("ping")
	if err := session.Channel.Send(msg); err != nil {
		t.Fatalf("send: %v", err)
	}
	got, err := session.Channel.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if string(got) != string(msg) {
		t.Fatalf("got %q, want echoed %q", got, msg)
	}

	agentCancel()
	select {
	case <-agentDone:
	case <-time.After(2 * time.Second):
		t.Fatal("agent driver did not shut down")
	}

	srvCancel()
	select {
	case <-srvDone:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestConnectRejectedWhenAgentAbsent(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := server.New(listener)

	srvCtx, srvCancel := context.WithCancel(context.Background())
	defer srvCancel()
	go srv.Serve(srvCtx)

	clientId, err := ids.NewClientId("client-lonely")
	if err != nil {
		t.Fatalf("client id: %v", err)
	}
	targetId, err := ids.NewAgentId("agent-nonexistent")
	if err != nil {
		t.Fatalf("agent id: %v", err)
	}
	clientKey, err := secure.GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("client static key: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := Connect(ctx, listener.Addr().String(), clientId, targetId, clientKey); err == nil {
		t.Fatal("expected connect to fail when no agent is registered")
	}
}
