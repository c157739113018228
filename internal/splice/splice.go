// Package splice implements the blind bidirectional byte relay between a
// paired agent and client connection (spec §4.3). The server never inspects
// what flows through it — it is ciphertext from the server's point of view.
package splice

import (
	"context"
	"io"
	"net"
	"sync"
	"sync/atomic"
)

// halfCloser is satisfied by net.TCPConn and similar transports that support
// shutting down only the write half of a full-duplex connection.
type halfCloser interface {
	CloseWrite() error
}

// Splice copies bytes between a and b in both directions concurrently until
// both directions have finished (EOF or error) or ctx is canceled. Each
// direction's EOF triggers a half-close (CloseWrite) on the destination
// rather than an immediate full close, so the other direction can keep
// draining in-flight data; if the destination doesn't support half-close,
// it is closed outright, which tears down the whole pairing.
// It returns the total number of bytes relayed across both directions.
func Splice(ctx context.Context, a, b net.Conn) int64 {
	defer a.Close()
	defer b.Close()

	var aToB, bToA atomic.Int64
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		n, _ := io.Copy(b, a)
		aToB.Store(n)
		closeWrite(b)
	}()
	go func() {
		defer wg.Done()
		n, _ := io.Copy(a, b)
		bToA.Store(n)
		closeWrite(a)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.Close()
		b.Close()
		<-done
	}

	return aToB.Load() + bToA.Load()
}

func closeWrite(conn net.Conn) {
	if hc, ok := conn.(halfCloser); ok {
		hc.CloseWrite()
		return
	}
	conn.Close()
}
