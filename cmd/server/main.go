// Command server runs the rendezvous broker: it accepts TCP connections
// from agents and clients, pairs them by AgentId, and relays the encrypted
// bytes of their Noise XX session without ever decrypting them.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/liamsto/alaric/internal/buildinfo"
	"github.com/liamsto/alaric/internal/metrics"
	"github.com/liamsto/alaric/internal/server"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logrus.StandardLogger()
	log.SetLevel(parseLogLevel(os.Getenv(buildinfo.EnvLogLevel)))

	addr := os.Getenv(buildinfo.EnvServerAddr)
	if addr == "" {
		addr = buildinfo.DefaultListenAddr
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.WithError(err).WithField("addr", addr).Error("failed to bind listen socket")
		return 1
	}
	defer listener.Close()
	log.WithField("addr", listener.Addr().String()).Info("listening")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("received shutdown signal")
		cancel()
	}()

	srv := server.New(listener,
		server.WithMetrics(metrics.NewDefaultMetrics()),
		server.WithLogger(log),
	)

	if err := srv.Serve(ctx); err != nil {
		log.WithError(err).Error("accept loop exited with error")
		return 1
	}
	log.Info("shut down cleanly")
	return 0
}

func parseLogLevel(raw string) logrus.Level {
	if raw == "" {
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(raw)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
