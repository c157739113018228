// Command agent connects to a rendezvous broker, registers under a fixed
// AgentId, and — each time it is paired with a client — runs the Noise XX
// responder role and echoes decrypted application payloads back to the
// client, exactly like the teacher's echo example but end-to-end encrypted
// and relayed through the broker.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/liamsto/alaric/internal/agentdriver"
	"github.com/liamsto/alaric/internal/buildinfo"
	"github.com/liamsto/alaric/internal/ids"
	"github.com/liamsto/alaric/internal/keys"
	"github.com/liamsto/alaric/internal/secure"
)

func main() {
	os.Exit(run())
}

func run() int {
	log := logrus.StandardLogger()
	log.SetLevel(parseLogLevel(os.Getenv(buildinfo.EnvLogLevel)))

	rawAgentId := os.Getenv(buildinfo.EnvAgentId)
	if rawAgentId == "" {
		rawAgentId = buildinfo.DefaultAgentId
	}
	agentId, err := ids.NewAgentId(rawAgentId)
	if err != nil {
		log.WithError(err).WithField("agent_id", rawAgentId).Error("invalid AGENT_ID")
		return 1
	}

	serverAddr := os.Getenv(buildinfo.EnvServerAddr)
	if serverAddr == "" {
		serverAddr = buildinfo.DefaultListenAddr
	}

	staticKey, err := keys.Resolve(secure.CipherSuite())
	if err != nil {
		log.WithError(err).Error("failed to establish static identity key")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.WithField("signal", sig.String()).Info("received shutdown signal")
		cancel()
	}()

	driver := agentdriver.New(serverAddr, agentId, staticKey, agentdriver.WithLogger(log))
	if err := driver.Run(ctx); err != nil {
		log.WithError(err).Error("agent driver exited with error")
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
