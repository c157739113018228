// Command client connects to a rendezvous broker, requests pairing with a
// target agent, and — once paired — relays stdin to the agent and the
// agent's replies to stdout over the end-to-end Noise XX channel. It is
// single-shot: a rejection or handshake failure exits non-zero immediately,
// with no reconnect attempt.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/liamsto/alaric/internal/buildinfo"
	"github.com/liamsto/alaric/internal/clientdriver"
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

	rawClientId := os.Getenv(buildinfo.EnvClientId)
	if rawClientId == "" {
		rawClientId = fmt.Sprintf("%s%d", buildinfo.DefaultClientIdPrefix, os.Getpid())
	}
	clientId, err := ids.NewClientId(rawClientId)
	if err != nil {
		log.WithError(err).WithField("client_id", rawClientId).Error("invalid CLIENT_ID")
		return 1
	}

	rawTargetAgentId := os.Getenv(buildinfo.EnvTargetAgentId)
	if rawTargetAgentId == "" {
		rawTargetAgentId = buildinfo.DefaultAgentId
	}
	targetAgentId, err := ids.NewAgentId(rawTargetAgentId)
	if err != nil {
		log.WithError(err).WithField("target_agent_id", rawTargetAgentId).Error("invalid TARGET_AGENT_ID")
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

	session, err := clientdriver.Connect(ctx, serverAddr, clientId, targetAgentId, staticKey)
	if err != nil {
		log.WithError(err).WithField("target_agent_id", targetAgentId.String()).Error("pairing failed")
		return 1
	}
	defer session.Close()
	log.WithField("target_agent_id", targetAgentId.String()).Info("paired, relaying stdin/stdout")

	return relay(ctx, session, log)
}

func relay(ctx context.Context, session *clientdriver.Session, log *logrus.Logger) int {
	recvErr := make(chan error, 1)
	go func() {
		for {
			msg, err := session.Channel.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			fmt.Fprintln(os.Stdout, string(msg))
		}
	}()

	sendErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := session.Channel.Send(scanner.Bytes()); err != nil {
				sendErr <- err
				return
			}
		}
		sendErr <- scanner.Err()
	}()

	select {
	case <-ctx.Done():
		return 0
	case err := <-recvErr:
		if err != nil {
			log.WithError(err).Warn("session ended")
			return 1
		}
		return 0
	case err := <-sendErr:
		if err != nil {
			log.WithError(err).Warn("stdin relay ended with error")
			return 1
		}
		return 0
	}
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
