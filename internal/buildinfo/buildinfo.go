// Package buildinfo holds the handful of constants shared across all three
// binaries: the default listen/dial address (spec §6: "one TCP listen
// socket (default port baked into the binary)") and the environment
// variable names each reads at startup.
package buildinfo

// DefaultListenAddr is the address cmd/server binds by default, and the
// address cmd/agent and cmd/client dial by default. An operator running
// agent or client against a non-default server overrides it with
// ALARIC_SERVER_ADDR; this is a deployment convenience, not one of the
// handshake-relevant environment variables spec §6 enumerates.
const DefaultListenAddr = "127.0.0.1:48657"

const (
	EnvServerAddr    = "ALARIC_SERVER_ADDR"
	EnvAgentId       = "AGENT_ID"
	EnvClientId      = "CLIENT_ID"
	EnvTargetAgentId = "TARGET_AGENT_ID"
	EnvLogLevel      = "LOG_LEVEL"
)

const (
	DefaultAgentId        = "agent-default"
	DefaultClientIdPrefix = "client-"
)
