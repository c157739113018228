package metrics

import "testing"

func TestDefaultMetricsCounters(t *testing.T) {
	m := NewDefaultMetrics()

	m.HandshakeAccepted("agent")
	m.HandshakeAccepted("client")
	m.HandshakeRejected("client", "agent_unavailable")
	m.AgentRegistered()
	m.AgentRegistered()
	m.AgentDeregistered()
	m.BytesRelayed(128)
	m.BytesRelayed(-5) // ignored

	got := m.Snapshot()
	want := Snapshot{
		HandshakesAccepted: 2,
		HandshakesRejected: 1,
		AgentsWaiting:      1,
		BytesRelayedTotal:  128,
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestNoopMetricsDiscardsEverything(t *testing.T) {
	m := Noop()
	m.HandshakeAccepted("agent")
	m.HandshakeRejected("client", "invalid_request")
	m.AgentRegistered()
	m.BytesRelayed(1024)

	if got := m.Snapshot(); got != (Snapshot{}) {
		t.Fatalf("expected zero snapshot, got %+v", got)
	}
}
