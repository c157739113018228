// Package keys resolves the "default" static Noise keypair each driver uses.
// Persistent, out-of-band-trusted per-identity keys and pinning/trust-on-
// first-use are an open question spec §9 leaves unresolved; this package
// implements the documented fallback: an environment-provided key if present,
// else a freshly generated one for the lifetime of the process.
package keys

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/flynn/noise"
)

// StaticKeyEnvVar, if set, must hold a 64-character hex-encoded Curve25519
// private key. It is used verbatim as the driver's static keypair so that an
// operator can pin a stable identity across restarts without a full
// trust-on-first-use store.
const StaticKeyEnvVar = "ALARIC_STATIC_KEY_HEX"

// Resolve returns the static keypair a driver should present for the Noise
// XX handshake: the key named by ALARIC_STATIC_KEY_HEX if set, otherwise a
// freshly generated keypair.
func Resolve(cs noise.CipherSuite) (noise.DHKey, error) {
	if hexKey := os.Getenv(StaticKeyEnvVar); hexKey != "" {
		return fromHex(cs, hexKey)
	}
	return cs.GenerateKeypair(rand.Reader)
}

func fromHex(cs noise.CipherSuite, hexKey string) (noise.DHKey, error) {
	priv, err := hex.DecodeString(hexKey)
	if err != nil {
		return noise.DHKey{}, fmt.Errorf("keys: %s is not valid hex: %w", StaticKeyEnvVar, err)
	}
	if len(priv) != 32 {
		return noise.DHKey{}, fmt.Errorf("keys: %s must decode to 32 bytes, got %d", StaticKeyEnvVar, len(priv))
	}
	return cs.GenerateKeypair(newFixedReader(priv))
}

// fixedReader replays a fixed byte slice, letting GenerateKeypair derive the
// public half of an operator-supplied private key deterministically.
type fixedReader struct{ b []byte }

func newFixedReader(b []byte) *fixedReader { return &fixedReader{b: b} }

func (f *fixedReader) Read(p []byte) (int, error) {
	n := copy(p, f.b)
	return n, nil
}
