// Package secure implements the end-to-end Noise_XX_25519_ChaChaPoly_SHA256
// channel described in spec §4.4: a three-message mutual handshake run over
// the relay once the rendezvous server has paired an agent and a client,
// followed by a transport phase of independently-keyed, independently-nonced
// AEAD frames the relay itself never decrypts.
package secure

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"
)

// handshakePrologue binds both peers to the same protocol identity before
// any key material is exchanged, preventing cross-protocol handshake replay.
var handshakePrologue = []byte("alaric/noise-xx-v1")

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// Exact wire sizes of the three XX handshake messages. The server never
// inspects these (it is a blind relay), but each endpoint validates them
// before handing bytes to the Noise state machine: a short or overlong
// message is a protocol violation, not a decryption failure, and should fail
// fast with a distinct error.
const (
	HandshakeMessageALen = 32 // bare initiator ephemeral public key
	HandshakeMessageBLen = 96 // responder e, ee, s, es
	HandshakeMessageCLen = 64 // initiator s, se
)

var (
	// ErrHandshakeMessageLength is returned when a handshake message does not
	// match the exact size XX dictates for its position in the exchange.
	ErrHandshakeMessageLength = errors.New("secure: wrong handshake message length")
	// ErrHandshakeComplete is returned by a handshake step called after the
	// handshake has already finished.
	ErrHandshakeComplete = errors.New("secure: handshake already complete")
)

// GenerateStaticKeypair produces a fresh Curve25519 static keypair suitable
// for use as a Handshake's long-term identity key.
func GenerateStaticKeypair() (noise.DHKey, error) {
	return cipherSuite.GenerateKeypair(rand.Reader)
}

// CipherSuite returns the Noise cipher suite (Curve25519/ChaChaPoly/SHA256)
// this package's handshakes use, for callers (internal/keys) that need to
// derive a keypair from operator-supplied key material rather than generate
// one.
func CipherSuite() noise.CipherSuite {
	return cipherSuite
}

// Handshake drives one side of a Noise XX exchange. It wraps
// noise.HandshakeState with the fixed message-size checks spec §4.4 and §8
// require and exposes the resulting send/recv ciphers once complete.
type Handshake struct {
	hs          *noise.HandshakeState
	initiator   bool
	complete    bool
	sendCipher  *noise.CipherState
	recvCipher  *noise.CipherState
}

// NewInitiatorHandshake starts the initiator side (the client, per spec §4.4:
// the client always initiates toward the agent once the relay has paired
// them).
func NewInitiatorHandshake(staticKey noise.DHKey) (*Handshake, error) {
	return newHandshake(staticKey, true)
}

// NewResponderHandshake starts the responder side (the agent).
func NewResponderHandshake(staticKey noise.DHKey) (*Handshake, error) {
	return newHandshake(staticKey, false)
}

func newHandshake(staticKey noise.DHKey, initiator bool) (*Handshake, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		Prologue:      handshakePrologue,
		StaticKeypair: staticKey,
	})
	if err != nil {
		return nil, fmt.Errorf("secure: init handshake state: %w", err)
	}
	return &Handshake{hs: hs, initiator: initiator}, nil
}

// WriteMessageA produces the first XX message (initiator only).
func (h *Handshake) WriteMessageA() ([]byte, error) {
	out, err := h.writeMessage(nil)
	if err != nil {
		return nil, err
	}
	if len(out) != HandshakeMessageALen {
		return nil, fmt.Errorf("secure: built message A of %d bytes, want %d", len(out), HandshakeMessageALen)
	}
	return out, nil
}

// ReadMessageA consumes the first XX message (responder only).
func (h *Handshake) ReadMessageA(msg []byte) error {
	if len(msg) != HandshakeMessageALen {
		return fmt.Errorf("%w: message A is %d bytes, want %d", ErrHandshakeMessageLength, len(msg), HandshakeMessageALen)
	}
	_, err := h.readMessage(msg)
	return err
}

// WriteMessageB produces the second XX message (responder only).
func (h *Handshake) WriteMessageB() ([]byte, error) {
	out, err := h.writeMessage(nil)
	if err != nil {
		return nil, err
	}
	if len(out) != HandshakeMessageBLen {
		return nil, fmt.Errorf("secure: built message B of %d bytes, want %d", len(out), HandshakeMessageBLen)
	}
	return out, nil
}

// ReadMessageB consumes the second XX message (initiator only).
func (h *Handshake) ReadMessageB(msg []byte) error {
	if len(msg) != HandshakeMessageBLen {
		return fmt.Errorf("%w: message B is %d bytes, want %d", ErrHandshakeMessageLength, len(msg), HandshakeMessageBLen)
	}
	_, err := h.readMessage(msg)
	return err
}

// WriteMessageC produces the third and final XX message (initiator only).
// The handshake is complete once this call returns successfully.
func (h *Handshake) WriteMessageC() ([]byte, error) {
	out, err := h.writeMessage(nil)
	if err != nil {
		return nil, err
	}
	if len(out) != HandshakeMessageCLen {
		return nil, fmt.Errorf("secure: built message C of %d bytes, want %d", len(out), HandshakeMessageCLen)
	}
	return out, nil
}

// ReadMessageC consumes the third and final XX message (responder only).
// The handshake is complete once this call returns successfully.
func (h *Handshake) ReadMessageC(msg []byte) error {
	if len(msg) != HandshakeMessageCLen {
		return fmt.Errorf("%w: message C is %d bytes, want %d", ErrHandshakeMessageLength, len(msg), HandshakeMessageCLen)
	}
	_, err := h.readMessage(msg)
	return err
}

func (h *Handshake) writeMessage(payload []byte) ([]byte, error) {
	if h.complete {
		return nil, ErrHandshakeComplete
	}
	out, cs1, cs2, err := h.hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("secure: write handshake message: %w", err)
	}
	h.maybeFinish(cs1, cs2)
	return out, nil
}

func (h *Handshake) readMessage(msg []byte) ([]byte, error) {
	if h.complete {
		return nil, ErrHandshakeComplete
	}
	payload, cs1, cs2, err := h.hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, fmt.Errorf("secure: read handshake message: %w", err)
	}
	h.maybeFinish(cs1, cs2)
	return payload, nil
}

// maybeFinish records the transport ciphers flynn/noise returns once the
// final handshake message has been processed. Per the library's XX
// convention the initiator's send cipher is cs1 and recv cipher is cs2; the
// responder's are swapped.
func (h *Handshake) maybeFinish(cs1, cs2 *noise.CipherState) {
	if cs1 == nil || cs2 == nil {
		return
	}
	h.complete = true
	if h.initiator {
		h.sendCipher, h.recvCipher = cs1, cs2
	} else {
		h.sendCipher, h.recvCipher = cs2, cs1
	}
}

// IsComplete reports whether the handshake has produced transport ciphers.
func (h *Handshake) IsComplete() bool { return h.complete }

// Ciphers returns the independently-keyed send/recv AEAD states once the
// handshake is complete. It returns an error beforehand.
func (h *Handshake) Ciphers() (send, recv *noise.CipherState, err error) {
	if !h.complete {
		return nil, nil, fmt.Errorf("secure: handshake not yet complete")
	}
	return h.sendCipher, h.recvCipher, nil
}

// PeerStatic returns the remote peer's static public key once the handshake
// has progressed far enough to have learned it.
func (h *Handshake) PeerStatic() []byte {
	return h.hs.PeerStatic()
}
