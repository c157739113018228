package secure

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/flynn/noise"

	"github.com/liamsto/alaric/internal/protocol"
)

// transportOverhead is the ChaChaPoly authentication tag size added to every
// encrypted transport frame.
const transportOverhead = 16

// MaxPlaintextBytes is the largest application payload Send accepts: the
// control-plane frame ceiling minus the AEAD tag it must carry alongside the
// ciphertext.
const MaxPlaintextBytes = protocol.MaxFrameBytes - transportOverhead

var (
	// ErrMessageTooLarge is returned by Send when the plaintext would not fit
	// in a single transport frame once encrypted.
	ErrMessageTooLarge = errors.New("secure: message exceeds maximum transport size")
	// ErrFrameTooSmall is returned by Recv when a received frame is shorter
	// than the minimum possible ciphertext (the AEAD tag alone).
	ErrFrameTooSmall = errors.New("secure: transport frame smaller than authentication tag")
)

// Channel is an established, post-handshake Noise XX transport: every Send
// is sealed under the local send cipher and framed with the control-plane
// length prefix; every Recv reads one such frame and opens it under the
// remote peer's send cipher (our recv cipher). Nonces increment
// independently per direction, matching flynn/noise's internal counter.
type Channel struct {
	rw   io.ReadWriter
	send *noise.CipherState
	recv *noise.CipherState

	sentFrames atomic.Uint64
	recvFrames atomic.Uint64
}

// NewChannel wraps rw with the two independent transport ciphers a completed
// Handshake produced.
func NewChannel(rw io.ReadWriter, send, recv *noise.CipherState) *Channel {
	return &Channel{rw: rw, send: send, recv: recv}
}

// EstablishInitiator runs the client side of the XX handshake over rw —
// write A, read B, write C — and returns the resulting Channel.
func EstablishInitiator(rw io.ReadWriter, staticKey noise.DHKey) (*Channel, error) {
	hs, err := NewInitiatorHandshake(staticKey)
	if err != nil {
		return nil, err
	}

	msgA, err := hs.WriteMessageA()
	if err != nil {
		return nil, err
	}
	if err := protocol.WriteBytesFrame(rw, msgA); err != nil {
		return nil, fmt.Errorf("secure: send message A: %w", err)
	}

	msgB, err := protocol.ReadBytesFrame(rw)
	if err != nil {
		return nil, fmt.Errorf("secure: receive message B: %w", err)
	}
	if err := hs.ReadMessageB(msgB); err != nil {
		return nil, err
	}

	msgC, err := hs.WriteMessageC()
	if err != nil {
		return nil, err
	}
	if err := protocol.WriteBytesFrame(rw, msgC); err != nil {
		return nil, fmt.Errorf("secure: send message C: %w", err)
	}

	send, recv, err := hs.Ciphers()
	if err != nil {
		return nil, err
	}
	return NewChannel(rw, send, recv), nil
}

// EstablishResponder runs the agent side of the XX handshake over rw — read
// A, write B, read C — and returns the resulting Channel.
func EstablishResponder(rw io.ReadWriter, staticKey noise.DHKey) (*Channel, error) {
	hs, err := NewResponderHandshake(staticKey)
	if err != nil {
		return nil, err
	}

	msgA, err := protocol.ReadBytesFrame(rw)
	if err != nil {
		return nil, fmt.Errorf("secure: receive message A: %w", err)
	}
	if err := hs.ReadMessageA(msgA); err != nil {
		return nil, err
	}

	msgB, err := hs.WriteMessageB()
	if err != nil {
		return nil, err
	}
	if err := protocol.WriteBytesFrame(rw, msgB); err != nil {
		return nil, fmt.Errorf("secure: send message B: %w", err)
	}

	msgC, err := protocol.ReadBytesFrame(rw)
	if err != nil {
		return nil, fmt.Errorf("secure: receive message C: %w", err)
	}
	if err := hs.ReadMessageC(msgC); err != nil {
		return nil, err
	}

	send, recv, err := hs.Ciphers()
	if err != nil {
		return nil, err
	}
	return NewChannel(rw, send, recv), nil
}

// Send encrypts plaintext under the local send cipher and writes it as one
// control-plane frame.
func (c *Channel) Send(plaintext []byte) error {
	if len(plaintext) > MaxPlaintextBytes {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(plaintext))
	}
	ciphertext, err := c.send.Encrypt(nil, nil, plaintext)
	if err != nil {
		return fmt.Errorf("secure: encrypt: %w", err)
	}
	if err := protocol.WriteBytesFrame(c.rw, ciphertext); err != nil {
		return fmt.Errorf("secure: send frame: %w", err)
	}
	c.sentFrames.Add(1)
	return nil
}

// Recv reads one control-plane frame and opens it under the remote peer's
// send cipher.
func (c *Channel) Recv() ([]byte, error) {
	ciphertext, err := protocol.ReadBytesFrame(c.rw)
	if err != nil {
		return nil, fmt.Errorf("secure: receive frame: %w", err)
	}
	if len(ciphertext) < transportOverhead {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooSmall, len(ciphertext))
	}
	plaintext, err := c.recv.Decrypt(nil, nil, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("secure: decrypt: %w", err)
	}
	c.recvFrames.Add(1)
	return plaintext, nil
}

// SentFrames returns the number of application frames sent so far.
func (c *Channel) SentFrames() uint64 { return c.sentFrames.Load() }

// RecvFrames returns the number of application frames received so far.
func (c *Channel) RecvFrames() uint64 { return c.recvFrames.Load() }
