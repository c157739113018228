// Package protocol implements the length-prefixed framed wire protocol
// (control plane) described in spec §4.1: every frame is a big-endian
// 32-bit byte count followed by exactly that many payload bytes.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameBytes is the largest payload a single frame may carry. Readers
// refuse any frame whose declared length exceeds this; writers refuse to
// emit one.
const MaxFrameBytes = 64 * 1024

// frameHeaderSize is the width of the length prefix alone (no type byte —
// unlike the teacher's internal Conn framing, the control-plane envelope
// carries no type tag; JSON vs. opaque-bytes framing is a matter of which
// read/write function the caller chooses).
const frameHeaderSize = 4

// ErrFrameTooLarge is returned when a frame's declared or actual length
// exceeds MaxFrameBytes.
var ErrFrameTooLarge = errors.New("protocol: frame too large")

// WriteBytesFrame writes payload as one length-prefixed frame. The payload
// is measured before anything is written to w; an oversize payload fails
// without emitting any bytes.
func WriteBytesFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameBytes {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// ReadBytesFrame reads one length-prefixed frame from r. It refuses (without
// reading the payload) any frame whose declared length exceeds
// MaxFrameBytes.
func ReadBytesFrame(r io.Reader) ([]byte, error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameBytes {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteJSONFrame serializes v and writes it as one frame.
func WriteJSONFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("protocol: encode json: %w", err)
	}
	return WriteBytesFrame(w, payload)
}

// ReadJSONFrame reads one frame and deserializes its payload into v.
func ReadJSONFrame(r io.Reader, v any) error {
	payload, err := ReadBytesFrame(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("protocol: decode json: %w", err)
	}
	return nil
}
