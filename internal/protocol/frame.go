package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame payload (1 MiB).
const MaxFrameSize = 1 << 20

// headerSize is the length prefix size in bytes.
const headerSize = 4

var (
	// ErrMalformedMessage is returned when a stream does not hold a well-formed message.
	ErrMalformedMessage = errors.New("protocol: malformed message")

	// ErrConnectionClosed is returned when the stream ends before any byte of a frame.
	ErrConnectionClosed = errors.New("protocol: connection closed")

	// ErrFrameTooLarge is returned (wrapped in ErrMalformedMessage) for oversize frames.
	ErrFrameTooLarge = errors.New("protocol: frame too large")
)

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformedMessage}, args...)...)
}

// WriteFrame writes payload as one length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) == 0 {
		return malformed("empty payload")
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	// Single write so a frame is never interleaved on the stream.
	out := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(out[:headerSize], uint32(len(payload)))
	copy(out[headerSize:], payload)

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads exactly one frame and returns its payload.
//
// A stream that ends before the first header byte yields ErrConnectionClosed.
// A stream that ends mid-frame, a zero length or a length above maxSize
// yields ErrMalformedMessage. Transport errors (deadlines, resets) are
// returned wrapped as they are.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	if maxSize == 0 {
		maxSize = MaxFrameSize
	}

	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return nil, ErrConnectionClosed
		case errors.Is(err, io.ErrUnexpectedEOF):
			return nil, malformed("truncated frame header")
		default:
			return nil, fmt.Errorf("read frame header: %w", err)
		}
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, malformed("zero-length frame")
	}
	if length > maxSize {
		return nil, fmt.Errorf("%w: %w: %d > %d", ErrMalformedMessage, ErrFrameTooLarge, length, maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, malformed("truncated frame payload: want %d bytes", length)
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}
