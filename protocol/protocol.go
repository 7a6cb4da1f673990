// Package protocol implements the length-prefixed framing over TCP.
//
// It solves TCP's sticky packet problem with a 4-byte big-endian length
// prefix followed by the body. The receiver reads the prefix first to learn
// the body length, then reads exactly that many bytes.
//
// Frame format:
//
//	0         4
//	┌─────────┬───────────────┐
//	│ bodyLen │    body ...    │
//	│ uint32  │ bodyLen bytes  │
//	└─────────┴───────────────┘
//
// This is the exact wire format of the original lab, so either side can talk
// to the original counterpart as long as the JSON codec is in use.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const PrefixSize = 4

// MaxFrameSize bounds the body length accepted from the wire. A prefix above
// this is framing corruption (or a non-protocol peer) and the connection
// must be closed rather than allocating gigabytes on a garbage length.
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned by ReadFrame when the length prefix exceeds
// MaxFrameSize. Callers treat it as unrecoverable for the connection.
var ErrFrameTooLarge = fmt.Errorf("frame exceeds %d bytes", MaxFrameSize)

// WriteFrame writes one complete frame (prefix + body) to w.
// The caller must serialize writes if multiple goroutines share the writer,
// otherwise frames will interleave and corrupt the stream.
func WriteFrame(w io.Writer, body []byte) error {
	buf := make([]byte, PrefixSize+len(body))
	binary.BigEndian.PutUint32(buf[:PrefixSize], uint32(len(body)))
	copy(buf[PrefixSize:], body)
	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one complete frame from r and returns the body.
// Uses io.ReadFull so partial TCP reads never surface as short frames.
func ReadFrame(r io.Reader) ([]byte, error) {
	prefix := make([]byte, PrefixSize)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, err
	}

	bodyLen := binary.BigEndian.Uint32(prefix)
	if bodyLen > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
