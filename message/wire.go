package message

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Wire framing: a fixed 16-byte header followed by a JSON body.
//
//	offset 0:  uint32 total frame size, header included
//	offset 4:  uint32 reserved (message type tag; always 0 today)
//	offset 8:  uint64 reserved (correlation id; always 0 today)
//
// The bit layout is not part of the orchestrator's contract; the only
// promise is that a message sent equals the message received.
const (
	hdrSize    = 16
	hdrOffSize = 0
	hdrOffType = 4
	hdrOffID   = 8

	// maxFrameSize bounds a single incoming frame to avoid unbounded
	// allocation from a misbehaving or corrupt peer.
	maxFrameSize = 32 << 20
)

var (
	ErrFrameTooLarge = errors.New("message: frame exceeds maximum size")
	ErrFrameTooSmall = errors.New("message: frame smaller than header")
)

// WriteTo encodes m as one length-framed JSON body and writes it to w.
func (m Message) WriteTo(w io.Writer) (int64, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return 0, fmt.Errorf("message: encode: %w", err)
	}

	var hdr [hdrSize]byte
	binary.LittleEndian.PutUint32(hdr[hdrOffSize:], uint32(hdrSize+len(body)))
	binary.LittleEndian.PutUint32(hdr[hdrOffType:], 0)
	binary.LittleEndian.PutUint64(hdr[hdrOffID:], 0)

	n1, err := w.Write(hdr[:])
	if err != nil {
		return int64(n1), fmt.Errorf("message: write header: %w", err)
	}
	n2, err := w.Write(body)
	if err != nil {
		return int64(n1 + n2), fmt.Errorf("message: write body: %w", err)
	}
	return int64(n1 + n2), nil
}

// ReadFrom decodes one length-framed JSON message from r into m.
func (m *Message) ReadFrom(r io.Reader) (int64, error) {
	var hdr [hdrSize]byte
	n1, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return int64(n1), err
	}

	size := binary.LittleEndian.Uint32(hdr[hdrOffSize:])
	switch {
	case size < hdrSize:
		return int64(n1), ErrFrameTooSmall
	case size > maxFrameSize:
		return int64(n1), ErrFrameTooLarge
	}

	body := make([]byte, size-hdrSize)
	n2, err := io.ReadFull(r, body)
	if err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return int64(n1 + n2), err
	}

	if err := json.Unmarshal(body, m); err != nil {
		return int64(n1 + n2), fmt.Errorf("message: decode: %w", err)
	}
	return int64(n1 + n2), nil
}
