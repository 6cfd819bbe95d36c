// Package ipcconn provides the duplex, cross-process message Channel used to
// talk to orchestrated child processes, plus the rendezvous mechanism
// children use to hand their half of the Channel back to the parent.
package ipcconn

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"

	"github.com/nullbridge/orchestrator/message"
)

// Channel is a duplex, FIFO, typed message pipe built on top of a single
// net.Conn. Dialing (or accepting) the connection already gives both ends
// the full-duplex, cross-process transport the orchestrator needs; Channel
// just layers the Message framing and the Sender/Receiver split on top.
type Channel struct {
	conn net.Conn

	mu    sync.Mutex
	split bool
}

// NewChannel wraps an already-established connection as a Channel.
func NewChannel(conn net.Conn) *Channel {
	return &Channel{conn: conn}
}

// Split decomposes the channel into an independent Sender and Receiver.
// It may only succeed once per Channel; a second call returns
// ErrAlreadySplit, matching the take-once discipline the orchestrator's
// Bridge relies on.
func (c *Channel) Split() (*Sender, *Receiver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.split {
		return nil, nil, ErrAlreadySplit
	}
	c.split = true
	return &Sender{conn: c.conn, w: bufio.NewWriter(c.conn)},
		&Receiver{conn: c.conn, r: bufio.NewReader(c.conn)},
		nil
}

// Close closes the underlying connection.
func (c *Channel) Close() error {
	return c.conn.Close()
}

// Sender is the write half of a Channel. A Sender is meant to be owned by a
// single goroutine at a time; the orchestrator enforces this via Bridge's
// take-once semantics.
type Sender struct {
	conn net.Conn
	mu   sync.Mutex
	w    *bufio.Writer
}

// Send writes m to the peer. It returns ErrPeerClosed if the peer has gone
// away.
func (s *Sender) Send(m message.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := m.WriteTo(s.w); err != nil {
		return peerClosedErr(err)
	}
	if err := s.w.Flush(); err != nil {
		return peerClosedErr(err)
	}
	return nil
}

// Close closes the underlying connection for writing where supported.
func (s *Sender) Close() error {
	if cw, ok := s.conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return s.conn.Close()
}

// Receiver is the read half of a Channel.
type Receiver struct {
	conn net.Conn
	r    *bufio.Reader
}

// Recv blocks for the next message, or returns ErrPeerClosed once the peer
// has gone away. Ordering is FIFO per sender.
func (r *Receiver) Recv() (message.Message, error) {
	var m message.Message
	if _, err := m.ReadFrom(r.r); err != nil {
		return message.Message{}, peerClosedErr(err)
	}
	return m, nil
}

// Close closes the underlying connection.
func (r *Receiver) Close() error {
	return r.conn.Close()
}

func peerClosedErr(err error) error {
	if errors.Is(err, io.EOF) || isClosedConnErr(err) {
		return ErrPeerClosed
	}
	return fmt.Errorf("ipcconn: %w", err)
}

// isClosedConnErr reports whether err means the connection is gone: closed
// locally, or closed or reset by the peer (a write then fails with EPIPE).
func isClosedConnErr(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}
