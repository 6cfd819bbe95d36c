package ipcconn

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// Rendezvous is a one-shot server a single child process uses to hand its
// Channel endpoint back to the parent at startup, per the IPC_SERVER
// handshake: the parent creates it, injects its Addr into the child's
// environment, and Accept blocks until that one child connects.
type Rendezvous struct {
	ln   net.Listener
	addr string
}

// Listen creates a new rendezvous socket under dir, named for the given
// child. dir is typically os.TempDir(); a unique file name avoids collisions
// between concurrently started children.
func Listen(dir, name string) (*Rendezvous, error) {
	path := filepath.Join(dir, fmt.Sprintf("orchestrator-%s-%d.sock", name, os.Getpid()))
	_ = os.Remove(path) // best effort: clear a stale socket from a prior crash

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipcconn: listen rendezvous for %q: %w", name, err)
	}
	return &Rendezvous{ln: ln, addr: path}, nil
}

// Addr returns the address to export into the child's IPC_SERVER env var.
func (r *Rendezvous) Addr() string {
	return r.addr
}

// Accept blocks for the single child to connect, or until ctx is done. The
// listener is closed either way: the rendezvous is one-shot.
func (r *Rendezvous) Accept(ctx context.Context) (*Channel, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := r.ln.Accept()
		done <- result{conn, err}
	}()

	select {
	case res := <-done:
		r.Close()
		if res.err != nil {
			return nil, fmt.Errorf("ipcconn: accept rendezvous: %w", res.err)
		}
		return NewChannel(res.conn), nil
	case <-ctx.Done():
		r.Close()
		return nil, ErrHandshakeTimeout
	}
}

// Close releases the rendezvous socket without waiting for a connection.
func (r *Rendezvous) Close() error {
	err := r.ln.Close()
	_ = os.Remove(r.addr)
	return err
}
