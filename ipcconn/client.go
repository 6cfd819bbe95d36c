package ipcconn

import (
	"fmt"
	"net"
	"os"
)

// ServerEnvVar is the environment variable the orchestrator injects into a
// child's environment carrying its rendezvous address.
const ServerEnvVar = "IPC_SERVER"

// Connect dials the rendezvous address addr, completing the child side of
// the handshake. The returned Channel is this child's half of the duplex
// pipe to the orchestrator.
func Connect(addr string) (*Channel, error) {
	conn, err := net.Dial("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("ipcconn: connect to %q: %w", addr, err)
	}
	return NewChannel(conn), nil
}

// ConnectEnv is the child-process helper described by the orchestrator's
// client contract: it reads IPC_SERVER from the environment and connects to
// it, blocking the caller until the handshake completes.
func ConnectEnv() (*Channel, error) {
	addr := os.Getenv(ServerEnvVar)
	if addr == "" {
		return nil, ErrMissingEnv
	}
	return Connect(addr)
}
