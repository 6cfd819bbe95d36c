package ipcconn

import "errors"

var (
	// ErrPeerClosed is returned by Send/Recv once the remote end of a
	// Channel has gone away.
	ErrPeerClosed = errors.New("ipcconn: peer closed")

	// ErrAlreadySplit is returned by a second call to Channel.Split.
	ErrAlreadySplit = errors.New("ipcconn: channel already split")

	// ErrMissingEnv is returned by ConnectEnv when IPC_SERVER is unset.
	ErrMissingEnv = errors.New("ipcconn: IPC_SERVER not set")

	// ErrHandshakeTimeout is returned by Rendezvous.Accept when no child
	// completes the handshake within the rendezvous lifetime.
	ErrHandshakeTimeout = errors.New("ipcconn: handshake timed out")
)
