// Package bridge represents a named duplex endpoint to a single child
// process, owned by the orchestrator.
package bridge

import (
	"sync"

	"github.com/nullbridge/orchestrator/ipcconn"
)

// Bridge wraps one Channel with lazy, single-shot half extraction. It is the
// only legitimate path by which a Sender or Receiver half enters a pipe or
// router task: once a half is taken, a second take fails.
type Bridge struct {
	Name string

	mu      sync.Mutex
	channel *ipcconn.Channel
	tx      *ipcconn.Sender
	rx      *ipcconn.Receiver
	split   bool
	txTaken bool
	rxTaken bool
}

// New wraps channel as a named Bridge.
func New(name string, channel *ipcconn.Channel) *Bridge {
	return &Bridge{Name: name, channel: channel}
}

func (b *Bridge) ensureSplit() error {
	if b.split {
		return nil
	}
	tx, rx, err := b.channel.Split()
	if err != nil {
		return err
	}
	b.tx, b.rx = tx, rx
	b.split = true
	return nil
}

// TakeRx returns this bridge's Receiver half, exactly once. A second call
// returns ErrAlreadyTaken; whether TakeTx was called first does not matter.
func (b *Bridge) TakeRx() (*ipcconn.Receiver, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rxTaken {
		return nil, ErrAlreadyTaken
	}
	if err := b.ensureSplit(); err != nil {
		return nil, err
	}
	b.rxTaken = true
	return b.rx, nil
}

// TakeTx returns this bridge's Sender half, exactly once.
func (b *Bridge) TakeTx() (*ipcconn.Sender, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.txTaken {
		return nil, ErrAlreadyTaken
	}
	if err := b.ensureSplit(); err != nil {
		return nil, err
	}
	b.txTaken = true
	return b.tx, nil
}

// Taken reports whether both halves have been claimed, meaning the bridge
// now only serves diagnostics (its Name).
func (b *Bridge) Taken() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rxTaken && b.txTaken
}
