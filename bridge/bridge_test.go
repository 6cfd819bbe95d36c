package bridge

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nullbridge/orchestrator/ipcconn"
	"github.com/stretchr/testify/require"
)

func newTestBridge(t *testing.T, name string) *Bridge {
	t.Helper()
	rv, err := ipcconn.Listen(os.TempDir(), name)
	require.NoError(t, err)

	go ipcconn.Connect(rv.Addr()) //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, err := rv.Accept(ctx)
	require.NoError(t, err)

	return New(name, ch)
}

func TestTakeOnce(t *testing.T) {
	b := newTestBridge(t, "A")

	_, err := b.TakeRx()
	require.NoError(t, err)

	_, err = b.TakeRx()
	require.ErrorIs(t, err, ErrAlreadyTaken)
}

func TestTakeTxThenRxIndependent(t *testing.T) {
	b := newTestBridge(t, "B")

	tx, err := b.TakeTx()
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.False(t, b.Taken())

	rx, err := b.TakeRx()
	require.NoError(t, err)
	require.NotNil(t, rx)
	require.True(t, b.Taken())
}
