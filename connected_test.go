package orchestrator

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/nullbridge/orchestrator/bridge"
	"github.com/nullbridge/orchestrator/ipcconn"
	"github.com/nullbridge/orchestrator/message"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// testPeer is the "child" end of a loopback bridge: the test drives it the
// way a real child process would drive its half of the channel.
type testPeer struct {
	tx *ipcconn.Sender
	rx *ipcconn.Receiver
}

func (p *testPeer) send(t *testing.T, topic string, data []byte) {
	t.Helper()
	require.NoError(t, p.tx.Send(message.Message{Topic: topic, Data: data}))
}

func (p *testPeer) recv(t *testing.T) message.Message {
	t.Helper()
	m, err := p.rx.Recv()
	require.NoError(t, err)
	return m
}

// newLoopbackTopology builds a Connected whose named bridges are backed by
// in-process peers, so wiring semantics can be exercised without spawning
// real child processes.
func newLoopbackTopology(t *testing.T, names ...string) (*Connected, map[string]*testPeer) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bridges := xsync.NewMapOf[string, *bridge.Bridge]()
	peers := make(map[string]*testPeer, len(names))

	for _, name := range names {
		rv, err := ipcconn.Listen(os.TempDir(), fmt.Sprintf("%s-%s", t.Name(), name))
		require.NoError(t, err)

		type dialed struct {
			ch  *ipcconn.Channel
			err error
		}
		client := make(chan dialed, 1)
		go func(addr string) {
			ch, err := ipcconn.Connect(addr)
			client <- dialed{ch, err}
		}(rv.Addr())

		actx, acancel := context.WithTimeout(ctx, 2*time.Second)
		server, err := rv.Accept(actx)
		acancel()
		require.NoError(t, err)

		res := <-client
		require.NoError(t, res.err)
		tx, rx, err := res.ch.Split()
		require.NoError(t, err)

		bridges.Store(name, bridge.New(name, server))
		peers[name] = &testPeer{tx: tx, rx: rx}
	}

	nop := zerolog.Nop()
	return newConnected(ctx, bridges, nil, &nop), peers
}

func TestPipeBridgesPassThrough(t *testing.T) {
	c, peers := newLoopbackTopology(t, "A", "B")
	require.NoError(t, c.PipeBridges("A", "B"))

	for i := 0; i < 5; i++ {
		peers["A"].send(t, "t", []byte{byte(i)})
	}
	for i := 0; i < 5; i++ {
		m := peers["B"].recv(t)
		require.Equal(t, "t", m.Topic)
		require.Equal(t, []byte{byte(i)}, m.Data)
	}
}

func TestPipeBridgesDuplicateWiringRejected(t *testing.T) {
	c, peers := newLoopbackTopology(t, "A", "B", "C")
	require.NoError(t, c.PipeBridges("A", "B"))

	err := c.PipeBridges("A", "C")
	require.ErrorIs(t, err, bridge.ErrAlreadyTaken)

	// the first pipe keeps working after the rejected second wiring
	peers["A"].send(t, "t", []byte("still flowing"))
	m := peers["B"].recv(t)
	require.Equal(t, []byte("still flowing"), m.Data)
}

func TestPipeBridgesUnknownBridge(t *testing.T) {
	c, _ := newLoopbackTopology(t, "A")
	require.ErrorIs(t, c.PipeBridges("A", "nope"), ErrUnknownBridge)
	require.ErrorIs(t, c.PipeBridges("nope", "A"), ErrUnknownBridge)
}

func TestRouteSealing(t *testing.T) {
	c, _ := newLoopbackTopology(t, "P", "C1", "C2")
	require.NoError(t, c.RouteTopicToBridge("t", "C1"))
	require.NoError(t, c.PipeRoutes())

	require.ErrorIs(t, c.RouteTopicToBridge("t", "C2"), ErrRoutesSealed)
	require.ErrorIs(t, c.PipeRoutes(), ErrRoutesSealed)
	require.ErrorIs(t, c.PipeRoutesViaQueue(), ErrRoutesSealed)
}

func TestFanOutMultiplicity(t *testing.T) {
	c, peers := newLoopbackTopology(t, "P", "C1", "C2")
	require.NoError(t, c.RouteTopicToBridge("t", "C1"))
	require.NoError(t, c.RouteTopicToBridge("t", "C2"))
	require.NoError(t, c.PipeRoutes())

	for i := 0; i < 10; i++ {
		peers["P"].send(t, "t", []byte{byte(i)})
	}
	for i := 0; i < 10; i++ {
		m1 := peers["C1"].recv(t)
		require.Equal(t, []byte{byte(i)}, m1.Data, "C1 out of order at %d", i)
		m2 := peers["C2"].recv(t)
		require.Equal(t, []byte{byte(i)}, m2.Data, "C2 out of order at %d", i)
	}
}

func TestQueueRouterFanOut(t *testing.T) {
	c, peers := newLoopbackTopology(t, "P", "C1", "C2")
	require.NoError(t, c.RouteTopicToBridge("t", "C1"))
	require.NoError(t, c.RouteTopicToBridge("t", "C2"))
	require.NoError(t, c.PipeRoutesViaQueue())

	for i := 0; i < 20; i++ {
		peers["P"].send(t, "t", []byte{byte(i)})
	}
	for i := 0; i < 20; i++ {
		require.Equal(t, []byte{byte(i)}, peers["C1"].recv(t).Data)
		require.Equal(t, []byte{byte(i)}, peers["C2"].recv(t).Data)
	}
}

func TestUnknownTopicIsFatal(t *testing.T) {
	c, peers := newLoopbackTopology(t, "P", "C1")
	require.NoError(t, c.RouteTopicToBridge("y", "C1"))
	require.NoError(t, c.PipeRoutes())

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(context.Background()) }()

	peers["P"].send(t, "x", []byte("lost"))

	select {
	case err := <-runErr:
		require.ErrorIs(t, err, ErrUnroutedTopic)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not observe the routing error")
	}
}

func TestRateLimitedRouteDelivers(t *testing.T) {
	c, peers := newLoopbackTopology(t, "P", "C1")
	limiter := rate.NewLimiter(rate.Every(time.Millisecond), 1)
	require.NoError(t, c.RouteTopicToBridge("t", "C1", WithRateLimit(limiter)))
	require.NoError(t, c.PipeRoutesViaQueue())

	for i := 0; i < 3; i++ {
		peers["P"].send(t, "t", []byte{byte(i)})
	}
	for i := 0; i < 3; i++ {
		require.Equal(t, []byte{byte(i)}, peers["C1"].recv(t).Data)
	}
}

func TestForwardBridgeRxTx(t *testing.T) {
	c, peers := newLoopbackTopology(t, "A", "B")

	mid := make(chan message.Message, 16)
	require.NoError(t, c.ForwardBridgeRx("A", map[string]chan<- message.Message{"t": mid}))
	require.NoError(t, c.ForwardBridgeTx("B", mid))

	for i := 0; i < 3; i++ {
		peers["A"].send(t, "t", []byte{byte(i)})
	}
	for i := 0; i < 3; i++ {
		m := peers["B"].recv(t)
		require.Equal(t, "t", m.Topic)
		require.Equal(t, []byte{byte(i)}, m.Data)
	}

	// closing the source closes the sink chain all the way through to B
	require.NoError(t, peers["A"].tx.Close())
	_, err := peers["B"].rx.Recv()
	require.ErrorIs(t, err, ipcconn.ErrPeerClosed)
}

func TestForwardBridgeRxEmptyMap(t *testing.T) {
	c, _ := newLoopbackTopology(t, "A")
	require.ErrorIs(t, c.ForwardBridgeRx("A", nil), ErrEmptyTopicMap)
}

func TestPipeClosurePropagatesDownstream(t *testing.T) {
	c, peers := newLoopbackTopology(t, "A", "B")
	require.NoError(t, c.PipeBridges("A", "B"))

	peers["A"].send(t, "t", []byte("last"))
	require.NoError(t, peers["A"].tx.Close())

	m := peers["B"].recv(t)
	require.Equal(t, []byte("last"), m.Data)

	_, err := peers["B"].rx.Recv()
	require.ErrorIs(t, err, ipcconn.ErrPeerClosed)
}
