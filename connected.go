// Package orchestrator launches long-running child processes, establishes a
// duplex IPC channel with each of them, and wires those channels into a
// user-defined dataflow topology of bridges, pipes, and topic routers, whose
// combined lifetime it then supervises.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nullbridge/orchestrator/bridge"
	"github.com/nullbridge/orchestrator/childproc"
	"github.com/nullbridge/orchestrator/ipcconn"
	"github.com/nullbridge/orchestrator/message"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// routeSub is one subscriber on a sealed route table entry: the bridge
// sender it forwards to, plus an optional rate limiter throttling that
// subscriber's share of a router's fan-out.
type routeSub struct {
	tx      *ipcconn.Sender
	limiter *rate.Limiter
}

// RouteOption configures one call to RouteTopicToBridge.
type RouteOption func(*routeSub)

// WithRateLimit attaches a rate limiter to the route being declared: the
// router waits on it before delivering to this subscriber, letting an
// operator cap a bursty producer without resorting to the buffered router.
func WithRateLimit(l *rate.Limiter) RouteOption {
	return func(s *routeSub) { s.limiter = l }
}

// namedReceiver pairs a bridge name with a receiver half taken from it, for
// diagnostics inside a router.
type namedReceiver struct {
	name string
	rx   *ipcconn.Receiver
}

// Connected is the post-launch topology: every started child's Bridge, a
// route table that is mutable until a router is sealed, and the supervised
// set of pipe/router tasks and child processes.
type Connected struct {
	ctx context.Context
	log *zerolog.Logger

	bridges *xsync.MapOf[string, *bridge.Bridge]
	procs   []*childproc.Cmd

	mu       sync.Mutex
	routes   map[string][]routeSub
	sealed   bool
	hasPipes bool

	pipesWG sync.WaitGroup
	pipeErr chan error
}

func newConnected(ctx context.Context, bridges *xsync.MapOf[string, *bridge.Bridge], procs []*childproc.Cmd, log *zerolog.Logger) *Connected {
	return &Connected{
		ctx:     ctx,
		log:     log,
		bridges: bridges,
		procs:   procs,
		routes:  make(map[string][]routeSub),
		pipeErr: make(chan error, 1),
	}
}

func (c *Connected) bridgeByName(name string) (*bridge.Bridge, error) {
	b, ok := c.bridges.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBridge, name)
	}
	return b, nil
}

// spawnPipeTask runs fn as one supervised pipe/router task. The first task
// to fail short-circuits the pipes arm of Run; tasks that return nil only
// complete the arm once every task has returned.
func (c *Connected) spawnPipeTask(fn func() error) {
	c.mu.Lock()
	c.hasPipes = true
	c.mu.Unlock()

	c.pipesWG.Add(1)
	go func() {
		defer c.pipesWG.Done()
		if err := fn(); err != nil {
			select {
			case c.pipeErr <- err:
			default:
			}
		}
	}()
}

// park blocks a forwarder whose source has cleanly closed until the topology
// shuts down. A finished producer is the end of one stream, not "all the
// pipes exited": counting it as task completion would trip the supervisor's
// should-not-complete policy while downstream children are still draining.
func (c *Connected) park() error {
	<-c.ctx.Done()
	return nil
}

// PipeBridges spawns an unconditional forwarder: every message bIn's child
// sends is forwarded verbatim, topic included, to bOut's child. It takes
// bIn's receiver and bOut's sender; either already being taken fails loudly
// rather than silently double-wiring a half. When bIn's peer closes cleanly,
// the forwarder closes bOut's send side so the closure propagates downstream.
func (c *Connected) PipeBridges(bIn, bOut string) error {
	in, err := c.bridgeByName(bIn)
	if err != nil {
		return err
	}
	out, err := c.bridgeByName(bOut)
	if err != nil {
		return err
	}

	rx, err := in.TakeRx()
	if err != nil {
		return err
	}
	tx, err := out.TakeTx()
	if err != nil {
		return err
	}

	c.log.Info().Str("from", bIn).Str("to", bOut).Msg("setting communication")
	c.spawnPipeTask(func() error {
		for {
			m, err := rx.Recv()
			if err != nil {
				if errors.Is(err, ipcconn.ErrPeerClosed) {
					c.log.Info().Str("bridge", bIn).Msg("pipe source closed")
					_ = tx.Close()
					return c.park()
				}
				return fmt.Errorf("pipe %s->%s: recv: %w", bIn, bOut, err)
			}
			if err := tx.Send(m); err != nil {
				return fmt.Errorf("pipe %s->%s: send: %w", bIn, bOut, err)
			}
		}
	})
	return nil
}

// ForwardBridgeRx fans bIn's received messages out by topic into topicSinks,
// a map of in-process channel send-halves. A message whose topic is absent
// from the map is a programmer error and is fatal. topicSinks must be
// non-empty. When bIn's peer closes cleanly, every distinct sink channel is
// closed so in-process consumers observe the end of the stream.
func (c *Connected) ForwardBridgeRx(bIn string, topicSinks map[string]chan<- message.Message) error {
	if len(topicSinks) == 0 {
		return ErrEmptyTopicMap
	}
	in, err := c.bridgeByName(bIn)
	if err != nil {
		return err
	}
	rx, err := in.TakeRx()
	if err != nil {
		return err
	}

	c.log.Info().Str("from", bIn).Int("topics", len(topicSinks)).Msg("setting communication")
	c.spawnPipeTask(func() error {
		for {
			m, err := rx.Recv()
			if err != nil {
				if errors.Is(err, ipcconn.ErrPeerClosed) {
					c.log.Info().Str("bridge", bIn).Msg("forward source closed")
					closed := make(map[chan<- message.Message]bool, len(topicSinks))
					for _, sink := range topicSinks {
						if !closed[sink] {
							closed[sink] = true
							close(sink)
						}
					}
					return c.park()
				}
				return fmt.Errorf("forward from %s: recv: %w", bIn, err)
			}
			sink, ok := topicSinks[m.Topic]
			if !ok {
				return fmt.Errorf("%w: %q from %s", ErrUnroutedTopic, m.Topic, bIn)
			}
			sink <- m
		}
	})
	return nil
}

// ForwardBridgeTx drains an in-process channel receive-half into bOut's
// sender, preserving order. Once in is closed and drained, bOut's send side
// is closed so the closure propagates to the child.
func (c *Connected) ForwardBridgeTx(bOut string, in <-chan message.Message) error {
	out, err := c.bridgeByName(bOut)
	if err != nil {
		return err
	}
	tx, err := out.TakeTx()
	if err != nil {
		return err
	}

	c.log.Info().Str("to", bOut).Msg("setting communication")
	c.spawnPipeTask(func() error {
		for m := range in {
			if err := tx.Send(m); err != nil {
				return fmt.Errorf("forward to %s: send: %w", bOut, err)
			}
		}
		c.log.Info().Str("bridge", bOut).Msg("forward input closed")
		_ = tx.Close()
		return c.park()
	})
	return nil
}

// RouteTopicToBridge appends bOut's sender to the route table entry for
// topic, creating the entry if absent. It does not spawn work; it fails with
// ErrRoutesSealed once a router has been spawned, without consuming bOut's
// sender half.
func (c *Connected) RouteTopicToBridge(topic, bOut string, opts ...RouteOption) error {
	out, err := c.bridgeByName(bOut)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return ErrRoutesSealed
	}

	tx, err := out.TakeTx()
	if err != nil {
		return err
	}

	sub := routeSub{tx: tx}
	for _, opt := range opts {
		opt(&sub)
	}

	c.log.Info().Str("topic", topic).Str("to", bOut).Msg("setting communication")
	c.routes[topic] = append(c.routes[topic], sub)
	return nil
}

// takeRemainingReceivers claims the receiver half of every bridge that has
// not already had its receiver taken by an earlier pipe/forward call.
func (c *Connected) takeRemainingReceivers() ([]namedReceiver, error) {
	var out []namedReceiver
	var rangeErr error
	c.bridges.Range(func(name string, b *bridge.Bridge) bool {
		rx, err := b.TakeRx()
		if err != nil {
			if errors.Is(err, bridge.ErrAlreadyTaken) {
				return true
			}
			rangeErr = err
			return false
		}
		out = append(out, namedReceiver{name: name, rx: rx})
		return true
	})
	if rangeErr != nil {
		return nil, rangeErr
	}
	return out, nil
}

// sealRoutes seals the route table, claims every remaining bridge receiver,
// and hands both to spawn, which starts the router tasks.
func (c *Connected) sealRoutes(spawn func(receivers []namedReceiver, routes map[string][]routeSub)) error {
	c.mu.Lock()
	if c.sealed {
		c.mu.Unlock()
		return ErrRoutesSealed
	}
	c.sealed = true
	routes := c.routes
	c.mu.Unlock()

	receivers, err := c.takeRemainingReceivers()
	if err != nil {
		return err
	}

	spawn(receivers, routes)
	return nil
}

// PipeRoutes seals the route table and spawns a synchronous router: it
// blocks on whichever registered receiver becomes ready first and fans each
// message out per the route table before servicing the next one. A
// downstream subscriber that stalls blocks the whole router.
func (c *Connected) PipeRoutes() error {
	return c.sealRoutes(c.spawnSelectRouter)
}

// PipeRoutesViaQueue seals the route table and spawns a buffered router:
// one task per receiver shovels into a shared unbounded queue, and a single
// dispatcher drains it. A stalled subscriber is absorbed by the queue
// instead of blocking the upstream receivers, at the cost of unbounded
// memory growth if the stall is permanent.
func (c *Connected) PipeRoutesViaQueue() error {
	return c.sealRoutes(c.spawnQueueRouter)
}
