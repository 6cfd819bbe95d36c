package orchestrator

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/nullbridge/orchestrator/internal/unboundedqueue"
	"github.com/nullbridge/orchestrator/ipcconn"
	"github.com/nullbridge/orchestrator/message"
)

// recvResult is one receiver's outcome, shuttled from its feeder goroutine
// to the select router over a dedicated channel.
type recvResult struct {
	msg message.Message
	err error
}

// feedReceiver repeatedly calls rx.Recv and pushes each outcome onto out,
// stopping after the first error or once done closes. The unbuffered send
// blocks until the router consumes the previous result, preserving recv's
// natural backpressure through the feeder; done unblocks feeders the router
// abandoned by returning on a hard error.
func feedReceiver(rx *ipcconn.Receiver, out chan<- recvResult, done <-chan struct{}) {
	for {
		m, err := rx.Recv()
		select {
		case out <- recvResult{msg: m, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// dispatch fans m out to every subscriber routed for its topic, cloning to
// all but the last subscriber and moving the original to the last. A topic
// with no subscribers is fatal.
func (c *Connected) dispatch(m message.Message, routes map[string][]routeSub) error {
	subs, ok := routes[m.Topic]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnroutedTopic, m.Topic)
	}
	last := len(subs) - 1
	for i, sub := range subs {
		out := m
		if i != last {
			out = m.Clone()
		}
		if sub.limiter != nil {
			if err := sub.limiter.Wait(c.ctx); err != nil {
				return err
			}
		}
		if err := sub.tx.Send(out); err != nil {
			return fmt.Errorf("route %q: send: %w", m.Topic, err)
		}
	}
	return nil
}

// closeRouteSubs closes the send side of every routed subscriber, so
// downstream children observe the end of the stream once every source has
// closed.
func (c *Connected) closeRouteSubs(routes map[string][]routeSub) {
	for _, subs := range routes {
		for _, sub := range subs {
			_ = sub.tx.Close()
		}
	}
}

// spawnSelectRouter starts the synchronous router: a dynamic multi-way
// blocking receive over every still-registered receiver, built with
// reflect.Select since the set of live receivers shrinks as peers close and
// Go offers no native way to select over a runtime-sized list of channels.
// Each message is fanned out per the route table before the next one is
// serviced.
func (c *Connected) spawnSelectRouter(receivers []namedReceiver, routes map[string][]routeSub) {
	c.spawnPipeTask(func() error {
		done := make(chan struct{})
		defer close(done)

		cases := make([]reflect.SelectCase, len(receivers))
		names := make([]string, len(receivers))
		for i, r := range receivers {
			ch := make(chan recvResult)
			names[i] = r.name
			go feedReceiver(r.rx, ch, done)
			cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)}
		}

		active := len(cases)
		for active > 0 {
			idx, value, _ := reflect.Select(cases)
			res := value.Interface().(recvResult)
			if res.err != nil {
				if !errors.Is(res.err, ipcconn.ErrPeerClosed) {
					return fmt.Errorf("router: recv from %s: %w", names[idx], res.err)
				}
				c.log.Warn().Str("bridge", names[idx]).Msg("router receiver closed")
				cases[idx].Chan = reflect.ValueOf((chan recvResult)(nil))
				active--
				continue
			}
			if err := c.dispatch(res.msg, routes); err != nil {
				return err
			}
		}

		c.log.Info().Msg("all router sources closed")
		c.closeRouteSubs(routes)
		return c.park()
	})
}

// spawnQueueRouter starts the buffered router: one supervised feeder task
// per receiver shovels into a shared unbounded queue, and a single
// dispatcher task performs the same fan-out as the synchronous router. A
// stalled downstream subscriber is absorbed by the queue rather than
// blocking the upstream receivers.
func (c *Connected) spawnQueueRouter(receivers []namedReceiver, routes map[string][]routeSub) {
	q := unboundedqueue.New()
	var feeders sync.WaitGroup

	for _, r := range receivers {
		r := r
		feeders.Add(1)
		c.spawnPipeTask(func() error {
			defer feeders.Done()
			for {
				m, err := r.rx.Recv()
				if err != nil {
					if errors.Is(err, ipcconn.ErrPeerClosed) {
						c.log.Warn().Str("bridge", r.name).Msg("router receiver closed")
						return nil
					}
					return fmt.Errorf("router: recv from %s: %w", r.name, err)
				}
				q.Push(m)
			}
		})
	}
	go func() {
		feeders.Wait()
		q.Close()
	}()

	c.spawnPipeTask(func() error {
		for {
			m, ok := q.Pop()
			if !ok {
				c.log.Info().Msg("all router sources closed")
				c.closeRouteSubs(routes)
				return c.park()
			}
			if err := c.dispatch(m, routes); err != nil {
				return err
			}
		}
	})
}
