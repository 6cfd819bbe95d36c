package orchestrator

import (
	"context"
	"sync"

	"github.com/nullbridge/orchestrator/childproc"
	"github.com/nullbridge/orchestrator/policy"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// arm is one of the supervisor's three race sources: a label for logging, a
// channel that carries the joined result of every task on that source, and
// the completion policy used to interpret that result. A benign arm's
// completion does not end the supervisor; the race continues over the
// remaining arms.
type arm struct {
	label  string
	done   <-chan error
	apply  func(log *zerolog.Logger, label string, err error) error
	benign bool
}

// joinLoggers joins every child's log drain. Completion carries no error of
// its own: a log stream ending is reported, not a failure.
func joinLoggers(procs []*childproc.Cmd) <-chan error {
	done := make(chan error, 1)
	go func() {
		var wg sync.WaitGroup
		for _, p := range procs {
			p := p
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-p.LoggersDone()
			}()
		}
		wg.Wait()
		done <- nil
	}()
	return done
}

// joinProcesses joins every child's process exit, surfacing the first
// non-nil exit error, if any.
func joinProcesses(procs []*childproc.Cmd) <-chan error {
	done := make(chan error, 1)
	go func() {
		var grp errgroup.Group
		for _, p := range procs {
			p := p
			grp.Go(func() error {
				<-p.ProcessDone()
				return p.ProcessErr()
			})
		}
		done <- grp.Wait()
	}()
	return done
}

// joinPipes joins every spawned pipe/router task: the first task failure
// completes the join immediately with that error, while clean completions
// only complete it once every task has returned.
func (c *Connected) joinPipes() <-chan error {
	done := make(chan error, 1)
	go func() {
		all := make(chan struct{})
		go func() {
			c.pipesWG.Wait()
			close(all)
		}()
		select {
		case err := <-c.pipeErr:
			done <- err
		case <-all:
			select {
			case err := <-c.pipeErr:
				done <- err
			default:
				done <- nil
			}
		}
	}()
	return done
}

// Run races pipes, loggers, and processes concurrently and returns as soon
// as the first of them completes, interpreted through that source's
// completion policy. With pipes wired, children all exiting cleanly is
// success (may_complete) and a logger ending is benign (never_fail): the
// race simply continues over the remaining sources. With no pipes wired,
// both loggers and processes use should_not_complete, since the children
// were started purely as services. The pipes source completing is always an
// error: it completes on the first pipe/router task failure, or once every
// task has returned, and pipes are never expected to finish. With
// neither pipes nor children, Run returns immediately with a nil error;
// there is nothing to supervise.
func (c *Connected) Run(ctx context.Context) error {
	c.mu.Lock()
	hasPipes := c.hasPipes
	c.mu.Unlock()

	var arms []arm
	if hasPipes {
		arms = append(arms, arm{label: "pipes", done: c.joinPipes(), apply: policy.ShouldNotComplete})
	}

	if len(c.procs) > 0 {
		loggers := arm{label: "loggers", done: joinLoggers(c.procs), apply: policy.ShouldNotComplete}
		processes := arm{label: "processes", done: joinProcesses(c.procs), apply: policy.ShouldNotComplete}
		if hasPipes {
			loggers.apply = policy.NeverFail
			loggers.benign = true
			processes.apply = policy.MayComplete
		}
		arms = append(arms, loggers, processes)
	}

	if len(arms) == 0 {
		return nil
	}

	type completion struct {
		a   arm
		err error
	}
	first := make(chan completion, len(arms))
	for _, a := range arms {
		a := a
		go func() {
			err := <-a.done
			first <- completion{a: a, err: err}
		}()
	}

	for remaining := len(arms); remaining > 0; remaining-- {
		select {
		case res := <-first:
			err := res.a.apply(c.log, res.a.label, res.err)
			if res.a.benign {
				continue
			}
			return err
		case <-ctx.Done():
			c.log.Info().Msg("context cancelled, shutting down")
			return nil
		}
	}
	return nil
}
