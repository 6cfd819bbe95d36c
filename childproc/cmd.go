// Package childproc spawns and supervises the orchestrator's child
// processes: starting the command, piping its environment and standard
// streams, and line-logging stdout/stderr under the child's name.
package childproc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// Cmd wraps os/exec.Cmd with the conventions every orchestrated child needs:
// piped stdio, a well-known IPC_SERVER env var, termination when the
// parent's context is done, and, on platforms that support it, termination
// when the parent process dies (via SysProcAttr set in attrs_*.go).
//
// Process exit and stdio line-logging are tracked on two independent done
// channels (ProcessDone, LoggersDone) so a supervisor can treat "the child
// exited" and "its log stream ended" as distinct completion sources, while
// Wait still offers the simpler join of both for callers that only care
// about the process as a whole.
type Cmd struct {
	Name string
	Cmd  *exec.Cmd
	Log  *zerolog.Logger

	loggersWG   sync.WaitGroup
	loggersDone chan struct{}

	procErr  error
	procDone chan struct{}
}

// New prepares cmd to run as a named orchestrated child: it marks the process
// so the OS terminates it when the orchestrator exits, where supported, and
// kills it once ctx is done. Stdout and stderr are piped by Start.
func New(ctx context.Context, name string, cmd *exec.Cmd, log *zerolog.Logger) *Cmd {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	applyPlatformAttrs(cmd)
	c := &Cmd{
		Name:        name,
		Cmd:         cmd,
		Log:         log,
		loggersDone: make(chan struct{}),
		procDone:    make(chan struct{}),
	}
	if ctx != nil {
		c.killOnDone(ctx)
	}
	return c
}

// killOnDone kills the process once ctx is done, covering platforms where
// applyPlatformAttrs is a no-op and as a faster path than waiting for the
// kernel to notice the parent is gone.
func (c *Cmd) killOnDone(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			if c.Cmd.Process != nil {
				_ = c.Cmd.Process.Kill()
			}
		case <-c.procDone:
		}
	}()
}

// SetEnv appends key=value to the child's environment, inheriting the
// current process's environment if Cmd.Env was not already set.
func (c *Cmd) SetEnv(key, value string) {
	if c.Cmd.Env == nil {
		c.Cmd.Env = append(c.Cmd.Env, envOrEmpty()...)
	}
	c.Cmd.Env = append(c.Cmd.Env, fmt.Sprintf("%s=%s", key, value))
}

// Start pipes stdout/stderr, starts line-logging goroutines for both, and
// launches the process.
func (c *Cmd) Start() error {
	stdout, err := c.Cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("childproc: stdout pipe for %s: %w", c.Name, err)
	}
	stderr, err := c.Cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("childproc: stderr pipe for %s: %w", c.Name, err)
	}

	if err := c.Cmd.Start(); err != nil {
		return fmt.Errorf("childproc: start %s: %w", c.Name, err)
	}

	c.loggersWG.Add(2)
	go c.relay(stdout, "stdout")
	go c.relay(stderr, "stderr")
	go func() {
		c.loggersWG.Wait()
		close(c.loggersDone)
	}()
	go c.waitProcess()
	return nil
}

// waitProcess is the single call site for exec.Cmd.Wait, which must only be
// invoked once per process, and only after every read from the stdio pipes
// has completed: Wait closes the pipes and would drop tail output still in
// flight.
func (c *Cmd) waitProcess() {
	<-c.loggersDone
	err := c.Cmd.Wait()
	if err != nil {
		err = fmt.Errorf("childproc: %s exited: %w", c.Name, err)
	}
	c.procErr = err
	close(c.procDone)
}

// ProcessDone is closed once the OS process has exited. ProcessErr is only
// meaningful after it closes.
func (c *Cmd) ProcessDone() <-chan struct{} { return c.procDone }

// ProcessErr is the wrapped exec.Cmd.Wait error, valid once ProcessDone is
// closed.
func (c *Cmd) ProcessErr() error { return c.procErr }

// LoggersDone is closed once both stdout and stderr have reached EOF and
// their line-logging goroutines have returned.
func (c *Cmd) LoggersDone() <-chan struct{} { return c.loggersDone }

// Wait blocks until the process has exited and both of its stdio
// line-loggers have finished, returning the process's exit error if any.
func (c *Cmd) Wait() error {
	<-c.procDone
	<-c.loggersDone
	return c.procErr
}

// relay scans r line by line and logs each one tagged with the child's name
// and stream, replacing invalid UTF-8 as it goes.
func (c *Cmd) relay(r io.Reader, stream string) {
	defer c.loggersWG.Done()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if !utf8.ValidString(line) {
			line = string([]rune(line))
		}
		c.Log.Info().Str("child", c.Name).Str("stream", stream).Msg(line)
	}
	if err := sc.Err(); err != nil {
		c.Log.Warn().Str("child", c.Name).Str("stream", stream).Err(err).Msg("line logger stopped")
	}
}
