// Command orchestrate wires a generate -> sum -> write pipeline out of the
// ipc-* child programs, or any topology described by a JSON file given with
// -topology.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nullbridge/orchestrator"
	"github.com/nullbridge/orchestrator/topology"
	"github.com/rs/zerolog"
)

var (
	optTopology = flag.String("topology", "", "path to a JSON topology file; empty runs the built-in generate->sum->write pipeline")
	optCount    = flag.Int("count", 1_000_000, "number of values the built-in pipeline generates")
	optRouter   = flag.String("router", "queue", "router for the built-in pipeline: select or queue")
	optDebug    = flag.Bool("debug", false, "enable debug logging")
)

func main() {
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.StampMilli}).
		With().Timestamp().Logger().Level(zerolog.InfoLevel)
	if *optDebug {
		log = log.Level(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &log); err != nil {
		log.Error().Err(err).Msg("orchestrator failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, log *zerolog.Logger) error {
	opts := orchestrator.DefaultOptions()
	opts.Logger = log

	if *optTopology != "" {
		return runTopologyFile(ctx, opts, *optTopology)
	}

	b := orchestrator.New(ctx, true, opts)
	if err := b.Start("generate", childCommand("ipc-generate", "-count", fmt.Sprint(*optCount))); err != nil {
		return err
	}
	if err := b.Start("sum", childCommand("ipc-sum")); err != nil {
		return err
	}
	if err := b.Start("write", childCommand("ipc-write")); err != nil {
		return err
	}

	c, err := b.Connect(ctx)
	if err != nil {
		return err
	}

	if err := c.RouteTopicToBridge("generate", "sum"); err != nil {
		return err
	}
	if err := c.RouteTopicToBridge("sum", "write"); err != nil {
		return err
	}

	switch *optRouter {
	case "select":
		err = c.PipeRoutes()
	case "queue":
		err = c.PipeRoutesViaQueue()
	default:
		return fmt.Errorf("unknown router %q", *optRouter)
	}
	if err != nil {
		return err
	}

	return c.Run(ctx)
}

func runTopologyFile(ctx context.Context, opts orchestrator.Options, path string) error {
	cfg, err := topology.Load(path)
	if err != nil {
		return err
	}

	b := orchestrator.New(ctx, cfg.IPC, opts)
	if err := cfg.StartAll(b); err != nil {
		return err
	}

	c, err := b.Connect(ctx)
	if err != nil {
		return err
	}
	if err := cfg.Wire(c); err != nil {
		return err
	}
	return c.Run(ctx)
}

// childCommand resolves one of the ipc-* child programs, preferring a binary
// sitting next to the orchestrate executable over the PATH.
func childCommand(name string, args ...string) *exec.Cmd {
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), name)
		if _, err := os.Stat(sibling); err == nil {
			return exec.Command(sibling, args...)
		}
	}
	return exec.Command(name, args...)
}
