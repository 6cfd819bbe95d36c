package topology

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/nullbridge/orchestrator"
)

// Load reads and parses a topology file from path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("topology: read %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("topology: parse %q: %w", path, err)
	}
	return cfg, nil
}

// StartAll spawns every child in cfg through b, in declaration order.
func (cfg Config) StartAll(b *orchestrator.Builder) error {
	for _, child := range cfg.Children {
		cmd := exec.Command(child.Command[0], child.Command[1:]...)
		if len(child.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range child.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		if err := b.Start(child.Name, cmd); err != nil {
			return fmt.Errorf("topology: start %q: %w", child.Name, err)
		}
	}
	return nil
}

// Wire applies every pipe and route declared in cfg to an already-connected
// topology, spawning the router named by cfg.Router (if any) last, since
// routes must be fully declared before sealing.
func (cfg Config) Wire(c *orchestrator.Connected) error {
	for _, p := range cfg.Pipes {
		if err := c.PipeBridges(p.From, p.To); err != nil {
			return fmt.Errorf("topology: pipe %s->%s: %w", p.From, p.To, err)
		}
	}

	for _, r := range cfg.Routes {
		if err := c.RouteTopicToBridge(r.Topic, r.To); err != nil {
			return fmt.Errorf("topology: route %s->%s: %w", r.Topic, r.To, err)
		}
	}

	switch cfg.Router {
	case "":
		// no router requested
	case "select":
		if err := c.PipeRoutes(); err != nil {
			return fmt.Errorf("topology: pipe_routes: %w", err)
		}
	case "queue":
		if err := c.PipeRoutesViaQueue(); err != nil {
			return fmt.Errorf("topology: pipe_routes_via_queue: %w", err)
		}
	default:
		return fmt.Errorf("topology: unknown router %q", cfg.Router)
	}
	return nil
}
