// Package topology loads a declarative JSON description of child processes,
// pipes, and topic routes, so a dataflow topology can be changed without
// recompiling the program that drives it.
package topology

import (
	"fmt"

	jsp "github.com/buger/jsonparser"
	"github.com/spf13/cast"
)

// ChildSpec is one entry in the "children" array: a named command line and
// optional extra environment variables.
type ChildSpec struct {
	Name    string
	Command []string
	Env     map[string]string
}

// PipeSpec is one entry in the "pipes" array: an unconditional forwarder
// from one bridge to another.
type PipeSpec struct {
	From string
	To   string
}

// RouteSpec is one entry in the "routes" array: a topic bound to a
// destination bridge.
type RouteSpec struct {
	Topic string
	To    string
}

// Config is a fully parsed topology file.
type Config struct {
	// IPC mirrors Builder.New's ipc flag: false disables bridge creation
	// entirely, running children for side effects only.
	IPC bool

	Children []ChildSpec
	Pipes    []PipeSpec
	Routes   []RouteSpec

	// Router selects which router spawns the routes above, if any:
	// "select" for PipeRoutes (5a), "queue" for PipeRoutesViaQueue (5b).
	// Empty means no router is spawned even if Routes is non-empty.
	Router string
}

// Parse decodes a topology file's JSON bytes into a Config.
func Parse(data []byte) (Config, error) {
	var cfg Config

	if ipc, err := jsp.GetBoolean(data, "ipc"); err == nil {
		cfg.IPC = ipc
	} else if err != jsp.KeyPathNotFoundError {
		return cfg, fmt.Errorf("topology: ipc: %w", err)
	} else {
		cfg.IPC = true
	}

	if router, err := jsp.GetString(data, "router"); err == nil {
		cfg.Router = router
	} else if err != jsp.KeyPathNotFoundError {
		return cfg, fmt.Errorf("topology: router: %w", err)
	}

	if childrenRaw, _, _, err := jsp.Get(data, "children"); err == nil {
		var outerErr error
		_, _ = jsp.ArrayEach(childrenRaw, func(value []byte, _ jsp.ValueType, _ int, _ error) {
			if outerErr != nil {
				return
			}
			child, err := parseChild(value)
			if err != nil {
				outerErr = err
				return
			}
			cfg.Children = append(cfg.Children, child)
		})
		if outerErr != nil {
			return cfg, outerErr
		}
	} else if err != jsp.KeyPathNotFoundError {
		return cfg, fmt.Errorf("topology: children: %w", err)
	}

	if pipesRaw, _, _, err := jsp.Get(data, "pipes"); err == nil {
		var outerErr error
		_, _ = jsp.ArrayEach(pipesRaw, func(value []byte, _ jsp.ValueType, _ int, _ error) {
			if outerErr != nil {
				return
			}
			from, err := jsp.GetString(value, "from")
			if err != nil {
				outerErr = fmt.Errorf("topology: pipe.from: %w", err)
				return
			}
			to, err := jsp.GetString(value, "to")
			if err != nil {
				outerErr = fmt.Errorf("topology: pipe.to: %w", err)
				return
			}
			cfg.Pipes = append(cfg.Pipes, PipeSpec{From: from, To: to})
		})
		if outerErr != nil {
			return cfg, outerErr
		}
	} else if err != jsp.KeyPathNotFoundError {
		return cfg, fmt.Errorf("topology: pipes: %w", err)
	}

	if routesRaw, _, _, err := jsp.Get(data, "routes"); err == nil {
		var outerErr error
		_, _ = jsp.ArrayEach(routesRaw, func(value []byte, _ jsp.ValueType, _ int, _ error) {
			if outerErr != nil {
				return
			}
			topic, err := jsp.GetString(value, "topic")
			if err != nil {
				outerErr = fmt.Errorf("topology: route.topic: %w", err)
				return
			}
			to, err := jsp.GetString(value, "to")
			if err != nil {
				outerErr = fmt.Errorf("topology: route.to: %w", err)
				return
			}
			cfg.Routes = append(cfg.Routes, RouteSpec{Topic: topic, To: to})
		})
		if outerErr != nil {
			return cfg, outerErr
		}
	} else if err != jsp.KeyPathNotFoundError {
		return cfg, fmt.Errorf("topology: routes: %w", err)
	}

	return cfg, nil
}

// parseChild decodes one "children" array element. Command elements and env
// values go through scalarToString, so a topology file may write a numeric
// CLI flag (e.g. a message count) or a boolean without quoting it as JSON.
func parseChild(value []byte) (ChildSpec, error) {
	var spec ChildSpec

	name, err := jsp.GetString(value, "name")
	if err != nil {
		return spec, fmt.Errorf("child.name: %w", err)
	}
	spec.Name = name

	commandRaw, _, _, err := jsp.Get(value, "command")
	if err != nil {
		return spec, fmt.Errorf("child %q: command: %w", name, err)
	}
	var cmdErr error
	_, _ = jsp.ArrayEach(commandRaw, func(val []byte, typ jsp.ValueType, _ int, _ error) {
		if cmdErr != nil {
			return
		}
		s, err := scalarToString(val, typ)
		if err != nil {
			cmdErr = fmt.Errorf("child %q: command element: %w", name, err)
			return
		}
		spec.Command = append(spec.Command, s)
	})
	if cmdErr != nil {
		return spec, cmdErr
	}
	if len(spec.Command) == 0 {
		return spec, fmt.Errorf("child %q: command must be non-empty", name)
	}

	if envRaw, _, _, err := jsp.Get(value, "env"); err == nil {
		spec.Env = make(map[string]string)
		err := jsp.ObjectEach(envRaw, func(key, val []byte, typ jsp.ValueType, _ int) error {
			s, err := scalarToString(val, typ)
			if err != nil {
				return fmt.Errorf("child %q: env.%s: %w", name, key, err)
			}
			spec.Env[string(key)] = s
			return nil
		})
		if err != nil {
			return spec, err
		}
	} else if err != jsp.KeyPathNotFoundError {
		return spec, fmt.Errorf("child %q: env: %w", name, err)
	}

	return spec, nil
}

// scalarToString coerces a jsonparser scalar value (string, number, or
// bool) into the string form an exec.Cmd argument or environment value
// needs. Numbers keep their JSON text; strings and booleans go through cast.
func scalarToString(val []byte, typ jsp.ValueType) (string, error) {
	switch typ {
	case jsp.String:
		return cast.ToStringE(string(val))
	case jsp.Number:
		return string(val), nil
	case jsp.Boolean:
		return cast.ToStringE(string(val) == "true")
	default:
		return "", fmt.Errorf("unsupported JSON type %v", typ)
	}
}
