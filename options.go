package orchestrator

import (
	"os"

	"github.com/rs/zerolog"
)

// Options configures a Builder. The zero value is usable: a nil Logger and an
// empty RendezvousDir fall back to the same defaults DefaultOptions sets.
type Options struct {
	// Logger receives every child's line-logged stdout/stderr plus the
	// orchestrator's own structured diagnostics. Nil means zerolog.Nop().
	Logger *zerolog.Logger

	// RendezvousDir is the directory in which per-child rendezvous sockets
	// are created. Defaults to os.TempDir().
	RendezvousDir string
}

// DefaultOptions returns the Options a caller gets by not configuring
// anything explicitly.
func DefaultOptions() Options {
	nop := zerolog.Nop()
	return Options{
		Logger:        &nop,
		RendezvousDir: os.TempDir(),
	}
}

func (o Options) logger() *zerolog.Logger {
	if o.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return o.Logger
}

func (o Options) rendezvousDir() string {
	if o.RendezvousDir == "" {
		return os.TempDir()
	}
	return o.RendezvousDir
}
