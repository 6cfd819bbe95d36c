package orchestrator

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/nullbridge/orchestrator/bridge"
	"github.com/nullbridge/orchestrator/childproc"
	"github.com/nullbridge/orchestrator/ipcconn"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// builderState tracks the one-way Empty -> Spawned -> Connected transition.
type builderState int

const (
	stateEmpty builderState = iota
	stateSpawned
	stateConnected
)

// pendingChild is one child between Start and Connect: its process handle,
// and, if IPC is enabled, the rendezvous it is expected to complete.
type pendingChild struct {
	name string
	proc *childproc.Cmd
	rv   *ipcconn.Rendezvous // nil when Builder.ipc is false
}

// Builder is the pre-launch configuration surface: it spawns children,
// injects the rendezvous address, and hands off to Connect once every
// child has been started.
type Builder struct {
	ctx  context.Context
	ipc  bool
	opts Options
	log  *zerolog.Logger

	mu      sync.Mutex
	state   builderState
	names   map[string]struct{}
	pending []*pendingChild
}

// New constructs an empty Builder. ipc=false disables bridge creation:
// children are started only for their side effects and logs. ctx, if
// non-nil, is the lifetime every spawned child is tied to: cancelling it
// kills all children started through this Builder (and, later, every
// Bridge/pipe wired from the resulting Connected topology).
func New(ctx context.Context, ipc bool, opts Options) *Builder {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Builder{
		ctx:   ctx,
		ipc:   ipc,
		opts:  opts,
		log:   opts.logger(),
		names: make(map[string]struct{}),
	}
}

// Start spawns cmd as a named child. If IPC is enabled, it allocates a
// rendezvous address and injects it into the child's environment under
// ipcconn.ServerEnvVar before starting the process. Start is rejected with
// ErrStarted once Connect has been called, and with ErrDuplicateName if name
// was already used on this Builder.
func (b *Builder) Start(name string, cmd *exec.Cmd) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateConnected {
		return ErrStarted
	}
	if _, exists := b.names[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	proc := childproc.New(b.ctx, name, cmd, b.log)

	pc := &pendingChild{name: name, proc: proc}
	if b.ipc {
		rv, err := ipcconn.Listen(b.opts.rendezvousDir(), name)
		if err != nil {
			return fmt.Errorf("orchestrator: allocate rendezvous for %q: %w", name, err)
		}
		proc.SetEnv(ipcconn.ServerEnvVar, rv.Addr())
		pc.rv = rv
	}

	if err := proc.Start(); err != nil {
		if pc.rv != nil {
			_ = pc.rv.Close()
		}
		return err
	}

	b.names[name] = struct{}{}
	b.pending = append(b.pending, pc)
	b.state = stateSpawned
	return nil
}

// Connect waits for every spawned child to complete the handshake (when IPC
// is enabled) and produces the Connected topology. It returns
// ErrConnectFailed if any child fails to hand off its channel within ctx's
// lifetime.
func (b *Builder) Connect(ctx context.Context) (*Connected, error) {
	b.mu.Lock()
	b.state = stateConnected
	pending := b.pending
	b.mu.Unlock()

	bridges := xsync.NewMapOf[string, *bridge.Bridge]()
	procs := make([]*childproc.Cmd, 0, len(pending))

	grp, gctx := errgroup.WithContext(ctx)
	for _, pc := range pending {
		pc := pc
		procs = append(procs, pc.proc)
		if pc.rv == nil {
			continue
		}
		grp.Go(func() error {
			ch, err := pc.rv.Accept(gctx)
			if err != nil {
				return fmt.Errorf("orchestrator: handshake with %q: %w", pc.name, err)
			}
			bridges.Store(pc.name, bridge.New(pc.name, ch))
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	return newConnected(b.ctx, bridges, procs, b.log), nil
}
