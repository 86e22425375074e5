package engine

import (
	"github.com/concordlab/concord/broadcast"
	"github.com/concordlab/concord/executor"
	"github.com/concordlab/concord/modules"
)

const (
	defaultBroadcastRate  = 100
	defaultBroadcastBurst = 16
)

type config struct {
	secret      []byte
	broadcaster modules.Broadcaster
	executors   *executor.Registry
	optsFns     []func(*modules.Options)
}

func defaultConfig() config {
	return config{
		secret:      newSecret(),
		broadcaster: broadcast.NewLocal(defaultBroadcastRate, defaultBroadcastBurst),
		executors:   executor.NewRegistry(),
	}
}

func (cfg *config) configure(opts *modules.Options) {
	for _, fn := range cfg.optsFns {
		fn(opts)
	}
}

// Option configures an engine before assembly.
type Option func(*config)

// WithSecret sets the vote signing secret. Engines that should accept each
// other's snapshots must share a secret.
func WithSecret(secret []byte) Option {
	return func(cfg *config) { cfg.secret = secret }
}

// WithBroadcaster replaces the default loopback broadcaster.
func WithBroadcaster(b modules.Broadcaster) Option {
	return func(cfg *config) { cfg.broadcaster = b }
}

// WithMemoryExecutor installs the executor for memory update steps.
func WithMemoryExecutor(exec executor.Executor) Option {
	return func(cfg *config) { cfg.executors.SetMemoryExecutor(exec) }
}

// WithPolicyExecutor installs the executor for policy update steps.
func WithPolicyExecutor(exec executor.Executor) Option {
	return func(cfg *config) { cfg.executors.SetPolicyExecutor(exec) }
}

// WithGenericExecutor installs the fallback executor for all other steps.
func WithGenericExecutor(exec executor.Executor) Option {
	return func(cfg *config) { cfg.executors.SetGenericExecutor(exec) }
}

// WithOptions adjusts the runtime options before the modules are
// initialized.
func WithOptions(fn func(*modules.Options)) Option {
	return func(cfg *config) { cfg.optsFns = append(cfg.optsFns, fn) }
}
