package engine

import (
	"log/slog"
	"sync"
)

// Registry owns the market engines of a process, one per hosted game
// session. It is passed explicitly to anything that needs to resolve "the
// engine for this session"; there is no package-level singleton. Engines
// are built on first use and torn down together on host shutdown.
type Registry struct {
	factory func(session string) (*Market, error)
	log     *slog.Logger

	mu      sync.Mutex
	engines map[string]*Market
}

func NewRegistry(factory func(session string) (*Market, error), log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		factory: factory,
		log:     log,
		engines: make(map[string]*Market),
	}
}

// Get returns the engine for a session, building it on first use.
func (r *Registry) Get(session string) (*Market, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.engines[session]; ok {
		return m, nil
	}
	m, err := r.factory(session)
	if err != nil {
		return nil, err
	}
	r.engines[session] = m
	r.log.Info("market engine created", slog.String("session", session))
	return m, nil
}

// Shutdown flushes every engine to disk and clears the registry.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for session, m := range r.engines {
		m.Save()
		r.log.Info("market engine shut down", slog.String("session", session))
	}
	r.engines = make(map[string]*Market)
}

// Len returns the number of live engines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}
