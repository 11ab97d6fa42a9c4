// Package registry tracks in-flight external processes so they can be
// terminated when enzflow itself is asked to stop.
package registry

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/trobanga/enzflow/internal/lib"
)

// DefaultGrace is how long a process gets between the polite signal and the kill
const DefaultGrace = 30 * time.Second

// Process is an external process handle the registry can stop
type Process interface {
	Pid() int
	Terminate() error // Polite stop (SIGTERM to the process group)
	Kill() error
	Done() <-chan struct{}
}

// Registry is the process-wide table of running external processes
type Registry struct {
	mu      sync.Mutex
	procs   map[Process]struct{}
	grace   time.Duration
	logger  *lib.Logger
	drained sync.Once
}

// New creates an empty registry
func New(grace time.Duration, logger *lib.Logger) *Registry {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Registry{
		procs:  make(map[Process]struct{}),
		grace:  grace,
		logger: logger,
	}
}

// Register adds a handle
func (r *Registry) Register(p Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[p] = struct{}{}
}

// Unregister removes a handle; unknown handles are ignored
func (r *Registry) Unregister(p Process) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.procs, p)
}

// Len returns the number of registered handles
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// Drain terminates every registered process and clears the table.
// Only the first call does anything.
func (r *Registry) Drain() {
	r.drained.Do(r.drain)
}

func (r *Registry) drain() {
	r.mu.Lock()
	procs := make([]Process, 0, len(r.procs))
	for p := range r.procs {
		procs = append(procs, p)
	}
	r.procs = make(map[Process]struct{})
	r.mu.Unlock()

	if len(procs) == 0 {
		return
	}

	r.logger.Warn("Terminating external processes", "count", len(procs))

	var wg sync.WaitGroup
	for _, p := range procs {
		wg.Add(1)
		go func(p Process) {
			defer wg.Done()
			StopProcess(p, r.grace, r.logger)
		}(p)
	}
	wg.Wait()
}

// StopProcess asks p to terminate, then kills it if it is still alive after grace
func StopProcess(p Process, grace time.Duration, logger *lib.Logger) {
	if err := p.Terminate(); err != nil {
		logger.Debug("Terminate failed", "pid", p.Pid(), "error", err)
	}

	select {
	case <-p.Done():
		return
	case <-time.After(grace):
	}

	logger.Warn("Process did not exit within grace period, killing", "pid", p.Pid(), "grace", grace)
	if err := p.Kill(); err != nil {
		logger.Debug("Kill failed", "pid", p.Pid(), "error", err)
	}
}

// HandleSignals drains the registry on SIGINT or SIGTERM.
// The returned context is cancelled once a signal arrives; stop releases the hook
// and drains whatever is still registered (normal exit).
func (r *Registry) HandleSignals(ctx context.Context) (context.Context, func()) {
	sigCtx, cancel := context.WithCancel(ctx)
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			r.logger.Info("Signal received, shutting down", "signal", sig.String())
			cancel()
			r.Drain()
		case <-done:
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			signal.Stop(sigCh)
			close(done)
			cancel()
			r.Drain()
		})
	}
	return sigCtx, stop
}
