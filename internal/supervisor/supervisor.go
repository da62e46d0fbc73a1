// Package supervisor provides the task-tree lifecycle every long-running
// piece of horsed runs under (the SSH listener, the setup listener,
// per-connection dispatch): essential tasks whose exit tears the
// whole tree down, non-essential tasks that simply stop, and a clean-shutdown
// sequence that waits for in-flight work to drain.
//
// Ported from the original Rust implementation's stable::task manager
// (Signal/Exit oneshot + TaskManager tree) onto Go idioms: a Signal/Exit
// pair becomes a context.Context/context.CancelFunc pair, futures become
// goroutines, and panic containment comes from sourcegraph/conc/panics
// instead of catch_unwind.
package supervisor

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"
	"pkt.systems/pslog"
)

// Supervisor owns a subtree of supervised goroutines. Canceling it (via
// Terminate or a parent's Terminate) signals every task spawned under it to
// stop; CleanShutdown waits for them to actually do so.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    pslog.Logger

	wg sync.WaitGroup

	essentialOnce   sync.Once
	essentialFailed chan struct{}

	mu       sync.Mutex
	children []*Supervisor
}

// New creates a root Supervisor whose exit signal derives from parent.
func New(parent context.Context, logger pslog.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		ctx:             ctx,
		cancel:          cancel,
		log:             logger,
		essentialFailed: make(chan struct{}),
	}
}

// Child creates a new Supervisor whose exit signal is derived from s's own,
// and registers it so that s.Terminate() also terminates the child.
func (s *Supervisor) Child() *Supervisor {
	child := New(s.ctx, s.log)
	s.mu.Lock()
	s.children = append(s.children, child)
	s.mu.Unlock()
	return child
}

// Context is the exit signal: it is canceled when the supervisor (or an
// ancestor) terminates.
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

// Spawn runs fn in a new goroutine. fn should return promptly once ctx is
// canceled. A panic inside fn is caught and logged rather than crashing the
// process; a returned error is logged but does not affect the tree.
func (s *Supervisor) Spawn(name string, fn func(ctx context.Context) error) {
	select {
	case <-s.ctx.Done():
		s.log.Warn("spawn attempted after shutdown, ignoring", "task", name)
		return
	default:
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runGuarded(name, fn)
	}()
}

// SpawnEssential runs fn in a new goroutine. Unlike Spawn, fn returning for
// any reason — success, error, or panic — is treated as the essential task
// having failed: it fires the supervisor's essential-failure signal exactly
// once, which a waiting Wait() call observes as cause to tear everything down.
func (s *Supervisor) SpawnEssential(name string, fn func(ctx context.Context) error) {
	select {
	case <-s.ctx.Done():
		s.log.Warn("essential spawn attempted after shutdown, ignoring", "task", name)
		return
	default:
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runGuarded(name, fn)
		s.essentialOnce.Do(func() {
			s.log.Debug("essential task exited, signaling shutdown", "task", name)
			close(s.essentialFailed)
		})
	}()
}

func (s *Supervisor) runGuarded(name string, fn func(ctx context.Context) error) {
	var catcher panics.Catcher
	catcher.Try(func() {
		if err := fn(s.ctx); err != nil && s.ctx.Err() == nil {
			s.log.Error("task exited with error", "task", name, "err", err)
		}
	})
	if recovered := catcher.Recovered(); recovered != nil {
		s.log.Error("task panicked", "task", name, "panic", recovered.AsError())
	}
}

// Wait blocks until the supervisor's exit signal fires or an essential task
// under it has failed, whichever comes first.
func (s *Supervisor) Wait() {
	select {
	case <-s.ctx.Done():
	case <-s.essentialFailed:
	}
}

// Terminate fires the exit signal for this supervisor and every child
// registered under it, but does not wait for tasks to actually stop.
func (s *Supervisor) Terminate() {
	s.cancel()
	s.mu.Lock()
	children := append([]*Supervisor(nil), s.children...)
	s.mu.Unlock()
	for _, child := range children {
		child.Terminate()
	}
}

// CleanShutdown terminates the tree and waits for every spawned task,
// including those under child supervisors, to return.
func (s *Supervisor) CleanShutdown() {
	s.Terminate()
	s.mu.Lock()
	children := append([]*Supervisor(nil), s.children...)
	s.mu.Unlock()

	var g errgroup.Group
	for _, child := range children {
		child := child
		g.Go(func() error {
			child.CleanShutdown()
			return nil
		})
	}
	_ = g.Wait()
	s.wg.Wait()
}
