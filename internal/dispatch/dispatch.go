// Package dispatch implements the Action Dispatcher (§4.5): per-connection
// state (the action selected at auth time, the env map accumulated from
// `env` requests, and a one-shot Channel Handle slot), and the routing table
// that takes the handle and hands it to the matching Action Handler on the
// first `exec` request.
package dispatch

import (
	"context"
	"sync"

	"go.horsed.dev/horsed/internal/sshchannel"
	"go.horsed.dev/horsed/schema"
	"pkt.systems/pslog"
)

// Handler runs one action to completion. It owns the handle once called —
// it MUST end by calling handle.Exec, handle.Exit, or handle.Finish exactly
// once, per the Channel Handle's single-exit-status invariant.
type Handler func(ctx context.Context, handle *sshchannel.Handle, env map[string]string, payload []byte) error

// State is the per-connection record the dispatcher keeps between the SSH
// handshake completing and the session channel's `exec` request arriving.
type State struct {
	Action schema.Action

	mu     sync.Mutex
	env    map[string]string
	handle *sshchannel.Handle
}

// NewState creates connection state for a freshly authenticated connection
// whose action was selected by the SSH username.
func NewState(action schema.Action) *State {
	return &State{Action: action, env: make(map[string]string)}
}

// SetEnv records one `env` request's key/value pair.
func (s *State) SetEnv(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.env[key] = value
}

// Env returns a snapshot of the env map accumulated so far.
func (s *State) Env() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.env))
	for k, v := range s.env {
		out[k] = v
	}
	return out
}

// SetHandle installs the Channel Handle for the one channel this connection
// is expected to open.
func (s *State) SetHandle(h *sshchannel.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handle = h
}

// TakeHandle removes and returns the handle, leaving the slot empty. It
// returns nil if the slot was never set or has already been taken —
// callers must treat that as "no channel to route".
func (s *State) TakeHandle() *sshchannel.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handle
	s.handle = nil
	return h
}

// Table maps each known action to its handler. An action absent from the
// table never spawns: its exec request is still answered with success and
// the channel is then closed with exit status 127. Names outside the closed
// set are already refused at authentication and never reach the table.
type Table map[schema.Action]Handler

// Dispatcher routes an `exec` request's payload to the handler registered
// for the connection's action.
type Dispatcher struct {
	handlers Table
	log      pslog.Logger
}

// New builds a Dispatcher from a routing table.
func New(handlers Table, logger pslog.Logger) *Dispatcher {
	return &Dispatcher{handlers: handlers, log: logger}
}

// Dispatch takes state's handle and routes payload to the handler
// registered for state.Action. If the slot is already empty (a second exec
// on the same connection) or the action is unknown, the handle — if any —
// is failed and closed without spawning.
func (d *Dispatcher) Dispatch(ctx context.Context, state *State, payload []byte) {
	handle := state.TakeHandle()
	if handle == nil {
		d.log.Warn("exec with no channel handle available", "action", state.Action)
		return
	}

	handler, ok := d.handlers[state.Action]
	if !ok {
		d.log.Warn("exec for unknown action, failing channel", "action", state.Action)
		_ = handle.Exit(127)
		return
	}

	env := state.Env()
	if err := handler(ctx, handle, env, payload); err != nil {
		d.log.Warn("action handler returned error", "action", state.Action, "err", err)
	}
}
