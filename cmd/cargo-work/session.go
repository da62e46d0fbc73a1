package main

import (
	"fmt"

	"go.horsed.dev/horsed/internal/clientauth"
	"go.horsed.dev/horsed/internal/clientsession"
	"go.horsed.dev/horsed/schema"
)

// remoteExitError carries a remote action's non-zero exit code through
// cobra's RunE return value so main can propagate it as the process's own
// exit status (§6 "Client exit codes").
type remoteExitError struct {
	code int
}

func (e *remoteExitError) Error() string {
	return fmt.Sprintf("remote action exited %d", e.code)
}

func (e *remoteExitError) ExitCode() int {
	return e.code
}

// dial authenticates to the configured server and opens a channel for
// action, the SSH username acting as the action selector (§4.3).
func dial(opts *clientOptions, action schema.Action, env map[string]string) (*clientsession.Session, error) {
	auth, err := clientauth.Resolve(opts.keyPath)
	if err != nil {
		return nil, err
	}
	target := clientsession.Target{Addr: opts.addr, Action: action, Auth: auth}
	return clientsession.Dial(target, env)
}

// asExitError turns a non-zero remote exit code into the sentinel error
// main() understands, leaving success and transport errors unchanged.
func asExitError(code int, err error) error {
	if err != nil {
		return err
	}
	if code != 0 {
		return &remoteExitError{code: code}
	}
	return nil
}
