package actions

import (
	"context"

	"go.horsed.dev/horsed/internal/dispatch"
	"go.horsed.dev/horsed/internal/sshchannel"
)

// SSHPassthrough runs the `ssh` action (§6, §B.3): it is in the closed
// action set but has no server-side implementation — "use system ssh as
// transport" is an out-of-scope alternative (spec.md §1 Non-goals). The
// handler accepts the connection, writes one diagnostic line, and exits 1
// rather than failing the channel open entirely.
func SSHPassthrough() dispatch.Handler {
	return func(ctx context.Context, handle *sshchannel.Handle, env map[string]string, payload []byte) error {
		writeErrorLine(handle, "ssh passthrough transport is not implemented server-side")
		return handle.Exit(1)
	}
}
