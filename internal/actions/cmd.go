package actions

import (
	"context"

	"go.horsed.dev/horsed/internal/dispatch"
	"go.horsed.dev/horsed/internal/sshchannel"
)

// Cmd runs the `cmd` action (§4.5): a raw shell invocation of the exec
// payload, honoring a SHELL env override.
func Cmd() dispatch.Handler {
	return func(ctx context.Context, handle *sshchannel.Handle, env map[string]string, payload []byte) error {
		cmd := shellCommand(ctx, string(payload), env)
		return handle.Exec(cmd)
	}
}
