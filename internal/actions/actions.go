// Package actions implements the Action Handlers (§4.6): one handler per
// action the dispatcher can route to. Each handler receives a Channel
// Handle, the connection's env map, and the exec payload, and ends by
// handing the channel off via handle.Exec (subprocess actions) or
// handle.Exit/handle.Finish (in-process actions), per the Channel Handle's
// single-exit-status contract.
package actions

import (
	"context"
	"io"
	"os/exec"
	"runtime"
	"strings"

	"go.horsed.dev/horsed/internal/sshchannel"
	"pkt.systems/pslog"
)

// shellCommand builds the platform shell invocation for the `cmd` action and
// for any handler that needs to run a raw script, honoring a SHELL env
// override the way §4.5 specifies for the `cmd` action.
func shellCommand(ctx context.Context, script string, env map[string]string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		shell := "cmd.exe"
		return exec.CommandContext(ctx, shell, "/C", script)
	}
	shell := "sh"
	if override := strings.TrimSpace(env["SHELL"]); override != "" {
		shell = override
	}
	return exec.CommandContext(ctx, shell, "-c", script)
}

func writeErrorLine(handle *sshchannel.Handle, msg string) {
	_, _ = io.WriteString(handle.StderrWriter(), msg+"\n")
}

func logFrom(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}
