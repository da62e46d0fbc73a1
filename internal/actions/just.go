package actions

import (
	"context"
	"os/exec"
	"strings"

	"go.horsed.dev/horsed/internal/dispatch"
	"go.horsed.dev/horsed/internal/sshchannel"
)

// Just runs the `just` action (§4.5, §4.6): the same checkout-and-patch
// preamble as `cargo`, followed by a `just` invocation of the recipe named
// in the exec payload, honoring JUSTFILE/GIT_COMMIT/GIT_MESSAGE env.
func Just(repoRoot string) dispatch.Handler {
	return func(ctx context.Context, handle *sshchannel.Handle, env map[string]string, payload []byte) error {
		return runCheckoutBuild(ctx, handle, repoRoot, env, func(workDir string) *exec.Cmd {
			args := []string{}
			if justfile := strings.TrimSpace(env["JUSTFILE"]); justfile != "" {
				args = append(args, "--justfile", justfile)
			}
			recipe := strings.TrimSpace(string(payload))
			if recipe != "" {
				args = append(args, strings.Fields(recipe)...)
			}
			cmd := exec.CommandContext(ctx, "just", args...)
			cmd.Dir = workDir
			extra := make([]string, 0, 2)
			if commit := env["GIT_COMMIT"]; commit != "" {
				extra = append(extra, "GIT_COMMIT="+commit)
			}
			if message := env["GIT_MESSAGE"]; message != "" {
				extra = append(extra, "GIT_MESSAGE="+message)
			}
			if len(extra) > 0 {
				cmd.Env = append(cmd.Environ(), extra...)
			}
			return cmd
		})
	}
}
