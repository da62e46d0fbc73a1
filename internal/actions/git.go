package actions

import (
	"context"
	"os/exec"
	"strings"

	"go.horsed.dev/horsed/internal/dispatch"
	"go.horsed.dev/horsed/internal/repopath"
	"go.horsed.dev/horsed/internal/sshchannel"
	"go.horsed.dev/horsed/schema"
)

// Git runs the `git` action (§4.5): git-upload-pack or git-receive-pack
// against the repository named by the REPO env var, rooted under repoRoot.
func Git(repoRoot string) dispatch.Handler {
	return func(ctx context.Context, handle *sshchannel.Handle, env map[string]string, payload []byte) error {
		data := string(payload)
		var subcommand string
		switch {
		case strings.HasPrefix(data, "git-upload-pack"):
			subcommand = "upload-pack"
		case strings.HasPrefix(data, "git-receive-pack"):
			subcommand = "receive-pack"
		default:
			writeErrorLine(handle, "unsupported git command: "+data)
			return handle.Exit(1)
		}

		repoPath, err := repopath.Resolve(repoRoot, schema.RepoName(env["REPO"]))
		if err != nil {
			writeErrorLine(handle, "invalid repo: "+err.Error())
			return handle.Exit(1)
		}

		cmd := exec.CommandContext(ctx, "git", subcommand, repoPath)
		return handle.Exec(cmd)
	}
}
