package actions

import (
	"context"
	"io"
	"os"
	"os/exec"

	"go.horsed.dev/horsed/internal/dispatch"
	"go.horsed.dev/horsed/internal/gitwork"
	"go.horsed.dev/horsed/internal/repopath"
	"go.horsed.dev/horsed/internal/sshchannel"
	"go.horsed.dev/horsed/schema"
)

// Cargo runs the `cargo` action (§4.5, §4.6): consumes the diff prelude from
// channel stdin, materializes a checkout of REPO at BRANCH with the diff
// applied, then runs the decoded cargo subcommand in that checkout.
func Cargo(repoRoot string) dispatch.Handler {
	return func(ctx context.Context, handle *sshchannel.Handle, env map[string]string, payload []byte) error {
		return runCheckoutBuild(ctx, handle, repoRoot, env, func(workDir string) *exec.Cmd {
			opts, err := DecodeCargoOptions(env["CARGO_OPTIONS"])
			if err != nil {
				writeErrorLine(handle, "invalid CARGO_OPTIONS: "+err.Error())
				return nil
			}
			binary := "cargo"
			if env["ZIGBUILD"] != "" {
				binary = "cargo-zigbuild"
			}
			cmd := exec.CommandContext(ctx, binary, opts.Args()...)
			cmd.Dir = workDir
			return cmd
		})
	}
}

// runCheckoutBuild implements the common cargo/just preamble: read the diff
// prelude to EOF, check out REPO at BRANCH into a scratch directory, apply
// the diff, then hand control to build (which constructs the subcommand to
// run in that directory) and run it without further stdin piping.
func runCheckoutBuild(ctx context.Context, handle *sshchannel.Handle, repoRoot string, env map[string]string, build func(workDir string) *exec.Cmd) error {
	diff, err := io.ReadAll(handle.Reader())
	if err != nil {
		writeErrorLine(handle, "failed to read diff prelude: "+err.Error())
		return handle.Exit(1)
	}

	repoPath, err := repopath.Resolve(repoRoot, schema.RepoName(env["REPO"]))
	if err != nil {
		writeErrorLine(handle, "invalid repo: "+err.Error())
		return handle.Exit(1)
	}

	workDir, err := os.MkdirTemp("", "horsed-checkout-*")
	if err != nil {
		writeErrorLine(handle, "failed to create working directory: "+err.Error())
		return handle.Exit(1)
	}
	defer os.RemoveAll(workDir)

	if err := gitwork.Checkout(ctx, repoPath, env["BRANCH"], workDir); err != nil {
		writeErrorLine(handle, "checkout failed: "+err.Error())
		return handle.Exit(1)
	}
	if err := gitwork.ApplyDiff(ctx, workDir, diff); err != nil {
		writeErrorLine(handle, "applying diff failed: "+err.Error())
		return handle.Exit(1)
	}

	cmd := build(workDir)
	if cmd == nil {
		return handle.Exit(1)
	}
	return handle.ExecNoStdin(cmd)
}
