// Package gitwork wraps git subprocess invocations used by the cargo/just
// action handlers to materialize a patched checkout, adapted from the
// teacher's internal/git package.
package gitwork

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.horsed.dev/horsed/internal/herrors"
	"pkt.systems/pslog"
)

// Run executes a git command in the provided directory.
func Run(ctx context.Context, dir string, args ...string) (string, error) {
	log := pslog.Ctx(ctx).With("dir", dir, "args", strings.Join(args, " "))
	log.Debug("git run start")
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		preview := strings.TrimSpace(string(output))
		truncated := false
		if len(preview) > 200 {
			preview = preview[:200]
			truncated = true
		}
		log.Warn("git run failed", "err", err, "output", preview, "truncated", truncated)
		return string(output), herrors.New(herrors.Child, "git "+strings.Join(args, " "),
			fmt.Errorf("%w (%s)", err, strings.TrimSpace(string(output))))
	}
	log.Debug("git run ok", "output_len", len(output))
	return string(output), nil
}

// AddAll stages all changes.
func AddAll(ctx context.Context, dir string) error {
	_, err := Run(ctx, dir, "add", "-A")
	return err
}

// Commit creates a commit with the provided message.
func Commit(ctx context.Context, dir, message string) (string, error) {
	return Run(ctx, dir, "commit", "-m", message)
}

// Checkout clones repoPath (a bare repository on disk) into workDir at the
// given branch, used by the cargo/just handlers (§4.6) to materialize a
// fresh working tree before applying the client's diff prelude.
func Checkout(ctx context.Context, repoPath, branch, workDir string) error {
	args := []string{"clone", "--no-hardlinks", repoPath, workDir}
	if strings.TrimSpace(branch) != "" {
		args = []string{"clone", "--no-hardlinks", "--branch", branch, repoPath, workDir}
	}
	if _, err := Run(ctx, ".", args...); err != nil {
		return err
	}
	return nil
}

// ApplyDiff applies a unified diff (the "diff prelude", GLOSSARY) on top of
// the checkout at workDir. An empty diff is a valid no-op.
func ApplyDiff(ctx context.Context, workDir string, diff []byte) error {
	if len(strings.TrimSpace(string(diff))) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, "git", "apply", "--whitespace=nowarn")
	cmd.Dir = workDir
	cmd.Stdin = strings.NewReader(string(diff))
	output, err := cmd.CombinedOutput()
	if err != nil {
		return herrors.New(herrors.Child, "git apply",
			fmt.Errorf("%w (%s)", err, strings.TrimSpace(string(output))))
	}
	return nil
}
