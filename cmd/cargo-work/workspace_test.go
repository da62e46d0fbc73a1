package main

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func TestResolveRepoUsesGitToplevelName(t *testing.T) {
	dir := chdirTemp(t)
	runGit(t, dir, "init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial")

	opts := &clientOptions{}
	repo, err := opts.resolveRepo(context.Background())
	if err != nil {
		t.Fatalf("resolveRepo: %v", err)
	}
	if repo != filepath.Base(dir) {
		t.Fatalf("expected repo %q, got %q", filepath.Base(dir), repo)
	}
}

func TestResolveRepoPrefersExplicitFlag(t *testing.T) {
	chdirTemp(t)
	opts := &clientOptions{repo: "explicit-repo"}
	repo, err := opts.resolveRepo(context.Background())
	if err != nil {
		t.Fatalf("resolveRepo: %v", err)
	}
	if repo != "explicit-repo" {
		t.Fatalf("expected explicit repo name, got %q", repo)
	}
}

func TestResolveBranchAndDiff(t *testing.T) {
	dir := chdirTemp(t)
	runGit(t, dir, "init", "-b", "work")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-m", "initial")

	opts := &clientOptions{}
	branch, err := opts.resolveBranch(context.Background())
	if err != nil {
		t.Fatalf("resolveBranch: %v", err)
	}
	if branch != "work" {
		t.Fatalf("expected branch %q, got %q", "work", branch)
	}

	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\n"), 0o644); err != nil {
		t.Fatalf("modify file: %v", err)
	}
	diff, err := diffHEAD(context.Background())
	if err != nil {
		t.Fatalf("diffHEAD: %v", err)
	}
	if len(diff) == 0 {
		t.Fatalf("expected a non-empty diff after modifying a tracked file")
	}
}

func TestMergedEnvRequestValuesWin(t *testing.T) {
	opts := &clientOptions{envPairs: []string{"REPO=sneaky", "FOO=bar"}}
	env, err := opts.mergedEnv(map[string]string{"REPO": "real-repo"})
	if err != nil {
		t.Fatalf("mergedEnv: %v", err)
	}
	if env["REPO"] != "real-repo" {
		t.Fatalf("expected request-specific REPO to win, got %q", env["REPO"])
	}
	if env["FOO"] != "bar" {
		t.Fatalf("expected -e pair to survive merge, got %q", env["FOO"])
	}
}

func TestMergedEnvRejectsMalformedPair(t *testing.T) {
	opts := &clientOptions{envPairs: []string{"NOVALUE"}}
	if _, err := opts.mergedEnv(nil); err == nil {
		t.Fatalf("expected error for malformed -e pair")
	}
}
