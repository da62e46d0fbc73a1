package gitwork

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunInRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	if _, err := Run(context.Background(), dir, "init"); err != nil {
		t.Fatalf("git init: %v", err)
	}
	if _, err := Run(context.Background(), dir, "status"); err != nil {
		t.Fatalf("git status: %v", err)
	}
}

func TestRunOutsideRepoErrors(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	if _, err := Run(context.Background(), dir, "status"); err == nil {
		t.Fatalf("expected error outside repo")
	}
}

func TestAddAllAndCommit(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	if _, err := Run(context.Background(), dir, "init"); err != nil {
		t.Fatalf("git init: %v", err)
	}
	if _, err := Run(context.Background(), dir, "config", "user.email", "test@example.com"); err != nil {
		t.Fatalf("git config email: %v", err)
	}
	if _, err := Run(context.Background(), dir, "config", "user.name", "tester"); err != nil {
		t.Fatalf("git config name: %v", err)
	}
	path := filepath.Join(dir, "README.md")
	if err := os.WriteFile(path, []byte("hi\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := AddAll(context.Background(), dir); err != nil {
		t.Fatalf("git add: %v", err)
	}
	out, err := Commit(context.Background(), dir, "init")
	if err != nil {
		t.Fatalf("git commit: %v", err)
	}
	if !strings.Contains(out, "1 file") {
		t.Fatalf("unexpected commit output: %q", out)
	}
}

func TestApplyDiffNoOpOnEmpty(t *testing.T) {
	if err := ApplyDiff(context.Background(), t.TempDir(), nil); err != nil {
		t.Fatalf("expected empty diff to be a no-op, got %v", err)
	}
}

func TestCheckoutAndApplyDiff(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	bareParent := t.TempDir()
	bare := filepath.Join(bareParent, "repo.git")
	if _, err := Run(context.Background(), bareParent, "init", "--bare", bare); err != nil {
		t.Fatalf("git init --bare: %v", err)
	}

	seedDir := t.TempDir()
	if _, err := Run(context.Background(), seedDir, "init"); err != nil {
		t.Fatalf("git init seed: %v", err)
	}
	if _, err := Run(context.Background(), seedDir, "config", "user.email", "test@example.com"); err != nil {
		t.Fatalf("config email: %v", err)
	}
	if _, err := Run(context.Background(), seedDir, "config", "user.name", "tester"); err != nil {
		t.Fatalf("config name: %v", err)
	}
	if err := os.WriteFile(filepath.Join(seedDir, "file.txt"), []byte("one\n"), 0o600); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	if err := AddAll(context.Background(), seedDir); err != nil {
		t.Fatalf("add all: %v", err)
	}
	if _, err := Commit(context.Background(), seedDir, "seed"); err != nil {
		t.Fatalf("commit seed: %v", err)
	}
	if _, err := Run(context.Background(), seedDir, "remote", "add", "origin", bare); err != nil {
		t.Fatalf("add remote: %v", err)
	}
	if _, err := Run(context.Background(), seedDir, "push", "origin", "HEAD:refs/heads/main"); err != nil {
		t.Fatalf("push: %v", err)
	}

	workDir := filepath.Join(t.TempDir(), "checkout")
	if err := Checkout(context.Background(), bare, "main", workDir); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if _, err := os.Stat(filepath.Join(workDir, "file.txt")); err != nil {
		t.Fatalf("expected checked out file: %v", err)
	}

	diff := "diff --git a/file.txt b/file.txt\n--- a/file.txt\n+++ b/file.txt\n@@ -1 +1,2 @@\n one\n+two\n"
	if err := ApplyDiff(context.Background(), workDir, []byte(diff)); err != nil {
		t.Fatalf("apply diff: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(workDir, "file.txt"))
	if err != nil {
		t.Fatalf("read patched file: %v", err)
	}
	if string(got) != "one\ntwo\n" {
		t.Fatalf("expected patched contents, got %q", got)
	}
}
