package main

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.horsed.dev/horsed/internal/gitwork"
)

// clientOptions holds the flags shared by every cargo-work subcommand: how
// to reach the server, which identity to authenticate with, and the
// REPO/BRANCH pair a request implies when not given explicitly (§4.7).
type clientOptions struct {
	addr     string
	keyPath  string
	repo     string
	branch   string
	envPairs []string
}

// resolveRepo returns the configured --repo, or infers it from the current
// git checkout's toplevel directory name when empty.
func (o *clientOptions) resolveRepo(ctx context.Context) (string, error) {
	if strings.TrimSpace(o.repo) != "" {
		return o.repo, nil
	}
	out, err := gitwork.Run(ctx, ".", "rev-parse", "--show-toplevel")
	if err != nil {
		return "", fmt.Errorf("not inside a git repository, pass --repo explicitly: %w", err)
	}
	top := strings.TrimSpace(strings.ReplaceAll(out, "\\", "/"))
	return path.Base(top), nil
}

// resolveBranch returns the configured --branch, or the current checkout's
// branch name when empty.
func (o *clientOptions) resolveBranch(ctx context.Context) (string, error) {
	if strings.TrimSpace(o.branch) != "" {
		return o.branch, nil
	}
	out, err := gitwork.Run(ctx, ".", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve current branch, pass --branch explicitly: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// diffHEAD computes the working tree's diff prelude (GLOSSARY: "the git
// diff HEAD output streamed from client to server before a cargo or just
// action runs").
func diffHEAD(ctx context.Context) ([]byte, error) {
	out, err := gitwork.Run(ctx, ".", "diff", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("compute diff prelude: %w", err)
	}
	return []byte(out), nil
}

// mergedEnv combines the caller's -e KEY=VALUE pairs with request-specific
// variables, with request-specific values taking precedence so a careless
// -e REPO=... can't silently redirect the action.
func (o *clientOptions) mergedEnv(extra map[string]string) (map[string]string, error) {
	env := make(map[string]string, len(o.envPairs)+len(extra))
	for _, pair := range o.envPairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid -e value %q, want KEY=VALUE", pair)
		}
		env[name] = value
	}
	for k, v := range extra {
		env[k] = v
	}
	return env, nil
}
