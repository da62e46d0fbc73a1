// Package repopath resolves the `REPO` environment variable sent by a client
// (§3 Connection state, §9 Open Questions) into an on-disk path beneath the
// server's repo root, pinning the open question left by the original source:
// REPO is sanitized and joined as "<repo-root>/<repo>.git", rejecting any
// value that would escape the root.
package repopath

import (
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"

	"go.horsed.dev/horsed/internal/herrors"
	"go.horsed.dev/horsed/schema"
)

// Resolve maps a client-supplied repo name to the bare repository path under
// root. Surrounding whitespace, a trailing ".git" suffix and leading or
// trailing "/" are removed before the name is securely joined, so "a" and
// "a.git" resolve identically. Empty names and names containing ".." (such
// as "../../etc") are rejected; inner "/" is kept, so "a/b" resolves to
// "<root>/a/b.git".
func Resolve(root string, name schema.RepoName) (string, error) {
	clean := strings.TrimSuffix(strings.TrimSpace(string(name)), ".git")
	clean = strings.Trim(clean, "/")
	if clean == "" {
		return "", herrors.Newf(herrors.Protocol, "resolve repo path", "empty REPO value")
	}
	if strings.Contains(clean, "..") {
		return "", herrors.Newf(herrors.Protocol, "resolve repo path", "repo name must not contain '..'")
	}
	path, err := securejoin.SecureJoin(root, clean+".git")
	if err != nil {
		return "", herrors.IOErr("resolve repo path", err)
	}
	return path, nil
}
