// Package logx provides context-based logger annotation, following the same
// de-duplicating context-key pattern the teacher uses for per-user logging.
package logx

import (
	"context"

	"go.horsed.dev/horsed/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	connectionKey contextKey = iota
	actionKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithConnection annotates the logger with the connection id if present.
func WithConnection(ctx context.Context, id schema.ConnectionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if id == "" {
		return log
	}
	if current, ok := ctx.Value(connectionKey).(schema.ConnectionID); ok && current == id {
		return log
	}
	return log.With("connection", id)
}

// WithAction annotates the logger with the dispatched action.
func WithAction(ctx context.Context, action schema.Action) pslog.Logger {
	log := WithConnection(ctx, connectionFrom(ctx))
	if action == "" {
		return log
	}
	if current, ok := ctx.Value(actionKey).(schema.Action); ok && current == action {
		return log
	}
	return log.With("action", action)
}

// WithRepo annotates the logger with repo metadata when available.
func WithRepo(log pslog.Logger, repo schema.RepoRef) pslog.Logger {
	if repo.Name != "" {
		log = log.With("repo", repo.Name)
	}
	if repo.Path != "" {
		log = log.With("repo_path", repo.Path)
	}
	return log
}

// ContextWithConnection stores the connection marker for log de-duplication.
func ContextWithConnection(ctx context.Context, id schema.ConnectionID) context.Context {
	if ctx == nil || id == "" {
		return ctx
	}
	return context.WithValue(ctx, connectionKey, id)
}

// ContextWithAction stores the action marker for log de-duplication.
func ContextWithAction(ctx context.Context, action schema.Action) context.Context {
	if ctx == nil || action == "" {
		return ctx
	}
	return context.WithValue(ctx, actionKey, action)
}

// ContextWithConnectionLogger attaches the logger and connection marker to ctx.
func ContextWithConnectionLogger(ctx context.Context, log pslog.Logger, id schema.ConnectionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithConnection(ctx, id)
}

func connectionFrom(ctx context.Context) schema.ConnectionID {
	id, _ := ctx.Value(connectionKey).(schema.ConnectionID)
	return id
}
