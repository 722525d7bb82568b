package global

import (
	"context"
)

type ContextKey uint

const (
	CancelKey ContextKey = iota
	VersionKey
	ProcessContextKey
)

func Version(ctx context.Context) string {
	if v, ok := ctx.Value(VersionKey).(string); ok {
		return v
	}
	return "dev"
}

// ProcessContext returns the context cancelled only when the process
// terminates, falling back to ctx.
func ProcessContext(ctx context.Context) context.Context {
	if processCtx, ok := ctx.Value(ProcessContextKey).(context.Context); ok {
		return processCtx
	}
	return ctx
}

// Cancel cancels the command context stored under CancelKey, if any.
func Cancel(ctx context.Context) {
	if cancel, ok := ctx.Value(CancelKey).(context.CancelFunc); ok {
		cancel()
	}
}
