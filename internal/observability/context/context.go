package context

import (
	stdcontext "context"
	"strings"
)

type requestIDKey struct{}
type runIDKey struct{}
type supplierIDKey struct{}
type actorKey struct{}

type actor struct {
	actorType string
	actorID   string
}

func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, requestIDKey{})
}

func WithRunID(ctx stdcontext.Context, runID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, runIDKey{}, strings.TrimSpace(runID))
}

func RunIDFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, runIDKey{})
}

func WithSupplierID(ctx stdcontext.Context, supplierID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, supplierIDKey{}, strings.TrimSpace(supplierID))
}

func SupplierIDFromContext(ctx stdcontext.Context) string {
	return stringValue(ctx, supplierIDKey{})
}

func WithActor(ctx stdcontext.Context, actorType, actorID string) stdcontext.Context {
	return stdcontext.WithValue(ctx, actorKey{}, actor{
		actorType: strings.TrimSpace(actorType),
		actorID:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx stdcontext.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if a, ok := ctx.Value(actorKey{}).(actor); ok {
		return a.actorType, a.actorID
	}
	return "", ""
}

func stringValue(ctx stdcontext.Context, key any) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
