package context

import "context"

type ContextKey string

var (
	RequestIDKey    = ContextKey("X-Request-Id")
	FamilyTreeIDKey = ContextKey("X-Family-Tree-Id")
	ActorIDKey      = ContextKey("X-Actor-Id")
	RunIDKey        = ContextKey("X-Run-Id")
)

func SetRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	value, ok := ctx.Value(RequestIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// SetFamilyTreeID scopes the context to a single family tree. Every edge and
// duplicate check is tree-local.
func SetFamilyTreeID(ctx context.Context, familyTreeID string) context.Context {
	return context.WithValue(ctx, FamilyTreeIDKey, familyTreeID)
}

func GetFamilyTreeID(ctx context.Context) string {
	value, ok := ctx.Value(FamilyTreeIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ActorIDKey, actorID)
}

func GetActorID(ctx context.Context) string {
	value, ok := ctx.Value(ActorIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func SetRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, RunIDKey, runID)
}

func GetRunID(ctx context.Context) string {
	value, ok := ctx.Value(RunIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// LogFields returns the request-scoped values that are set, keyed for structured logging.
func LogFields(ctx context.Context) map[string]any {
	fields := map[string]any{}
	if v := GetRequestID(ctx); v != "" {
		fields["request_id"] = v
	}
	if v := GetFamilyTreeID(ctx); v != "" {
		fields["family_tree_id"] = v
	}
	if v := GetActorID(ctx); v != "" {
		fields["actor_id"] = v
	}
	if v := GetRunID(ctx); v != "" {
		fields["run_id"] = v
	}
	return fields
}
