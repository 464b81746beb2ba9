package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the authenticated actor identity in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor identity from context.
// Returns the empty string when the request carries no identity.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}
