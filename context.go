package goGateway

import "context"

type identifierContextKey struct{}

// WithIdentifier sets the rate-limit identifier for calls made with ctx. Without it the
// current user's name is used, then "anonymous".
func WithIdentifier(ctx context.Context, identifier string) context.Context {
	return context.WithValue(ctx, identifierContextKey{}, identifier)
}

func identifierFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	id, _ := ctx.Value(identifierContextKey{}).(string)
	return id
}
