package protocol

import "context"

type originKey struct{}

// WithOrigin binds the id of the connection a message or tool call came from.
func WithOrigin(ctx context.Context, connID string) context.Context {
	return context.WithValue(ctx, originKey{}, connID)
}

// OriginFrom returns the bound connection id, or "" when none is bound.
func OriginFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(originKey{}).(string)
	return id
}
