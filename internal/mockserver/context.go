package mockserver

import (
	"context"
)

type contextKey string

const claimsContextKey contextKey = "claims"

func claimsFromContext(ctx context.Context) *claims {
	c, ok := ctx.Value(claimsContextKey).(*claims)
	if !ok {
		return nil
	}
	return c
}

func contextWithClaims(ctx context.Context, c *claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, c)
}
