package actorctx

import (
	"context"

	"github.com/geocoder89/fleethub/internal/auth"
)

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying the verified token identity.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (auth.Identity, bool) {
	v, ok := ctx.Value(ctxKey{}).(auth.Identity)

	return v, ok && v.ID != ""
}

func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)

	return id.ID, ok
}
