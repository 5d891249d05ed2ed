package auth_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/gridtokenx/go-auth"
	"github.com/stretchr/testify/assert"
)

func TestIdentityContext(t *testing.T) {
	identity := &auth.Identity{
		AccountID: uuid.New(),
		Username:  "alice",
		Roles:     []auth.Role{auth.RoleModerator},
	}

	ctx := auth.WithIdentity(context.Background(), identity)

	got, ok := auth.IdentityFromContext(ctx)
	assert.True(t, ok)
	assert.Same(t, identity, got)

	assert.True(t, auth.HasRoleInContext(ctx, auth.RoleModerator))
	assert.False(t, auth.HasRoleInContext(ctx, auth.RoleAdmin))
}

func TestIdentityContextMissing(t *testing.T) {
	_, ok := auth.IdentityFromContext(context.Background())
	assert.False(t, ok)

	//nolint:staticcheck
	_, ok = auth.IdentityFromContext(nil)
	assert.False(t, ok)

	ctx := auth.WithIdentity(context.Background(), nil)
	_, ok = auth.IdentityFromContext(ctx)
	assert.False(t, ok)

	assert.False(t, auth.HasRoleInContext(context.Background(), auth.RoleUser))
}
