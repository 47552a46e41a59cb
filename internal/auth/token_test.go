package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duffel/pkg/fault"
	"duffel/pkg/model"
)

func TestTokenRoundTrip(t *testing.T) {
	mgr := NewTokenManager("test-secret", "duffel", time.Minute)
	actor := model.NewActorID()

	raw, err := mgr.Mint(actor)
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	got, err := mgr.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestVerifyRejections(t *testing.T) {
	mgr := NewTokenManager("test-secret", "duffel", time.Minute)
	actor := model.NewActorID()

	t.Run("expired", func(t *testing.T) {
		expired := NewTokenManager("test-secret", "duffel", -time.Minute)
		raw, err := expired.Mint(actor)
		require.NoError(t, err)

		_, err = mgr.Verify(raw)
		require.Error(t, err)
		assert.True(t, fault.HasCode(err, fault.CodeUnauthorized))
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenManager("other-secret", "duffel", time.Minute)
		raw, err := other.Mint(actor)
		require.NoError(t, err)

		_, err = mgr.Verify(raw)
		require.Error(t, err)
		assert.True(t, fault.HasCode(err, fault.CodeUnauthorized))
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenManager("test-secret", "someone-else", time.Minute)
		raw, err := other.Mint(actor)
		require.NoError(t, err)

		_, err = mgr.Verify(raw)
		require.Error(t, err)
		assert.True(t, fault.HasCode(err, fault.CodeUnauthorized))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := mgr.Verify("not.a.token")
		require.Error(t, err)
		assert.True(t, fault.HasCode(err, fault.CodeUnauthorized))
	})
}

func TestMemoryACL(t *testing.T) {
	acl := NewMemoryACL()
	ctx := t.Context()
	list := model.NewListID()
	actor := model.NewActorID()

	ok, err := acl.CanAccess(ctx, actor, list)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, acl.Grant(ctx, list, actor))
	ok, err = acl.CanAccess(ctx, actor, list)
	require.NoError(t, err)
	assert.True(t, ok)

	// Membership is per list.
	ok, err = acl.CanAccess(ctx, actor, model.NewListID())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, acl.Revoke(ctx, list, actor))
	ok, err = acl.CanAccess(ctx, actor, list)
	require.NoError(t, err)
	assert.False(t, ok)
}
