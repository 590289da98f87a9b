package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hossamSharif/TafawoqWeb-sub004/internal/models"
)

func TestTierResolverCachesPlan(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, models.TierFree)

	tier, err := env.tiers.Tier(env.ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, tier)
	assert.Equal(t, "free", mustGet(t, env, tierCacheKey(user)))

	// A plan change is invisible until the cache entry goes away.
	require.NoError(t, env.store.UpsertUser(env.ctx, &models.User{ID: user, Email: "x@example.com", Plan: models.TierPremium}))
	tier, err = env.tiers.Tier(env.ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.TierFree, tier)

	tier, err = env.tiers.Refresh(env.ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, tier)
	assert.Equal(t, "premium", mustGet(t, env, tierCacheKey(user)))
}

func TestTierRefreshUnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.tiers.Refresh(env.ctx, uuid.New())
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestTierResolverWithoutRedis(t *testing.T) {
	env := newTestEnv(t)
	user := env.user(t, models.TierPremium)

	resolver := NewTierResolver(env.store, nil, 0, env.tiers.logger)
	tier, err := resolver.Tier(env.ctx, user)
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, tier)
	assert.NoError(t, resolver.Invalidate(env.ctx, user))
}

func mustGet(t *testing.T, env *testEnv, key string) string {
	t.Helper()
	v, err := env.mr.Get(key)
	require.NoError(t, err)
	return v
}
