package adapter

import (
	"context"
	"testing"

	"ecoupon/internal/service/coupon/domain/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEligible(t *testing.T) {
	ctx := context.Background()
	rules, err := NewCelRulesAdapter()
	require.NoError(t, err)

	fact := port.EligibilityFact{UserID: 7, UserName: "alice", Claimed: 1}

	t.Run("empty rule always passes", func(t *testing.T) {
		ok, err := rules.Eligible(ctx, "", fact)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rule on claimed count", func(t *testing.T) {
		ok, err := rules.Eligible(ctx, "claimed < 2", fact)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = rules.Eligible(ctx, "claimed < 1", fact)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("rule on user fields", func(t *testing.T) {
		ok, err := rules.Eligible(ctx, `user_id > 0 && user_name != ""`, fact)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("invalid expression is an error", func(t *testing.T) {
		_, err := rules.Eligible(ctx, "claimed <", fact)
		assert.Error(t, err)
	})

	t.Run("non-bool expression is an error", func(t *testing.T) {
		_, err := rules.Eligible(ctx, "claimed + 1", fact)
		assert.Error(t, err)
	})

	t.Run("compiled programs are cached", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			ok, err := rules.Eligible(ctx, "claimed < 5", fact)
			require.NoError(t, err)
			assert.True(t, ok)
		}
		rules.mu.RLock()
		_, cached := rules.programs["claimed < 5"]
		rules.mu.RUnlock()
		assert.True(t, cached)
	})
}
