package twse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weihanlu/investrack/internal/domain"
)

func TestDailyLimiterExhaustsQuota(t *testing.T) {
	l := NewDailyLimiter(3)

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(), "request %d should pass", i+1)
	}

	err := l.Allow()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimitExceeded)

	state := l.State()
	assert.Equal(t, 3, state.Limit)
	assert.Equal(t, 3, state.Used)
}

func TestDailyLimiterMinimumLimit(t *testing.T) {
	l := NewDailyLimiter(0)
	require.NoError(t, l.Allow())
	assert.ErrorIs(t, l.Allow(), domain.ErrRateLimitExceeded)
}
