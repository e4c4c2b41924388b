package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyCache_RoundTripAndExpiry(t *testing.T) {
	c := NewMemoryIdempotencyCache()
	clock := time.Unix(0, 0)
	c.now = func() time.Time { return clock }
	ctx := context.Background()

	in := chargeResult{ChargeID: "ch_2", Amount: 1}
	require.NoError(t, c.Set(ctx, "k", in, time.Second))

	var out chargeResult
	found, err := c.Get(ctx, "k", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, in, out)

	clock = clock.Add(2 * time.Second)
	found, err = c.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)
}
