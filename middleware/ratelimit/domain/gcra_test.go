package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide_MonotonicRefill(t *testing.T) {
	for _, tc := range []struct{ rate, burst int }{
		{1, 0}, {20, 3}, {60, 10}, {7, 2}, {600, 50},
	} {
		interval := 60 / float64(tc.rate)
		now := 1_700_000_000.0
		var tat *float64
		for i := 0; i < 200; i++ {
			next, d := Decide(now, tat, tc.rate, tc.burst)
			require.True(t, d.Allowed, "rate=%d burst=%d call=%d", tc.rate, tc.burst, i)
			assert.GreaterOrEqual(t, d.Remaining, 0)
			assert.LessOrEqual(t, d.Remaining, tc.burst)
			tat = &next
			now += interval
		}
	}
}

func TestDecide_BurstExhaustion(t *testing.T) {
	for _, burst := range []int{0, 1, 3, 10} {
		now := 100.0
		var tat *float64
		for i := 0; i < burst+1; i++ {
			next, d := Decide(now, tat, 30, burst)
			require.True(t, d.Allowed, "burst=%d call=%d", burst, i)
			tat = &next
		}
		next, d := Decide(now, tat, 30, burst)
		assert.False(t, d.Allowed, "burst=%d", burst)
		assert.Equal(t, 0, d.Remaining)
		assert.Equal(t, *tat, next, "deny must not move the cursor")
	}
}

func TestDecide_RetryAfterIsEnough(t *testing.T) {
	now := 50.0
	var tat *float64
	var d Decision
	for {
		var next float64
		next, d = Decide(now, tat, 13, 2)
		if !d.Allowed {
			break
		}
		tat = &next
	}
	require.Greater(t, d.RetryAfterSeconds, 0.0)

	_, again := Decide(now+d.RetryAfterSeconds+1e-9, tat, 13, 2)
	assert.True(t, again.Allowed)
}

func TestDecide_ZeroRateAlwaysDenies(t *testing.T) {
	last := 42.0
	for _, burst := range []int{0, 5, 100} {
		next, d := Decide(10, nil, 0, burst)
		assert.False(t, d.Allowed)
		assert.Equal(t, 0, d.Limit)
		assert.True(t, math.IsInf(d.RetryAfterSeconds, 1))
		assert.Equal(t, 10.0, next)

		next, d = Decide(10, &last, -3, burst)
		assert.False(t, d.Allowed)
		assert.Equal(t, last, next)
	}
}

func TestDecide_WriteBucketScenario(t *testing.T) {
	var tat *float64
	for i := 0; i < 4; i++ {
		next, d := Decide(0, tat, 20, 3)
		require.True(t, d.Allowed, "call %d", i+1)
		assert.Equal(t, 4, d.Limit)
		assert.Equal(t, 3-i, d.Remaining)
		assert.Equal(t, 9.0, d.ResetEpochSeconds)
		tat = &next
	}

	_, d := Decide(0, tat, 20, 3)
	require.False(t, d.Allowed)
	assert.InDelta(t, 3.0, d.RetryAfterSeconds, 1e-9)

	_, d = Decide(3, tat, 20, 3)
	assert.True(t, d.Allowed)
}

func TestDecideMillis_WriteBucketScenario(t *testing.T) {
	var tat *int64
	for i := 0; i < 4; i++ {
		res := DecideMillis(0, tat, 3000, 3)
		require.True(t, res.Allowed, "call %d", i+1)
		assert.EqualValues(t, 3-i, res.Remaining)
		assert.EqualValues(t, 4, res.Limit)
		assert.EqualValues(t, 9000, res.ResetMs)
		next := res.TATMs
		tat = &next
	}

	res := DecideMillis(0, tat, 3000, 3)
	require.False(t, res.Allowed)
	assert.EqualValues(t, 3000, res.RetryAfterMs)
	assert.Equal(t, *tat, res.TATMs)
	assert.InDelta(t, 3.0, res.Decision().RetryAfterSeconds, 1e-9)

	res = DecideMillis(3000, tat, 3000, 3)
	assert.True(t, res.Allowed)
}

func TestDecideMillis_MatchesFloat(t *testing.T) {
	var ft *float64
	var it *int64
	nowMs := int64(1_700_000_000_000)
	steps := []int64{0, 0, 0, 500, 2999, 3000, 0, 0, 12000, 1}
	for i, step := range steps {
		nowMs += step
		nextF, fd := Decide(float64(nowMs)/1000, ft, 20, 3)
		res := DecideMillis(nowMs, it, 3000, 3)
		require.Equal(t, fd.Allowed, res.Allowed, "step %d", i)
		assert.Equal(t, fd.Remaining, res.Decision().Remaining, "step %d", i)
		if res.Allowed {
			ft = &nextF
			next := res.TATMs
			it = &next
		}
	}
}

func TestDecideMillis_ZeroInterval(t *testing.T) {
	res := DecideMillis(1000, nil, 0, 4)
	assert.False(t, res.Allowed)
	assert.EqualValues(t, 0, res.Limit)
	assert.Equal(t, int64(math.MaxInt64), res.RetryAfterMs)
}

func TestDecision_RetryAfter(t *testing.T) {
	assert.Zero(t, Decision{}.RetryAfter())
	assert.Equal(t, int64(math.MaxInt64), int64(Decision{RetryAfterSeconds: math.Inf(1)}.RetryAfter()))
	assert.Equal(t, int64(1500e6), int64(Decision{RetryAfterSeconds: 1.5}.RetryAfter()))
}

func TestFallbackDecision(t *testing.T) {
	d := FallbackDecision(Policy{Bucket: "write", RatePerMinute: 20, Burst: 3})
	assert.True(t, d.Allowed)
	assert.True(t, d.Degraded)
	assert.Equal(t, 3, d.Remaining)
	assert.Equal(t, 4, d.Limit)
	assert.Zero(t, d.RetryAfterSeconds)
}
