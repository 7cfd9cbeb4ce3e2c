package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitPacesSameHost(t *testing.T) {
	t.Parallel()
	l := New(Config{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://www.soliscloud.com/login"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://www.soliscloud.com/station"))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestWaitHostsAreIndependent(t *testing.T) {
	t.Parallel()
	l := New(Config{RPS: 0.1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example/"))
	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example/"))
	assert.Less(t, time.Since(start), time.Second)
}

func TestWaitHonoursContext(t *testing.T) {
	t.Parallel()
	l := New(Config{RPS: 0.01, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://a.example/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "https://a.example/next"))
}

func TestUnlimitedWhenRateUnset(t *testing.T) {
	t.Parallel()
	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 20; i++ {
		require.NoError(t, l.Wait(ctx, "https://a.example/"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestHost(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "sg5.isolarcloud.com.hk", Host("https://SG5.isolarcloud.com.hk/#/plantList"))
	assert.Equal(t, "unknown", Host("::not a url"))
	assert.Equal(t, "unknown", Host(""))
}
