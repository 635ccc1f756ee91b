package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLimiterSpacesConsecutiveFetches(t *testing.T) {
	t.Parallel()

	l := New(Config{MinDelay: 60 * time.Millisecond, MaxDelay: 60 * time.Millisecond}, zap.NewNop())
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://acme.com/"))
	require.Less(t, time.Since(start), 30*time.Millisecond, "first fetch should not wait")

	second := time.Now()
	require.NoError(t, l.Wait(ctx, "https://acme.com/services"))
	require.GreaterOrEqual(t, time.Since(second), 40*time.Millisecond)

	third := time.Now()
	require.NoError(t, l.Wait(ctx, "https://globex.com/"))
	require.GreaterOrEqual(t, time.Since(third), 40*time.Millisecond, "spacing applies across sites")
}

func TestLimiterDisabled(t *testing.T) {
	t.Parallel()

	l := New(Config{}, nil)
	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Wait(context.Background(), "https://acme.com/"))
	}
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestLimiterHonorsContext(t *testing.T) {
	t.Parallel()

	l := New(Config{MinDelay: time.Hour, MaxDelay: time.Hour}, zap.NewNop())
	require.NoError(t, l.Wait(context.Background(), "https://acme.com/"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://acme.com/services")
	require.Error(t, err)
}

func TestNextDelayStaysWithinBounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		draw float64
		want time.Duration
	}{
		{name: "low", draw: 0, want: time.Second},
		{name: "mid", draw: 0.5, want: 1500 * time.Millisecond},
		{name: "high", draw: 0.75, want: 1750 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			l := New(Config{MinDelay: time.Second, MaxDelay: 2 * time.Second}, zap.NewNop())
			l.randFloat = func() float64 { return tc.draw }
			require.Equal(t, tc.want, l.nextDelay())
		})
	}
}

func TestNewClampsInvertedBounds(t *testing.T) {
	t.Parallel()

	l := New(Config{MinDelay: 2 * time.Second, MaxDelay: time.Second}, zap.NewNop())
	require.Equal(t, 2*time.Second, l.nextDelay())
}
