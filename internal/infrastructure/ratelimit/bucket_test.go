package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireBurstThenBlocks(t *testing.T) {
	limits := map[string]ServiceLimit{"urlhaus": {Rate: 10, Burst: 2}}
	l := NewLimiters(limits, true, nil)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Acquire(ctx, "urlhaus"))
	require.NoError(t, l.Acquire(ctx, "urlhaus"))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "burst tokens are immediate")

	// Third token must wait roughly 1/rate.
	require.NoError(t, l.Acquire(ctx, "urlhaus"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestAcquireDisabledIsNoop(t *testing.T) {
	limits := map[string]ServiceLimit{"virustotal": {Rate: 0.001, Burst: 1}}
	l := NewLimiters(limits, false, nil)

	start := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(context.Background(), "virustotal"))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestAcquireUnknownServiceIsNoop(t *testing.T) {
	l := NewLimiters(nil, true, nil)
	assert.NoError(t, l.Acquire(context.Background(), "unconfigured"))
}

func TestAcquireHonorsCancellation(t *testing.T) {
	limits := map[string]ServiceLimit{"dshield": {Rate: 0.01, Burst: 1}}
	l := NewLimiters(limits, true, nil)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx, "dshield"))

	cancelCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	err := l.Acquire(cancelCtx, "dshield")
	assert.Error(t, err, "blocked acquire unblocks on cancellation")
}

func TestNilLimitersAllow(t *testing.T) {
	var l *Limiters
	assert.NoError(t, l.Acquire(context.Background(), "dshield"))
}

func TestDefaultLimitsCoverAllServices(t *testing.T) {
	limits := DefaultLimits()
	for _, service := range []string{"dshield", "urlhaus", "spur", "virustotal"} {
		assert.Contains(t, limits, service)
	}
}
