package governor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAdmitRespectsMinInterval(t *testing.T) {
	g := New(Config{PerSourceMinInterval: time.Hour, MaxConcurrentSources: 5, MaxWorkers: 5}, nil)
	defer g.Close()

	decision, release, err := g.TryAdmit(context.Background(), "src-1")
	require.NoError(t, err)
	assert.Equal(t, Admitted, decision)
	release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = g.TryAdmit(ctx, "src-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTryAdmitConcurrencyBound(t *testing.T) {
	g := New(Config{MaxConcurrentSources: 2, MaxWorkers: 2, PerSourceMinInterval: time.Millisecond}, nil)
	defer g.Close()

	var inFlight int64
	var maxSeen int64
	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			_, release, err := g.TryAdmit(context.Background(), sourceName(n))
			if err != nil {
				return
			}
			cur := atomic.AddInt64(&inFlight, 1)
			for {
				old := atomic.LoadInt64(&maxSeen)
				if cur <= old || atomic.CompareAndSwapInt64(&maxSeen, old, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			release()
		}(i)
	}
	for i := 0; i < 6; i++ {
		<-done
	}
	assert.LessOrEqual(t, atomic.LoadInt64(&maxSeen), int64(2))
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	g := New(Config{CircuitTripThreshold: 2, CircuitCooldown: time.Hour, PerSourceMinInterval: 0, MaxConcurrentSources: 5, MaxWorkers: 5}, nil)
	defer g.Close()

	g.Feedback("flaky", Feedback{Success: false})
	g.Feedback("flaky", Feedback{Success: false})

	_, _, err := g.TryAdmit(context.Background(), "flaky")
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestSampleOnceAssertsPauseOverThreshold(t *testing.T) {
	g := New(Config{CPUPauseThreshold: 50, PauseCooldown: 50 * time.Millisecond}, fakeSampler{cpu: 95})
	defer g.Close()
	g.sampleOnce()
	assert.True(t, g.Paused())
}

type fakeSampler struct{ cpu, mem float64 }

func (f fakeSampler) CPUPercent() (float64, error) { return f.cpu, nil }
func (f fakeSampler) MemPercent() (float64, error) { return f.mem, nil }

func sourceName(n int) string {
	return string(rune('a' + n))
}
