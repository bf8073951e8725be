package governor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rushteam/ltrkit/core"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"default", DefaultConfig(), true},
		{"zero threads", Config{MaxThreads: 0, MaxQueryThreads: 1}, false},
		{"query above total", Config{MaxThreads: 2, MaxQueryThreads: 3}, false},
		{"zero query", Config{MaxThreads: 2, MaxQueryThreads: 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, core.IsConfigError(err), "err = %v", err)
		})
	}
}

func TestNilGovernor_RunsInline(t *testing.T) {
	var g *Governor
	var order []int
	tasks := make([]Task, 5)
	for i := range tasks {
		tasks[i] = func(context.Context) error {
			order = append(order, i)
			return nil
		}
	}
	require.NoError(t, g.Run(context.Background(), tasks))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, Stats{}, g.Stats())
	g.Close()
}

func TestRun_LimitsConcurrency(t *testing.T) {
	g, err := New(Config{MaxThreads: 4, MaxQueryThreads: 2, AcquireTimeout: time.Second})
	require.NoError(t, err)
	defer g.Close()

	var cur, peak atomic.Int64
	tasks := make([]Task, 20)
	for i := range tasks {
		tasks[i] = func(context.Context) error {
			n := cur.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			cur.Add(-1)
			return nil
		}
	}
	require.NoError(t, g.Run(context.Background(), tasks))
	assert.LessOrEqual(t, peak.Load(), int64(2))

	st := g.Stats()
	assert.Equal(t, int64(20), st.Pooled+st.Inline)
	assert.Equal(t, int64(0), st.Active)
}

func TestRun_AcquireTimeoutRunsOnCaller(t *testing.T) {
	zc, logs := observer.New(zapcore.WarnLevel)
	g, err := New(Config{MaxThreads: 1, MaxQueryThreads: 1, AcquireTimeout: 10 * time.Millisecond},
		WithLogger(zap.New(zc)))
	require.NoError(t, err)
	defer g.Close()

	release := make(chan struct{})
	tasks := []Task{
		func(context.Context) error {
			<-release
			return nil
		},
		func(context.Context) error {
			close(release)
			return nil
		},
	}
	require.NoError(t, g.Run(context.Background(), tasks))

	st := g.Stats()
	assert.Equal(t, int64(1), st.Pooled)
	assert.Equal(t, int64(1), st.Inline)
	assert.Equal(t, int64(1), st.AcquireTimeouts)
	assert.Equal(t, 1, logs.FilterMessage("no free slot, running task on caller").Len())
}

func TestRun_CancelledStopsScheduling(t *testing.T) {
	g, err := New(DefaultConfig())
	require.NoError(t, err)
	defer g.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran atomic.Int64
	tasks := []Task{
		func(context.Context) error { ran.Add(1); return nil },
		func(context.Context) error { ran.Add(1); return nil },
	}
	err = g.Run(ctx, tasks)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), ran.Load())
	assert.Equal(t, int64(2), g.Stats().Skipped)

	var nilGov *Governor
	assert.ErrorIs(t, nilGov.Run(ctx, tasks), context.Canceled)
}

func TestRun_ErrorAndPanic(t *testing.T) {
	g, err := New(Config{MaxThreads: 1, MaxQueryThreads: 1, AcquireTimeout: time.Second})
	require.NoError(t, err)
	defer g.Close()

	boom := errors.New("boom")
	err = g.Run(context.Background(), []Task{func(context.Context) error { return boom }})
	assert.ErrorIs(t, err, boom)

	err = g.Run(context.Background(), []Task{func(context.Context) error { panic("bad") }})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task panic")
	assert.Equal(t, int64(1), g.Stats().Panics)
}

type recordingObserver struct {
	mu       sync.Mutex
	modes    map[string]int
	timeouts int
	skipped  int
}

func (o *recordingObserver) ObserveTask(mode string, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.modes == nil {
		o.modes = map[string]int{}
	}
	o.modes[mode]++
}

func (o *recordingObserver) ObserveAcquireTimeout() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timeouts++
}

func (o *recordingObserver) ObserveSkipped(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped += n
}

func TestRun_Observer(t *testing.T) {
	obs := &recordingObserver{}
	g, err := New(Config{MaxThreads: 2, MaxQueryThreads: 2, AcquireTimeout: time.Second}, WithObserver(obs))
	require.NoError(t, err)
	defer g.Close()

	tasks := []Task{
		func(context.Context) error { return nil },
		func(context.Context) error { return nil },
		func(context.Context) error { return nil },
	}
	require.NoError(t, g.Run(context.Background(), tasks))

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Equal(t, 3, obs.modes[ModePool])
	assert.Equal(t, 0, obs.timeouts)
}
