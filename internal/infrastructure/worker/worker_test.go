package worker

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
)

// mockWorker records lifecycle calls
type mockWorker struct {
	name     string
	startErr error
	stopErr  error
	log      *[]string
	mu       *sync.Mutex
}

func (m *mockWorker) record(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*m.log = append(*m.log, s)
}

func (m *mockWorker) Start(context.Context) error {
	m.record("start " + m.name)
	return m.startErr
}

func (m *mockWorker) Stop(context.Context) error {
	m.record("stop " + m.name)
	return m.stopErr
}

func (m *mockWorker) Name() string { return m.name }

func TestManager_Lifecycle(t *testing.T) {
	var (
		log []string
		mu  sync.Mutex
	)
	mk := func(name string, startErr, stopErr error) *mockWorker {
		return &mockWorker{name: name, startErr: startErr, stopErr: stopErr, log: &log, mu: &mu}
	}

	m := NewManager(zap.NewNop())
	m.Register(mk("a", nil, nil))
	m.Register(mk("broken", errors.New("no"), nil))
	m.Register(mk("b", nil, errors.New("stuck")))
	assert.Equal(t, 3, m.Count())

	ctx := context.Background()
	require.NoError(t, m.StartAll(ctx))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(ctx), "second start is rejected")

	err := m.StopAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: stuck")
	assert.False(t, m.IsRunning())

	assert.Equal(t, []string{"start a", "start broken", "start b", "stop b", "stop a"}, log)
	assert.NoError(t, m.StopAll(ctx), "stopping twice is a no-op")
}

// mockBackfiller implements Backfiller for testing
type mockBackfiller struct {
	calls      int32
	backfillFn func(ctx context.Context, limit int) (int, error)
}

func (m *mockBackfiller) Backfill(ctx context.Context, limit int) (int, error) {
	atomic.AddInt32(&m.calls, 1)
	return m.backfillFn(ctx, limit)
}

func TestConversionBackfillWorker_RunsPeriodically(t *testing.T) {
	b := &mockBackfiller{backfillFn: func(_ context.Context, limit int) (int, error) {
		assert.Equal(t, 10, limit)
		return 1, nil
	}}
	w := NewConversionBackfillWorker(b, ConversionBackfillConfig{Interval: 10 * time.Millisecond, BatchSize: 10}, zap.NewNop())
	assert.Equal(t, "ConversionBackfill", w.Name())

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&b.calls) >= 3 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	after := atomic.LoadInt32(&b.calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&b.calls), "no passes after stop")
	assert.NoError(t, w.Stop(ctx))
}

func TestConversionBackfillWorker_ErrorsDoNotStopLoop(t *testing.T) {
	b := &mockBackfiller{backfillFn: func(context.Context, int) (int, error) {
		return 0, errors.New("rates unavailable")
	}}
	w := NewConversionBackfillWorker(b, ConversionBackfillConfig{Interval: 5 * time.Millisecond}, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&b.calls) >= 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, w.Stop(context.Background()))
}

func TestConversionBackfillWorker_StopWaitsForPass(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	b := &mockBackfiller{backfillFn: func(ctx context.Context, _ int) (int, error) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return 0, ctx.Err()
	}}
	w := NewConversionBackfillWorker(b, ConversionBackfillConfig{Interval: time.Hour}, zap.NewNop())
	require.NoError(t, w.Start(context.Background()))
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Stop(ctx), context.DeadlineExceeded)

	close(release)
}
