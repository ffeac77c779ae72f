package paymentwebhook

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type blockingProcessor struct {
	release chan struct{}
	running atomic.Int32
	peak    atomic.Int32
	done    atomic.Int32
	mu      sync.Mutex
	ctxErrs []error
}

func newBlockingProcessor() *blockingProcessor {
	return &blockingProcessor{release: make(chan struct{})}
}

func (p *blockingProcessor) Process(ctx context.Context, _ Notification) (string, error) {
	now := p.running.Add(1)
	for {
		peak := p.peak.Load()
		if now <= peak || p.peak.CompareAndSwap(peak, now) {
			break
		}
	}
	defer p.running.Add(-1)
	defer p.done.Add(1)

	select {
	case <-p.release:
	case <-ctx.Done():
	}
	p.mu.Lock()
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	p.mu.Unlock()
	return OutcomeApplied, nil
}

func TestDispatcherSubmitReturnsBeforeProcessing(t *testing.T) {
	proc := newBlockingProcessor()
	d, err := NewDispatcher(DispatcherParams{Processor: proc, Workers: 2, Timeout: time.Minute})
	require.NoError(t, err)

	reqCtx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Submit(reqCtx, Notification{Topic: TopicPayment, ID: "1"}))
	cancel()

	require.Eventually(t, func() bool { return proc.running.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(proc.release)
	require.NoError(t, d.Close(context.Background()))
	require.Equal(t, int32(1), proc.done.Load())
	require.NoError(t, proc.ctxErrs[0], "request cancellation does not reach processing")
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	proc := newBlockingProcessor()
	d, err := NewDispatcher(DispatcherParams{Processor: proc, Workers: 2, Timeout: time.Minute})
	require.NoError(t, err)

	for i := 0; i < 6; i++ {
		require.NoError(t, d.Submit(context.Background(), Notification{Topic: TopicPayment}))
	}
	require.Eventually(t, func() bool { return proc.running.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(2), proc.running.Load())

	close(proc.release)
	require.NoError(t, d.Close(context.Background()))
	require.Equal(t, int32(6), proc.done.Load())
	require.Equal(t, int32(2), proc.peak.Load())
}

func TestDispatcherCloseRejectsAndCancelsOnDeadline(t *testing.T) {
	proc := newBlockingProcessor()
	d, err := NewDispatcher(DispatcherParams{Processor: proc, Workers: 1, Timeout: time.Minute})
	require.NoError(t, err)

	require.NoError(t, d.Submit(context.Background(), Notification{Topic: TopicPayment}))
	require.Eventually(t, func() bool { return proc.running.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	require.Equal(t, int32(1), proc.done.Load())
	require.ErrorIs(t, proc.ctxErrs[0], context.Canceled)

	require.ErrorIs(t, d.Submit(context.Background(), Notification{}), ErrDispatcherClosed)
}

func TestDispatcherAppliesProcessingTimeout(t *testing.T) {
	proc := newBlockingProcessor()
	d, err := NewDispatcher(DispatcherParams{Processor: proc, Timeout: 10 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, d.Submit(context.Background(), Notification{Topic: TopicPayment}))
	require.NoError(t, d.Close(context.Background()))
	require.ErrorIs(t, proc.ctxErrs[0], context.DeadlineExceeded)
}

func TestNewDispatcherRequiresProcessor(t *testing.T) {
	_, err := NewDispatcher(DispatcherParams{})
	require.Error(t, err)
}

func TestDispatcherRefusesBeyondBacklog(t *testing.T) {
	proc := newBlockingProcessor()
	d, err := NewDispatcher(DispatcherParams{Processor: proc, Workers: 2, Backlog: 1, Timeout: time.Minute})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Submit(context.Background(), Notification{Topic: TopicPayment}))
	}
	require.ErrorIs(t, d.Submit(context.Background(), Notification{Topic: TopicPayment}), ErrDispatcherBusy)
	require.Eventually(t, func() bool { return proc.running.Load() == 2 }, time.Second, 5*time.Millisecond)

	close(proc.release)
	require.NoError(t, d.Close(context.Background()))
	require.Equal(t, int32(3), proc.done.Load())
}

func TestDispatcherFreesBacklogSlotsAfterProcessing(t *testing.T) {
	proc := newBlockingProcessor()
	close(proc.release)
	d, err := NewDispatcher(DispatcherParams{Processor: proc, Workers: 1, Timeout: time.Minute})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, d.Submit(context.Background(), Notification{Topic: TopicPayment}))
		require.Eventually(t, func() bool { return proc.done.Load() == int32(i+1) }, time.Second, 5*time.Millisecond)
	}
	require.NoError(t, d.Close(context.Background()))
}
