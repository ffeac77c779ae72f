package paymentwebhook

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var (
	ErrDispatcherClosed = errors.New("webhook dispatcher closed")
	// ErrDispatcherBusy means every worker and backlog slot is taken.
	ErrDispatcherBusy = errors.New("webhook dispatcher busy")
)

type processor interface {
	Process(ctx context.Context, n Notification) (string, error)
}

// DispatcherParams configures the asynchronous notification runner.
type DispatcherParams struct {
	Processor processor
	Workers   int
	Backlog   int
	Timeout   time.Duration
	Logger    *logger.Logger
}

// Dispatcher runs notifications in the background so the HTTP handler can
// acknowledge the gateway before any lookup happens. At most Workers
// notifications are processed at once and at most Backlog more wait for a
// slot; anything beyond that is refused and left to the pending sweep.
type Dispatcher struct {
	processor processor
	admit     *semaphore.Weighted
	sem       *semaphore.Weighted
	timeout   time.Duration
	logg      *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Processor == nil {
		return nil, errors.New("notification processor required")
	}
	workers := params.Workers
	if workers <= 0 {
		workers = 16
	}
	backlog := params.Backlog
	if backlog <= 0 {
		backlog = 256
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		processor: params.Processor,
		admit:     semaphore.NewWeighted(int64(workers + backlog)),
		sem:       semaphore.NewWeighted(int64(workers)),
		timeout:   timeout,
		logg:      logg,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Submit schedules n and returns immediately. reqCtx only contributes its
// logging fields; its cancellation does not stop processing.
func (d *Dispatcher) Submit(reqCtx context.Context, n Notification) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	if !d.admit.TryAcquire(1) {
		d.mu.Unlock()
		return ErrDispatcherBusy
	}
	d.wg.Add(1)
	d.mu.Unlock()

	detached := context.WithoutCancel(reqCtx)
	go func() {
		defer d.wg.Done()
		defer d.admit.Release(1)
		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			d.logg.Warn(d.logg.WithField(detached, "notification_id", n.ID), "notification dropped on shutdown")
			return
		}
		defer d.sem.Release(1)

		ctx, cancel := context.WithTimeout(detached, d.timeout)
		defer cancel()
		stop := context.AfterFunc(d.ctx, cancel)
		defer stop()

		outcome, err := d.processor.Process(ctx, n)
		logCtx := d.logg.WithFields(detached, map[string]any{"notification_id": n.ID, "outcome": outcome})
		if err != nil {
			d.logg.Warn(d.logg.WithField(logCtx, "error", err.Error()), "notification processed with error")
			return
		}
		d.logg.Info(logCtx, "notification processed")
	}()
	return nil
}

// Close stops accepting work and waits for in-flight notifications until ctx
// expires, after which they are cancelled.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
