package stock

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const defaultOpenTimeout = 10 * time.Second

var (
	// ErrHubClosed is returned when subscribing to a hub that has been shut down.
	ErrHubClosed = errors.New("stock hub closed")
	// ErrOpenTimeout is returned when the underlying watch did not open in time.
	ErrOpenTimeout = errors.New("stock watch open timed out")

	errWatchEnded = errors.New("stock watch ended before subscribing")
)

// Watch is a single underlying change feed for one item. Updates must deliver
// the current value first and be closed once the watch ends.
type Watch interface {
	Updates() <-chan models.CatalogItem
	Close() error
}

// Watcher opens underlying watches. ctx bounds the lifetime of the returned
// watch; Open runs outside the hub lock.
type Watcher interface {
	Open(ctx context.Context, key Key) (Watch, error)
}

// Hub multiplexes subscribers onto one underlying watch per item. The watch
// is opened by the first subscriber and closed exactly once, after the last
// subscriber releases.
type Hub struct {
	watcher     Watcher
	logg        *logger.Logger
	metrics     *metrics.StockMetrics
	openTimeout time.Duration

	// base outlives individual subscribers so a shared watch is not tied to
	// whichever request opened it.
	base   context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	entries map[Key]*entry
	nextID  uint64
	closed  bool
}

type entry struct {
	key Key

	// ready is closed once Open returned; watch or openErr is set by then.
	ready   chan struct{}
	openErr error
	waiting int

	watch     Watch
	subs      map[uint64]*Subscription
	last      *models.CatalogItem
	closeOnce sync.Once
	closeErr  error
}

// Subscription is one consumer's view of a shared watch.
type Subscription struct {
	id      uint64
	key     Key
	hub     *Hub
	entry   *entry
	updates chan models.CatalogItem
	done    chan struct{}
	once    sync.Once
}

// HubParams configure a Hub.
type HubParams struct {
	Watcher     Watcher
	Logger      *logger.Logger
	Metrics     *metrics.StockMetrics
	OpenTimeout time.Duration
}

// NewHub builds a hub over the provided watcher.
func NewHub(params HubParams) (*Hub, error) {
	if params.Watcher == nil {
		return nil, errors.New("stock watcher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	openTimeout := params.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultOpenTimeout
	}
	base, cancel := context.WithCancel(context.Background())
	return &Hub{
		watcher:     params.Watcher,
		logg:        logg,
		metrics:     params.Metrics,
		openTimeout: openTimeout,
		base:        base,
		cancel:      cancel,
		entries:     make(map[Key]*entry),
	}, nil
}

// Subscribe attaches a new subscriber to key. The first value delivered is
// the item's current state. The subscription is released when ctx is done or
// Release is called, whichever comes first. Waiting for a new watch to open
// gives up when ctx ends or after the hub's open timeout.
func (h *Hub) Subscribe(ctx context.Context, key Key) (*Subscription, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}

	e, ok := h.entries[key]
	if !ok {
		e = &entry{key: key, ready: make(chan struct{}), subs: make(map[uint64]*Subscription)}
		h.entries[key] = e
		go h.open(e)
	}

	if e.watch == nil {
		e.waiting++
		h.mu.Unlock()
		if err := h.awaitOpen(ctx, e); err != nil {
			return nil, err
		}
		h.mu.Lock()
		e.waiting--
		switch {
		case e.openErr != nil:
			h.mu.Unlock()
			return nil, e.openErr
		case h.closed:
			h.mu.Unlock()
			return nil, ErrHubClosed
		case h.entries[key] != e:
			h.mu.Unlock()
			return nil, errWatchEnded
		}
	}

	sub := h.attach(e)
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Release()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// attach registers a subscriber on an open entry. Called with the hub lock held.
func (h *Hub) attach(e *entry) *Subscription {
	h.nextID++
	sub := &Subscription{
		id:      h.nextID,
		key:     e.key,
		hub:     h,
		entry:   e,
		updates: make(chan models.CatalogItem, 1),
		done:    make(chan struct{}),
	}
	e.subs[sub.id] = sub
	h.metrics.SubscriberAdded()
	if e.last != nil {
		sub.updates <- *e.last
	}
	return sub
}

func (h *Hub) awaitOpen(ctx context.Context, e *entry) error {
	timer := time.NewTimer(h.openTimeout)
	defer timer.Stop()

	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
		h.abandon(e)
		return ctx.Err()
	case <-timer.C:
		h.abandon(e)
		return ErrOpenTimeout
	}
}

// abandon drops a waiter that gave up on an opening watch. The watch is closed
// if it already opened and nobody else wants it.
func (h *Hub) abandon(e *entry) {
	h.mu.Lock()
	e.waiting--
	idle := e.watch != nil && e.waiting == 0 && len(e.subs) == 0 && h.entries[e.key] == e
	if idle {
		delete(h.entries, e.key)
	}
	h.mu.Unlock()

	if idle {
		if err := h.closeEntry(e); err != nil {
			h.logg.Error(h.logg.WithField(context.Background(), "stock_key", e.key.String()), "close stock watch", err)
		}
	}
}

// open runs the watcher for a new entry and hands the result to its waiters.
func (h *Hub) open(e *entry) {
	watch, err := h.watcher.Open(h.base, e.key)

	h.mu.Lock()
	if err != nil {
		e.openErr = err
		if h.entries[e.key] == e {
			delete(h.entries, e.key)
		}
		close(e.ready)
		h.mu.Unlock()
		return
	}
	e.watch = watch
	h.metrics.WatchOpened()
	unwanted := h.closed || e.waiting == 0
	if unwanted && h.entries[e.key] == e {
		delete(h.entries, e.key)
	}
	close(e.ready)
	h.mu.Unlock()

	if unwanted {
		if err := h.closeEntry(e); err != nil {
			h.logg.Error(h.logg.WithField(context.Background(), "stock_key", e.key.String()), "close stock watch", err)
		}
		return
	}
	h.pump(e)
}

// Refs returns the number of subscribers attached to key.
func (h *Hub) Refs(key Key) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.entries[key]; ok {
		return len(e.subs)
	}
	return 0
}

// Close releases every subscription and closes all underlying watches.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	entries := make([]*entry, 0, len(h.entries))
	for key, e := range h.entries {
		delete(h.entries, key)
		// still opening; open closes it once the watcher returns
		if e.watch == nil {
			continue
		}
		for id, sub := range e.subs {
			delete(e.subs, id)
			sub.finish()
			h.metrics.SubscriberRemoved()
		}
		entries = append(entries, e)
	}
	h.mu.Unlock()

	var errs error
	for _, e := range entries {
		errs = multierr.Append(errs, h.closeEntry(e))
	}
	h.cancel()
	return errs
}

// pump fans updates from the underlying watch out to every subscriber. A
// slow subscriber only ever sees the latest value.
func (h *Hub) pump(e *entry) {
	for item := range e.watch.Updates() {
		h.mu.Lock()
		latest := item
		e.last = &latest
		for _, sub := range e.subs {
			sub.offer(item)
		}
		h.mu.Unlock()
	}

	// The watch ended on its own (or was closed by the last release).
	h.mu.Lock()
	orphaned := false
	if current, ok := h.entries[e.key]; ok && current == e {
		delete(h.entries, e.key)
		for id, sub := range e.subs {
			delete(e.subs, id)
			sub.finish()
			h.metrics.SubscriberRemoved()
		}
		orphaned = true
	}
	h.mu.Unlock()

	if orphaned {
		h.logg.Warn(h.logg.WithField(context.Background(), "stock_key", e.key.String()), "stock watch ended unexpectedly")
		if err := h.closeEntry(e); err != nil {
			h.logg.Error(context.Background(), "close stock watch", err)
		}
	}
}

func (h *Hub) release(sub *Subscription) {
	h.mu.Lock()
	e := sub.entry
	if _, ok := e.subs[sub.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(e.subs, sub.id)
	sub.finish()
	h.metrics.SubscriberRemoved()

	last := len(e.subs) == 0 && e.waiting == 0
	if last {
		if current, ok := h.entries[e.key]; ok && current == e {
			delete(h.entries, e.key)
		}
	}
	h.mu.Unlock()

	if last {
		if err := h.closeEntry(e); err != nil {
			h.logg.Error(h.logg.WithField(context.Background(), "stock_key", e.key.String()), "close stock watch", err)
		}
	}
}

func (h *Hub) closeEntry(e *entry) error {
	e.closeOnce.Do(func() {
		e.closeErr = e.watch.Close()
		h.metrics.WatchClosed()
	})
	return e.closeErr
}

// Updates delivers the item's state, starting with its current value. The
// channel is closed when the subscription ends.
func (s *Subscription) Updates() <-chan models.CatalogItem {
	return s.updates
}

// Key returns the item this subscription follows.
func (s *Subscription) Key() Key {
	return s.key
}

// Release detaches the subscriber. Safe to call more than once.
func (s *Subscription) Release() {
	s.once.Do(func() {
		s.hub.release(s)
	})
}

// offer replaces any undelivered value with item. Called with the hub lock held.
func (s *Subscription) offer(item models.CatalogItem) {
	select {
	case s.updates <- item:
		return
	default:
	}
	select {
	case <-s.updates:
	default:
	}
	select {
	case s.updates <- item:
	default:
	}
}

// finish closes the subscriber's channels. Called with the hub lock held,
// exactly once per subscriber.
func (s *Subscription) finish() {
	close(s.updates)
	close(s.done)
}
