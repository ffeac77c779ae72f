package stock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const (
	defaultResyncInterval = 30 * time.Second
	defaultReadTimeout    = 5 * time.Second
	redisWatchOpenTimeout = 5 * time.Second
)

type changeFeed interface {
	Subscribe(ctx context.Context, channel string) (redis.Subscription, error)
	StockChannel(itemID string) string
}

// RedisWatcher opens watches backed by the catalog service's change
// notifications on Redis pub/sub. Each notification (and a periodic resync,
// since pub/sub delivery is best effort) re-reads the item from the store and
// emits it when its availability changed.
type RedisWatcher struct {
	feed   changeFeed
	repo   Repository
	logg   *logger.Logger
	resync time.Duration
}

// RedisWatcherParams configure a RedisWatcher.
type RedisWatcherParams struct {
	Feed           changeFeed
	Repo           Repository
	Logger         *logger.Logger
	ResyncInterval time.Duration
}

// NewRedisWatcher validates dependencies and builds the watcher.
func NewRedisWatcher(params RedisWatcherParams) (*RedisWatcher, error) {
	if params.Feed == nil {
		return nil, errors.New("stock change feed required")
	}
	if params.Repo == nil {
		return nil, errors.New("catalog repository required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	resync := params.ResyncInterval
	if resync <= 0 {
		resync = defaultResyncInterval
	}
	return &RedisWatcher{feed: params.Feed, repo: params.Repo, logg: logg, resync: resync}, nil
}

// Open subscribes to the item's change channel before reading its current
// value, so no change between the read and the subscription is lost. The
// subscription confirmation and first read share one deadline; ctx bounds the
// watch afterwards.
func (w *RedisWatcher) Open(ctx context.Context, key Key) (Watch, error) {
	openCtx, cancel := context.WithTimeout(ctx, redisWatchOpenTimeout)
	defer cancel()

	sub, err := w.feed.Subscribe(openCtx, w.feed.StockChannel(key.ItemID.String()))
	if err != nil {
		return nil, fmt.Errorf("subscribe stock changes: %w", err)
	}

	item, err := w.repo.FindByID(openCtx, key.BusinessID, key.ItemID)
	if err != nil {
		_ = sub.Close()
		if isNotFound(err) {
			return nil, notFound(key)
		}
		return nil, fmt.Errorf("read catalog item: %w", err)
	}

	watch := &redisWatch{
		key:     key,
		parent:  w,
		sub:     sub,
		updates: make(chan models.CatalogItem, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		last:    *item,
	}
	watch.updates <- *item
	go watch.loop(ctx)
	return watch, nil
}

type redisWatch struct {
	key    Key
	parent *RedisWatcher
	sub    redis.Subscription

	updates chan models.CatalogItem
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	err     error

	last models.CatalogItem
}

func (w *redisWatch) Updates() <-chan models.CatalogItem {
	return w.updates
}

func (w *redisWatch) Close() error {
	w.once.Do(func() {
		close(w.stop)
		w.err = w.sub.Close()
		<-w.done
	})
	return w.err
}

func (w *redisWatch) loop(ctx context.Context) {
	defer close(w.done)
	defer close(w.updates)

	ticker := time.NewTicker(w.parent.resync)
	defer ticker.Stop()

	messages := w.sub.Channel()
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case _, ok := <-messages:
			if !ok {
				return
			}
			w.refresh(ctx)
		case <-ticker.C:
			w.refresh(ctx)
		}
	}
}

func (w *redisWatch) refresh(ctx context.Context) {
	readCtx, cancel := context.WithTimeout(ctx, defaultReadTimeout)
	defer cancel()

	item, err := w.parent.repo.FindByID(readCtx, w.key.BusinessID, w.key.ItemID)
	if err != nil {
		logCtx := w.parent.logg.WithField(ctx, "stock_key", w.key.String())
		w.parent.logg.Error(logCtx, "refresh stock level", err)
		return
	}
	if LevelOf(*item) == LevelOf(w.last) {
		return
	}
	w.last = *item

	select {
	case w.updates <- *item:
	case <-w.stop:
	}
}
