package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type fakeAccessor struct {
	mu      sync.Mutex
	secrets map[string]string
	err     error
	calls   int
}

func (f *fakeAccessor) Access(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	value, ok := f.secrets[name]
	if !ok {
		return "", mapAccessError(&googleapi.Error{Code: http.StatusNotFound}, name)
	}
	return value, nil
}

type fakeCache struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = fmt.Sprint(value)
	c.ttls[key] = ttl
	return nil
}

func (c *fakeCache) Del(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.values, key)
	}
	return nil
}

func (c *fakeCache) SecretKey(scope, id string) string {
	return "sf:secret:" + scope + ":" + id
}

func TestStoreResolvesAndCaches(t *testing.T) {
	businessID := uuid.New()
	accessor := &fakeAccessor{secrets: map[string]string{"gateway-token-" + businessID.String(): " APP_USR-1 \n"}}
	cache := newFakeCache()
	store, err := NewStore(StoreParams{
		Accessor: accessor,
		Cache:    cache,
		Config:   config.SecretsConfig{NameTemplate: "gateway-token-%s", CacheTTL: time.Minute},
	})
	require.NoError(t, err)

	token, err := store.AccessToken(context.Background(), businessID)
	require.NoError(t, err)
	require.Equal(t, "APP_USR-1", token)

	token, err = store.AccessToken(context.Background(), businessID)
	require.NoError(t, err)
	require.Equal(t, "APP_USR-1", token)
	require.Equal(t, 1, accessor.calls)

	key := cache.SecretKey(cacheScope, businessID.String())
	require.Equal(t, time.Minute, cache.ttls[key])

	require.NoError(t, store.Invalidate(context.Background(), businessID))
	_, err = store.AccessToken(context.Background(), businessID)
	require.NoError(t, err)
	require.Equal(t, 2, accessor.calls)
}

func TestStoreMissingSecretIsCredentialsUnavailable(t *testing.T) {
	store, err := NewStore(StoreParams{Accessor: &fakeAccessor{}, Config: config.SecretsConfig{}})
	require.NoError(t, err)

	_, err = store.AccessToken(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCredentialsUnavailable))
	require.False(t, pkgerrors.IsRetryable(err))
}

func TestStoreEmptySecret(t *testing.T) {
	businessID := uuid.New()
	store, err := NewStore(StoreParams{
		Accessor: &fakeAccessor{secrets: map[string]string{"gateway-token-" + businessID.String(): "  "}},
	})
	require.NoError(t, err)

	_, err = store.AccessToken(context.Background(), businessID)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCredentialsUnavailable))
}

func TestStoreOutageIsRetryable(t *testing.T) {
	accessor := &fakeAccessor{err: mapAccessError(&googleapi.Error{Code: http.StatusServiceUnavailable}, "x")}
	store, err := NewStore(StoreParams{Accessor: accessor})
	require.NoError(t, err)

	_, err = store.AccessToken(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.True(t, pkgerrors.IsRetryable(err))
}

func TestStoreStaticTokens(t *testing.T) {
	businessID := uuid.New()
	store, err := NewStore(StoreParams{Config: config.SecretsConfig{
		StaticTokens: map[string]string{businessID.String(): "TEST-123"},
	}})
	require.NoError(t, err)

	token, err := store.AccessToken(context.Background(), businessID)
	require.NoError(t, err)
	require.Equal(t, "TEST-123", token)

	_, err = store.AccessToken(context.Background(), uuid.New())
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCredentialsUnavailable))
}

func TestNewStoreValidation(t *testing.T) {
	_, err := NewStore(StoreParams{})
	require.Error(t, err)

	_, err = NewStore(StoreParams{Accessor: &fakeAccessor{}, Config: config.SecretsConfig{NameTemplate: "static-name"}})
	require.Error(t, err)
}

func TestMapAccessError(t *testing.T) {
	require.True(t, pkgerrors.IsCode(mapAccessError(&googleapi.Error{Code: http.StatusForbidden}, "x"), pkgerrors.CodeCredentialsUnavailable))
	require.True(t, pkgerrors.IsCode(mapAccessError(errors.New("dial"), "x"), pkgerrors.CodeDependency))
}
