// Package secrets resolves per-business payment gateway tokens.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const cacheScope = "gateway-token"

// Accessor reads the latest version of a named secret.
type Accessor interface {
	Access(ctx context.Context, name string) (string, error)
}

// Cache is the subset of the Redis client used to memoize tokens.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SecretKey(scope, id string) string
}

// StoreParams wires a Store.
type StoreParams struct {
	Accessor Accessor
	Cache    Cache
	Config   config.SecretsConfig
	Logger   *logger.Logger
}

// Store resolves gateway access tokens: static dev tokens first, then the
// Redis cache, then the secret manager.
type Store struct {
	accessor Accessor
	cache    Cache
	template string
	ttl      time.Duration
	timeout  time.Duration
	static   map[string]string
	logg     *logger.Logger
	group    singleflight.Group
}

// NewStore builds a Store. Accessor may be nil when only static tokens are
// configured.
func NewStore(params StoreParams) (*Store, error) {
	if params.Accessor == nil && len(params.Config.StaticTokens) == 0 {
		return nil, errors.New("secret accessor or static tokens required")
	}
	template := strings.TrimSpace(params.Config.NameTemplate)
	if template == "" {
		template = "gateway-token-%s"
	}
	if !strings.Contains(template, "%s") {
		return nil, fmt.Errorf("secret name template %q must contain %%s", template)
	}
	s := &Store{
		accessor: params.Accessor,
		cache:    params.Cache,
		template: template,
		ttl:      params.Config.CacheTTL,
		timeout:  params.Config.Timeout,
		static:   map[string]string{},
		logg:     params.Logger,
	}
	for business, token := range params.Config.StaticTokens {
		s.static[strings.ToLower(strings.TrimSpace(business))] = strings.TrimSpace(token)
	}
	if s.logg == nil {
		s.logg = logger.Nop()
	}
	if s.timeout <= 0 {
		s.timeout = 5 * time.Second
	}
	return s, nil
}

// AccessToken returns the gateway token for the business. A missing secret is
// CREDENTIALS_UNAVAILABLE; store outages are DEPENDENCY_ERROR.
func (s *Store) AccessToken(ctx context.Context, businessID uuid.UUID) (string, error) {
	if businessID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeCredentialsUnavailable, "business id required to resolve credentials")
	}
	id := businessID.String()
	if token, ok := s.static[id]; ok && token != "" {
		return token, nil
	}
	if s.accessor == nil {
		return "", pkgerrors.New(pkgerrors.CodeCredentialsUnavailable, "no payment credentials configured for business")
	}

	if token := s.cached(ctx, id); token != "" {
		return token, nil
	}

	value, err, _ := s.group.Do(id, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		token, err := s.accessor.Access(lookupCtx, s.SecretName(businessID))
		if err != nil {
			return "", err
		}
		token = strings.TrimSpace(token)
		if token == "" {
			return "", pkgerrors.New(pkgerrors.CodeCredentialsUnavailable, "payment credentials secret is empty")
		}
		s.store(ctx, id, token)
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

// Invalidate drops a cached token, e.g. after the gateway rejected it.
func (s *Store) Invalidate(ctx context.Context, businessID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, s.cache.SecretKey(cacheScope, businessID.String()))
}

// SecretName is the secret id holding the business token.
func (s *Store) SecretName(businessID uuid.UUID) string {
	return fmt.Sprintf(s.template, businessID.String())
}

func (s *Store) cached(ctx context.Context, id string) string {
	if s.cache == nil || s.ttl <= 0 {
		return ""
	}
	token, err := s.cache.Get(ctx, s.cache.SecretKey(cacheScope, id))
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "secret cache read failed")
		}
		return ""
	}
	return token
}

func (s *Store) store(ctx context.Context, id, token string) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	if err := s.cache.Set(ctx, s.cache.SecretKey(cacheScope, id), token, s.ttl); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "secret cache write failed")
	}
}
