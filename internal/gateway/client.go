package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultAttempts  = 3
	defaultRetryBase = 200 * time.Millisecond
	defaultRetryCap  = 2 * time.Second
)

// ClientParams wires the resilient gateway client.
type ClientParams struct {
	Provider    Provider
	Credentials Credentials
	Logger      *logger.Logger
	Metrics     *metrics.PaymentMetrics
	// Timeout bounds every single attempt.
	Timeout time.Duration
	// Attempts is the total number of tries, including the first.
	Attempts  int
	RetryBase time.Duration
	RetryCap  time.Duration
}

type client struct {
	provider    Provider
	credentials Credentials
	logg        *logger.Logger
	metrics     *metrics.PaymentMetrics
	timeout     time.Duration
	attempts    int
	base        time.Duration
	cap         time.Duration
}

// NewClient wraps a provider with credential resolution, per-attempt
// timeouts and capped exponential retries. Only retryable errors are
// retried; credential and permission failures return immediately.
func NewClient(params ClientParams) (Client, error) {
	if params.Provider == nil {
		return nil, fmt.Errorf("gateway provider required")
	}
	if params.Credentials == nil {
		return nil, fmt.Errorf("gateway credentials required")
	}
	c := &client{
		provider:    params.Provider,
		credentials: params.Credentials,
		logg:        params.Logger,
		metrics:     params.Metrics,
		timeout:     params.Timeout,
		attempts:    params.Attempts,
		base:        params.RetryBase,
		cap:         params.RetryCap,
	}
	if c.logg == nil {
		c.logg = logger.Nop()
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.attempts <= 0 {
		c.attempts = defaultAttempts
	}
	if c.base <= 0 {
		c.base = defaultRetryBase
	}
	if c.cap <= 0 {
		c.cap = defaultRetryCap
	}
	return c, nil
}

func (c *client) CreatePreference(ctx context.Context, businessID uuid.UUID, req PreferenceRequest) (Preference, error) {
	token, err := c.token(ctx, businessID)
	if err != nil {
		return Preference{}, err
	}
	var pref Preference
	err = c.call(ctx, "create_preference", func(ctx context.Context) error {
		var callErr error
		pref, callErr = c.provider.CreatePreference(ctx, token, req)
		return callErr
	})
	return pref, err
}

func (c *client) GetPayment(ctx context.Context, businessID uuid.UUID, paymentID string) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	token, err := c.token(ctx, businessID)
	if err != nil {
		return Payment{}, err
	}
	var payment Payment
	err = c.call(ctx, "get_payment", func(ctx context.Context) error {
		var callErr error
		payment, callErr = c.provider.GetPayment(ctx, token, paymentID)
		return callErr
	})
	return payment, err
}

func (c *client) FindPaymentByReference(ctx context.Context, businessID uuid.UUID, externalReference string) (*Payment, error) {
	token, err := c.token(ctx, businessID)
	if err != nil {
		return nil, err
	}
	var payment *Payment
	err = c.call(ctx, "find_payment", func(ctx context.Context) error {
		var callErr error
		payment, callErr = c.provider.FindPaymentByReference(ctx, token, externalReference)
		return callErr
	})
	return payment, err
}

func (c *client) token(ctx context.Context, businessID uuid.UUID) (string, error) {
	var token string
	err := c.call(ctx, "resolve_credentials", func(ctx context.Context) error {
		var callErr error
		token, callErr = c.credentials.AccessToken(ctx, businessID)
		if callErr == nil && strings.TrimSpace(token) == "" {
			callErr = pkgerrors.New(pkgerrors.CodeCredentialsUnavailable, "payment credentials are empty")
		}
		return callErr
	})
	return token, err
}

func (c *client) backoff() retry.Backoff {
	b := retry.NewExponential(c.base)
	b = retry.WithCappedDuration(c.cap, b)
	b = retry.WithJitterPercent(10, b)
	return retry.WithMaxRetries(uint64(c.attempts-1), b)
}

func (c *client) call(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	attempt := 0
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		err := fn(attemptCtx)
		if err == nil {
			return nil
		}
		if !pkgerrors.IsRetryable(err) {
			return err
		}
		logCtx := c.logg.WithFields(ctx, map[string]any{
			"provider":  c.provider.Name(),
			"operation": op,
			"attempt":   attempt,
			"error":     err.Error(),
		})
		c.logg.Warn(logCtx, "gateway call failed, retrying")
		return retry.RetryableError(err)
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if typed := pkgerrors.As(err); typed != nil {
			outcome = strings.ToLower(string(typed.Code()))
		}
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("%s %s failed", c.provider.Name(), op))
		}
	}
	c.metrics.ObserveGatewayCall(op, outcome, time.Since(start))
	return err
}
