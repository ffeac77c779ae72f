package gateway

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/mercadopago"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/square"
)

// NewProvider picks the adapter named by cfg.Gateway.Provider.
func NewProvider(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Provider, error) {
	if cfg.Gateway.IsSquare() {
		api, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		return NewSquareProvider(api), nil
	}
	api := mercadopago.NewClient(mercadopago.WithBaseURL(cfg.Gateway.BaseURL))
	return NewMercadoPagoProvider(api, !cfg.App.IsProd()), nil
}

// NewFromConfig builds the resilient client for the configured provider.
func NewFromConfig(ctx context.Context, cfg *config.Config, creds Credentials, m *metrics.PaymentMetrics, logg *logger.Logger) (Client, error) {
	provider, err := NewProvider(ctx, cfg, logg)
	if err != nil {
		return nil, err
	}
	return NewClient(ClientParams{
		Provider:    provider,
		Credentials: creds,
		Logger:      logg,
		Metrics:     m,
		Timeout:     cfg.Gateway.Timeout,
		Attempts:    cfg.Gateway.RetryAttempts,
		RetryBase:   cfg.Gateway.RetryBase,
		RetryCap:    cfg.Gateway.RetryCap,
	})
}
