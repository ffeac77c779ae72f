package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/gateway"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultSweepMinAge = 10 * time.Minute
	defaultSweepMaxAge = 72 * time.Hour
	defaultSweepBatch  = 100
)

type sweepOrders interface {
	ListSweepCandidates(ctx context.Context, minAge, maxAge time.Duration, limit int) ([]models.Order, error)
	ApplyPaymentEvent(ctx context.Context, businessID, orderID uuid.UUID, ev orders.Event) (orders.Transition, error)
}

type paymentFinder interface {
	GetPayment(ctx context.Context, businessID uuid.UUID, paymentID string) (gateway.Payment, error)
	FindPaymentByReference(ctx context.Context, businessID uuid.UUID, externalReference string) (*gateway.Payment, error)
}

// PaymentSweepJobParams configure the pending payment sweep.
type PaymentSweepJobParams struct {
	Logger    *logger.Logger
	Orders    sweepOrders
	Gateway   paymentFinder
	MinAge    time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// NewPaymentSweepJob builds the job that asks the gateway about gateway
// orders still pending after MinAge, catching notifications that never
// arrived.
func NewPaymentSweepJob(params PaymentSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = defaultSweepMinAge
	}
	maxAge := params.MaxAge
	if maxAge <= minAge {
		maxAge = defaultSweepMaxAge
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatch
	}
	return &paymentSweepJob{
		logg:    params.Logger,
		orders:  params.Orders,
		gateway: params.Gateway,
		minAge:  minAge,
		maxAge:  maxAge,
		batch:   batch,
	}, nil
}

type paymentSweepJob struct {
	logg    *logger.Logger
	orders  sweepOrders
	gateway paymentFinder
	minAge  time.Duration
	maxAge  time.Duration
	batch   int
}

type sweepStats struct {
	checked    int
	applied    int
	unpaid     int
	skipped    int
	failed     int
	businesses map[uuid.UUID]struct{}
}

func (j *paymentSweepJob) Name() string { return "payment-sweep" }

func (j *paymentSweepJob) Run(ctx context.Context) error {
	candidates, err := j.orders.ListSweepCandidates(ctx, j.minAge, j.maxAge, j.batch)
	if err != nil {
		return fmt.Errorf("list sweep candidates: %w", err)
	}

	stats := sweepStats{businesses: map[uuid.UUID]struct{}{}}
	var errs []error
	for i := range candidates {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		order := &candidates[i]
		// one missing credential would fail every order of that business
		if _, skip := stats.businesses[order.BusinessID]; skip {
			stats.skipped++
			continue
		}
		stats.checked++
		if err := j.sweepOrder(ctx, order, &stats); err != nil {
			stats.failed++
			errs = append(errs, fmt.Errorf("order %s: %w", order.ID, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates": len(candidates),
		"checked":    stats.checked,
		"applied":    stats.applied,
		"unpaid":     stats.unpaid,
		"skipped":    stats.skipped,
		"failed":     stats.failed,
	})
	j.logg.Info(logCtx, "payment sweep complete")
	return multierr.Combine(errs...)
}

func (j *paymentSweepJob) sweepOrder(ctx context.Context, order *models.Order, stats *sweepStats) error {
	ctx = j.logg.WithOrderID(j.logg.WithBusinessID(ctx, order.BusinessID.String()), order.ID.String())

	payment, err := j.lookup(ctx, order)
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeCredentialsUnavailable):
		stats.businesses[order.BusinessID] = struct{}{}
		j.logg.Warn(j.logg.WithField(ctx, "error", err.Error()), "gateway credentials unavailable, skipping business")
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation):
		stats.skipped++
		j.logg.Debug(j.logg.WithField(ctx, "error", err.Error()), "payment lookup not supported for order")
		return nil
	case err != nil:
		return err
	case payment == nil:
		stats.unpaid++
		return nil
	}

	ctx = j.logg.WithPaymentID(ctx, payment.ID)
	if !strings.EqualFold(strings.TrimSpace(payment.ExternalReference), order.ID.String()) {
		stats.skipped++
		j.logg.Warn(j.logg.WithField(ctx, "external_reference", payment.ExternalReference), "swept payment belongs to another order")
		return nil
	}

	result, err := j.orders.ApplyPaymentEvent(ctx, order.BusinessID, order.ID, orders.Event{
		VendorStatus: payment.VendorStatus,
		PaymentID:    payment.ID,
		Source:       orders.SourceSweep,
	})
	if err != nil {
		return err
	}
	if result.Changed() {
		stats.applied++
	}
	return nil
}

func (j *paymentSweepJob) lookup(ctx context.Context, order *models.Order) (*gateway.Payment, error) {
	if order.ExternalPaymentID != nil && *order.ExternalPaymentID != "" {
		payment, err := j.gateway.GetPayment(ctx, order.BusinessID, *order.ExternalPaymentID)
		if err != nil {
			return nil, err
		}
		return &payment, nil
	}
	return j.gateway.FindPaymentByReference(ctx, order.BusinessID, order.ID.String())
}
