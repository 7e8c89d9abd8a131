// Package reconcile finishes activations that stopped after the order was
// marked paid. Each repair is a plain re-confirmation, so running the job
// concurrently with live traffic is safe.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/storycraft/billing/internal/domain/errs"
	"github.com/storycraft/billing/internal/domain/model"
	activationsvc "github.com/storycraft/billing/internal/services/activation"
)

const (
	defaultGrace     = 2 * time.Minute
	defaultBatchSize = 100
)

type OrderLister interface {
	ListUnactivated(ctx context.Context, before time.Time, limit int) ([]model.Order, error)
}

type Activator interface {
	Confirm(ctx context.Context, in activationsvc.ConfirmedPayment) (activationsvc.Result, error)
}

type Config struct {
	// Grace keeps the job away from activations that are still in flight.
	Grace     time.Duration
	BatchSize int
}

type Report struct {
	Scanned  int
	Repaired int
	Failed   int
}

type Job struct {
	orders    OrderLister
	activator Activator
	grace     time.Duration
	batchSize int
	now       func() time.Time
	logger    *zap.Logger
}

func New(orders OrderLister, activator Activator, cfg Config, logger *zap.Logger) *Job {
	if cfg.Grace <= 0 {
		cfg.Grace = defaultGrace
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		orders:    orders,
		activator: activator,
		grace:     cfg.Grace,
		batchSize: cfg.BatchSize,
		now:       time.Now,
		logger:    logger,
	}
}

// Run processes one batch. A failing order is counted and skipped; only a
// failure to list orders aborts the run.
func (j *Job) Run(ctx context.Context) (Report, error) {
	if j.orders == nil || j.activator == nil {
		return Report{}, fmt.Errorf("reconcile job is not configured")
	}

	cutoff := j.now().UTC().Add(-j.grace)
	orders, err := j.orders.ListUnactivated(ctx, cutoff, j.batchSize)
	if err != nil {
		return Report{}, fmt.Errorf("list unactivated orders: %w", err)
	}

	report := Report{Scanned: len(orders)}
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		_, err := j.activator.Confirm(ctx, activationsvc.ConfirmedPayment{
			OrderID: order.ID,
			UserID:  order.UserID,
			Method:  order.PaymentMethod,
		})
		if err != nil {
			report.Failed++
			level := j.logger.Warn
			if errors.Is(err, errs.ErrStoreUnavailable) {
				level = j.logger.Error
			}
			level("reconcile order failed",
				zap.String("order_id", order.ID),
				zap.String("user_id", order.UserID),
				zap.Error(err),
			)
			continue
		}
		report.Repaired++
	}

	if report.Scanned > 0 {
		j.logger.Info("reconcile completed",
			zap.Int("scanned", report.Scanned),
			zap.Int("repaired", report.Repaired),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}
