// Package reconcile periodically finishes sales whose ledger updates did not
// all land when the sale was recorded.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"api_artsale/internal/sales"
)

const jobName = "ledger_reconciler"

// Settler is the part of the sales service the reconciler drives.
type Settler interface {
	ListSales(ctx context.Context) ([]*sales.Sale, error)
	SettleSale(ctx context.Context, saleID string) (*sales.Sale, error)
}

// Config controls how often the reconciler runs and which sales it touches.
type Config struct {
	Interval time.Duration
	// MinAge skips sales younger than this, so a settlement still in
	// flight is not raced by the reconciler.
	MinAge time.Duration
	// RunTimeout bounds a single pass.
	RunTimeout time.Duration
}

// Result summarizes one reconciliation pass.
type Result struct {
	Pending int
	Settled int
	Failed  int
}

// Reconciler re-settles partially applied sales on a schedule.
type Reconciler struct {
	settler   Settler
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

// New builds a Reconciler. The scheduler is created but not started.
func New(settler Settler, cfg Config, logger *zap.Logger) (*Reconciler, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("reconcile interval must be positive")
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = cfg.Interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	return &Reconciler{
		settler:   settler,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
		scheduler: s,
	}, nil
}

// Start registers the reconciliation job and starts the scheduler. Passes
// stop when ctx is cancelled or Stop is called.
func (r *Reconciler) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	_, err := r.scheduler.NewJob(
		gocron.DurationJob(r.cfg.Interval),
		gocron.NewTask(r.execute),
		gocron.WithName(jobName),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		r.cancel()
		return fmt.Errorf("failed to register job %s: %w", jobName, err)
	}

	r.scheduler.Start()
	r.logger.Info("reconciler started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Duration("min_age", r.cfg.MinAge),
	)
	return nil
}

// Stop shuts the scheduler down, waiting for a running pass to return.
func (r *Reconciler) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}
	if err := r.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}
	r.logger.Info("reconciler stopped")
	return nil
}

func (r *Reconciler) execute() {
	ctx, cancel := context.WithTimeout(r.ctx, r.cfg.RunTimeout)
	defer cancel()

	if _, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("reconciliation pass failed", zap.Error(err))
	}
}

// RunOnce settles every sale that still has an unapplied side and is older
// than MinAge.
func (r *Reconciler) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	all, err := r.settler.ListSales(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to list sales: %w", err)
	}

	cutoff := r.now().Add(-r.cfg.MinAge)
	for _, sale := range all {
		if sale.FullySettled() || sale.Date.After(cutoff) {
			continue
		}
		res.Pending++

		if err := ctx.Err(); err != nil {
			return res, err
		}

		if _, err := r.settler.SettleSale(ctx, sale.ID); err != nil {
			res.Failed++
			r.logger.Warn("failed to settle sale",
				zap.String("sale_id", sale.ID),
				zap.Error(err),
			)
			continue
		}
		res.Settled++
		r.logger.Info("sale settled by reconciler", zap.String("sale_id", sale.ID))
	}

	if res.Pending > 0 {
		r.logger.Info("reconciliation pass completed",
			zap.Int("pending", res.Pending),
			zap.Int("settled", res.Settled),
			zap.Int("failed", res.Failed),
		)
	}
	return res, nil
}
