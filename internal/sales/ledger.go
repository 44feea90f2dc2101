package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Locker serializes critical sections that share a key. internal/lock provides
// an in-process and a Redis-backed implementation.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(context.Context) error) error
}

type noLocker struct{}

func (noLocker) WithLock(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

func beneficiaryLockKey(kind Kind, id string) string {
	return "beneficiary/" + string(kind) + "/" + id
}

func saleLockKey(id string) string {
	return "sale/" + id
}

// settle applies every unsettled ledger side of the sale with the given id.
// It runs under the sale lock and re-reads the sale, so concurrent callers
// (request path and reconciler) never apply the same side twice.
func (s *Service) settle(ctx context.Context, saleID string) (*Sale, error) {
	var result *Sale
	err := s.locker.WithLock(ctx, saleLockKey(saleID), func(ctx context.Context) error {
		sale, err := s.store.GetSale(ctx, saleID)
		if err != nil {
			return err
		}
		result = sale
		return s.settleLocked(ctx, sale)
	})
	return result, err
}

func (s *Service) settleLocked(ctx context.Context, sale *Sale) error {
	pending := make([]Kind, 0, len(Kinds))
	for _, kind := range Kinds {
		if !sale.Settled(kind) {
			pending = append(pending, kind)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	// the two sides touch disjoint records, apply them concurrently
	results := make([]error, len(pending))
	var g errgroup.Group
	for i, kind := range pending {
		g.Go(func() error {
			results[i] = s.applyToLedger(ctx, sale, kind)
			return nil
		})
	}
	_ = g.Wait()

	var failures []LedgerFailure
	var applied []Kind
	stored := *sale
	for i, kind := range pending {
		if results[i] != nil {
			failures = append(failures, LedgerFailure{
				Kind:          kind,
				BeneficiaryID: sale.BeneficiaryID(kind),
				Err:           results[i],
			})
			continue
		}
		sale.markSettled(kind)
		applied = append(applied, kind)
	}

	if len(applied) > 0 {
		err := s.retry(ctx, "", func(ctx context.Context) error {
			return s.store.UpdateSale(ctx, sale)
		})
		if err != nil {
			s.logger.Error("failed to mark sale settled",
				zap.String("sale_id", sale.ID),
				zap.Bool("artist_settled", sale.ArtistSettled),
				zap.Bool("volunteer_settled", sale.VolunteerSettled),
				zap.Error(err),
			)
			// report the flags as they are stored
			sale.ArtistSettled, sale.VolunteerSettled = stored.ArtistSettled, stored.VolunteerSettled
			return &SettlementStateError{Sale: sale, Applied: applied, Failures: failures, Err: err}
		}
	}

	if len(failures) > 0 {
		return &LedgerUpdateError{Sale: sale, Failures: failures}
	}
	return nil
}

// applyToLedger credits one beneficiary with the sale. Each attempt is a
// read-modify-write under the beneficiary lock, guarded by the store's
// version check; conflicts and transient failures are retried against a fresh read.
func (s *Service) applyToLedger(ctx context.Context, sale *Sale, kind Kind) error {
	started := time.Now()
	id := sale.BeneficiaryID(kind)

	err := s.retry(ctx, kind, func(ctx context.Context) error {
		return s.locker.WithLock(ctx, beneficiaryLockKey(kind, id), func(ctx context.Context) error {
			current, err := s.store.GetBeneficiary(ctx, kind, id)
			if err != nil {
				return err
			}
			if current.HasApplied(sale.ID) {
				s.logger.Info("ledger already credited with sale",
					zap.String("sale_id", sale.ID),
					zap.String("kind", string(kind)),
					zap.String("beneficiary_id", id),
				)
				return nil
			}

			next := ApplySale(current, sale.ID, sale.Price)
			if err := s.store.UpdateBeneficiary(ctx, next); err != nil {
				return err
			}

			s.logger.Info("ledger updated",
				zap.String("sale_id", sale.ID),
				zap.String("kind", string(kind)),
				zap.String("beneficiary_id", id),
				zap.Int64("item_sold", next.ItemSold),
				zap.String("total_revenue", next.TotalRevenue.StringFixed(CurrencyPlaces)),
				zap.String("owed_amount", next.OwedAmount.StringFixed(CurrencyPlaces)),
				zap.Int64("version", next.Version),
			)
			return nil
		})
	})

	if err != nil {
		s.metrics.ledgerApplied(kind, "failed", started)
		s.logger.Error("ledger update failed",
			zap.String("sale_id", sale.ID),
			zap.String("kind", string(kind)),
			zap.String("beneficiary_id", id),
			zap.Error(err),
		)
		return err
	}
	s.metrics.ledgerApplied(kind, "applied", started)
	return nil
}

// retry runs fn until it succeeds, fails permanently, or the policy is exhausted.
// ErrNotFound and context errors are permanent.
func (s *Service) retry(ctx context.Context, kind Kind, fn func(context.Context) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := fn(ctx)
		if err != nil && (errors.Is(err, ErrNotFound) || ctx.Err() != nil) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		if errors.Is(err, ErrVersionConflict) && kind != "" {
			s.metrics.versionConflict(kind)
		}
		s.logger.Debug("retrying store write",
			zap.Int("attempt", attempt),
			zap.String("kind", string(kind)),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, s.retryPolicy.backOff(ctx), notify)
	if err == nil || errors.Is(err, ErrNotFound) || ctx.Err() != nil {
		return err
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
}
