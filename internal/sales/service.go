package sales

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service records sales and keeps the artist and volunteer ledgers in step with them.
type Service struct {
	store       Store
	locker      Locker
	logger      *zap.Logger
	metrics     *Metrics
	retryPolicy RetryPolicy
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLocker sets the lock used to serialize writes per beneficiary and per sale.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locker = l
		}
	}
}

// WithMetrics sets the Prometheus collectors the service reports to.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRetryPolicy sets how ledger writes are retried.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.retryPolicy = p.normalized() }
}

// WithClock overrides the clock used to stamp sale dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a new Service.
func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:       store,
		locker:      noLocker{},
		logger:      logger,
		retryPolicy: DefaultRetryPolicy,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordSale validates in, persists the sale and credits the artist and
// volunteer ledgers with their share of the price.
//
// A *ValidationError means nothing was written. A *PersistenceError means the
// sale could not be stored and no ledger was touched. A *LedgerUpdateError
// means the sale exists but at least one side could not be applied; the
// returned sale's settled flags tell which. A *SettlementStateError means the
// sides were applied but the flags recording it were not saved.
func (s *Service) RecordSale(ctx context.Context, in SaleInput) (*Sale, error) {
	price, verr := validateSaleInput(in)

	if err := s.resolveReference(ctx, KindArtist, in.ArtistID, "artist_id", verr); err != nil {
		return nil, err
	}
	if err := s.resolveReference(ctx, KindVolunteer, in.VolunteerID, "volunteer_id", verr); err != nil {
		return nil, err
	}
	if err := verr.orNil(); err != nil {
		s.logger.Warn("sale rejected", zap.Error(err))
		return nil, err
	}

	sale := &Sale{
		Article:          strings.TrimSpace(in.Article),
		Comment:          in.Comment,
		PaymentMethod:    in.PaymentMethod,
		PickUp:           in.PickUp,
		Price:            price,
		ArtistID:         in.ArtistID,
		VolunteerID:      in.VolunteerID,
		CompletedPayment: in.CompletedPayment,
		Date:             s.now().UTC(),
	}

	if err := s.store.CreateSale(ctx, sale); err != nil {
		s.logger.Error("failed to save sale", zap.String("article", sale.Article), zap.Error(err))
		return nil, &PersistenceError{Op: "create sale", Err: err}
	}
	s.metrics.saleRecorded()
	s.logger.Info("sale created",
		zap.String("sale_id", sale.ID),
		zap.String("price", sale.Price.StringFixed(CurrencyPlaces)),
		zap.String("artist_id", sale.ArtistID),
		zap.String("volunteer_id", sale.VolunteerID),
	)

	settled, err := s.settle(ctx, sale.ID)
	if settled == nil {
		settled = sale
	}
	if err != nil {
		var (
			lerr *LedgerUpdateError
			serr *SettlementStateError
		)
		if errors.As(err, &lerr) || errors.As(err, &serr) {
			return settled, err
		}
		// lock or re-read failure: nothing was applied, the reconciler will pick it up
		return settled, &LedgerUpdateError{Sale: settled, Failures: []LedgerFailure{
			{Kind: KindArtist, BeneficiaryID: sale.ArtistID, Err: err},
			{Kind: KindVolunteer, BeneficiaryID: sale.VolunteerID, Err: err},
		}}
	}
	return settled, nil
}

func (s *Service) resolveReference(ctx context.Context, kind Kind, id, field string, verr *ValidationError) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	_, err := s.store.GetBeneficiary(ctx, kind, id)
	if errors.Is(err, ErrNotFound) {
		verr.add(field, fmt.Sprintf("does not reference an existing %s", kind))
		return nil
	}
	if err != nil {
		s.logger.Error("error resolving beneficiary", zap.String("kind", string(kind)), zap.String("id", id), zap.Error(err))
		return fmt.Errorf("error resolving %s %s: %w", kind, id, err)
	}
	return nil
}

// SettleSale applies whichever ledger sides of an existing sale are still unsettled.
func (s *Service) SettleSale(ctx context.Context, saleID string) (*Sale, error) {
	sale, err := s.settle(ctx, saleID)
	if err != nil {
		return sale, err
	}
	s.logger.Info("sale settled", zap.String("sale_id", saleID))
	return sale, nil
}

// ResetOwed zeroes a beneficiary's owed amount after an out-of-band payout.
// Items sold and total revenue are left untouched.
func (s *Service) ResetOwed(ctx context.Context, kind Kind, id string) (*Beneficiary, error) {
	var reset *Beneficiary
	err := s.updateBeneficiary(ctx, kind, id, func(b *Beneficiary) {
		b.OwedAmount = decimal.Zero
		reset = b
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("owed amount reset", zap.String("kind", string(kind)), zap.String("beneficiary_id", id))
	return reset, nil
}

// ListBeneficiariesWithOwedBalance returns every artist and volunteer still owed money.
func (s *Service) ListBeneficiariesWithOwedBalance(ctx context.Context) ([]*Beneficiary, error) {
	var owed []*Beneficiary
	for _, kind := range Kinds {
		all, err := s.store.ListBeneficiaries(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list %ss: %w", kind, err)
		}
		for _, b := range all {
			if b.OwedAmount.IsPositive() {
				owed = append(owed, b)
			}
		}
	}
	SortBeneficiaries(owed)
	return owed, nil
}

// updateBeneficiary runs mutate against a fresh read of the beneficiary and
// writes the result with a version check, retrying on conflict.
func (s *Service) updateBeneficiary(ctx context.Context, kind Kind, id string, mutate func(*Beneficiary)) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown beneficiary kind %q: %w", kind, ErrNotFound)
	}
	return s.retry(ctx, kind, func(ctx context.Context) error {
		return s.locker.WithLock(ctx, beneficiaryLockKey(kind, id), func(ctx context.Context) error {
			current, err := s.store.GetBeneficiary(ctx, kind, id)
			if err != nil {
				return err
			}
			next := current.Clone()
			mutate(next)
			return s.store.UpdateBeneficiary(ctx, next)
		})
	})
}
