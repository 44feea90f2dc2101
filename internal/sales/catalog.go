package sales

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateBeneficiary registers a new artist or volunteer with empty ledger counters.
func (s *Service) CreateBeneficiary(ctx context.Context, kind Kind, in BeneficiaryInput) (*Beneficiary, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown beneficiary kind %q: %w", kind, ErrNotFound)
	}

	verr := &ValidationError{}
	checkStruct(in, verr)
	if kind != KindArtist && strings.TrimSpace(in.Category) != "" {
		verr.add("category", "only applies to artists")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	b := &Beneficiary{
		Kind:         kind,
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.TrimSpace(in.Email),
		Category:     strings.TrimSpace(in.Category),
		TotalRevenue: decimal.Zero,
		OwedAmount:   decimal.Zero,
	}
	if err := s.store.CreateBeneficiary(ctx, b); err != nil {
		s.logger.Error("failed to save beneficiary", zap.String("kind", string(kind)), zap.Error(err))
		return nil, &PersistenceError{Op: "create " + string(kind), Err: err}
	}

	s.logger.Info("beneficiary created", zap.String("kind", string(kind)), zap.String("beneficiary_id", b.ID))
	return b, nil
}

func (s *Service) GetBeneficiary(ctx context.Context, kind Kind, id string) (*Beneficiary, error) {
	if !kind.Valid() {
		return nil, ErrNotFound
	}
	return s.store.GetBeneficiary(ctx, kind, id)
}

func (s *Service) ListBeneficiaries(ctx context.Context, kind Kind) ([]*Beneficiary, error) {
	if !kind.Valid() {
		return nil, ErrNotFound
	}
	return s.store.ListBeneficiaries(ctx, kind)
}

// UpdateProfile edits the name, email or category of a beneficiary.
func (s *Service) UpdateProfile(ctx context.Context, kind Kind, id string, upd ProfileUpdate) (*Beneficiary, error) {
	verr := &ValidationError{}
	checkStruct(upd, verr)
	if kind != KindArtist && upd.Category != nil && strings.TrimSpace(*upd.Category) != "" {
		verr.add("category", "only applies to artists")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	var updated *Beneficiary
	err := s.updateBeneficiary(ctx, kind, id, func(b *Beneficiary) {
		if upd.Name != nil {
			b.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Email != nil {
			b.Email = strings.TrimSpace(*upd.Email)
		}
		if upd.Category != nil {
			b.Category = strings.TrimSpace(*upd.Category)
		}
		updated = b
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteBeneficiary(ctx context.Context, kind Kind, id string) error {
	if !kind.Valid() {
		return ErrNotFound
	}
	if err := s.store.DeleteBeneficiary(ctx, kind, id); err != nil {
		return err
	}
	s.logger.Info("beneficiary deleted", zap.String("kind", string(kind)), zap.String("beneficiary_id", id))
	return nil
}

func (s *Service) GetSale(ctx context.Context, id string) (*Sale, error) {
	return s.store.GetSale(ctx, id)
}

func (s *Service) ListSales(ctx context.Context) ([]*Sale, error) {
	return s.store.ListSales(ctx)
}

// UpdateSale applies an administrative edit to a sale. It holds the sale lock
// so it cannot overwrite settled flags written by a concurrent settlement.
func (s *Service) UpdateSale(ctx context.Context, id string, upd SaleUpdate) (*Sale, error) {
	verr := &ValidationError{}
	checkStruct(upd, verr)
	if upd.Article != nil && strings.TrimSpace(*upd.Article) == "" && !hasField(verr, "article") {
		verr.add("article", "must not be empty")
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	var updated *Sale
	err := s.locker.WithLock(ctx, saleLockKey(id), func(ctx context.Context) error {
		sale, err := s.store.GetSale(ctx, id)
		if err != nil {
			return err
		}
		if upd.Article != nil {
			sale.Article = strings.TrimSpace(*upd.Article)
		}
		if upd.Comment != nil {
			sale.Comment = *upd.Comment
		}
		if upd.PaymentMethod != nil {
			sale.PaymentMethod = *upd.PaymentMethod
		}
		if upd.PickUp != nil {
			sale.PickUp = *upd.PickUp
		}
		if upd.CompletedPayment != nil {
			sale.CompletedPayment = *upd.CompletedPayment
		}
		if err := s.store.UpdateSale(ctx, sale); err != nil {
			return err
		}
		updated = sale
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("sale updated", zap.String("sale_id", id))
	return updated, nil
}

// DeleteSale removes a sale record. Ledgers already credited with it are not reversed.
func (s *Service) DeleteSale(ctx context.Context, id string) error {
	err := s.locker.WithLock(ctx, saleLockKey(id), func(ctx context.Context) error {
		return s.store.DeleteSale(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("sale deleted", zap.String("sale_id", id))
	return nil
}
