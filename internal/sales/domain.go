package sales

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how the buyer paid for a sale.
type PaymentMethod string

const (
	PaymentCash   PaymentMethod = "cash"
	PaymentDebit  PaymentMethod = "debit"
	PaymentCredit PaymentMethod = "credit"
)

// Kind identifies which ledger a beneficiary belongs to.
type Kind string

const (
	KindArtist    Kind = "artist"
	KindVolunteer Kind = "volunteer"
)

// Kinds lists every beneficiary kind in display order.
var Kinds = []Kind{KindArtist, KindVolunteer}

// Valid reports whether k is a known beneficiary kind.
func (k Kind) Valid() bool {
	return k == KindArtist || k == KindVolunteer
}

// Sale represents a sales transaction recorded at the event.
type Sale struct {
	ID               string          `json:"id"`
	Article          string          `json:"article"`
	Comment          string          `json:"comment,omitempty"`
	PaymentMethod    PaymentMethod   `json:"payment_method"`
	PickUp           bool            `json:"pick_up"`
	Price            decimal.Decimal `json:"price"`
	ArtistID         string          `json:"artist_id"`
	VolunteerID      string          `json:"volunteer_id"`
	CompletedPayment bool            `json:"completed_payment"`
	Date             time.Time       `json:"date"`
	ArtistSettled    bool            `json:"artist_settled"`
	VolunteerSettled bool            `json:"volunteer_settled"`
}

// BeneficiaryID returns the id of the beneficiary of the given kind on this sale.
func (s *Sale) BeneficiaryID(kind Kind) string {
	if kind == KindArtist {
		return s.ArtistID
	}
	return s.VolunteerID
}

// Settled reports whether the ledger side of the given kind has been applied.
func (s *Sale) Settled(kind Kind) bool {
	if kind == KindArtist {
		return s.ArtistSettled
	}
	return s.VolunteerSettled
}

func (s *Sale) markSettled(kind Kind) {
	if kind == KindArtist {
		s.ArtistSettled = true
		return
	}
	s.VolunteerSettled = true
}

// FullySettled reports whether both ledger sides have been applied.
func (s *Sale) FullySettled() bool {
	return s.ArtistSettled && s.VolunteerSettled
}

// Beneficiary is an artist or volunteer accumulating sale-derived balances.
//
// Version is bumped by the store on every successful write and is what
// compare-and-swap updates are checked against. AppliedSales holds every sale
// credited to this ledger and is written in the same swap as the balances, so
// applying a sale a second time is a no-op. LastSaleID is the most recent one.
type Beneficiary struct {
	ID           string          `json:"id"`
	Kind         Kind            `json:"kind"`
	Name         string          `json:"name"`
	Email        string          `json:"email"`
	Category     string          `json:"category,omitempty"`
	ItemSold     int64           `json:"item_sold"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	OwedAmount   decimal.Decimal `json:"owed_amount"`
	Version      int64           `json:"version"`
	LastSaleID   string          `json:"last_sale_id,omitempty"`
	AppliedSales []string        `json:"applied_sales,omitempty"`
}

// Clone returns a copy of b that can be mutated without touching the original.
func (b *Beneficiary) Clone() *Beneficiary {
	c := *b
	c.AppliedSales = slices.Clone(b.AppliedSales)
	return &c
}

// HasApplied reports whether the sale has already been credited to b.
func (b *Beneficiary) HasApplied(saleID string) bool {
	return slices.Contains(b.AppliedSales, saleID)
}

// SaleInput is the payload accepted when recording a sale.
type SaleInput struct {
	Article          string        `json:"article" validate:"required"`
	Comment          string        `json:"comment"`
	PaymentMethod    PaymentMethod `json:"payment_method" validate:"required,oneof=cash debit credit"`
	PickUp           bool          `json:"pick_up"`
	Price            string        `json:"price" validate:"required"`
	ArtistID         string        `json:"artist_id" validate:"required"`
	VolunteerID      string        `json:"volunteer_id" validate:"required"`
	CompletedPayment bool          `json:"completed_payment"`
}

// SaleUpdate holds the administrative edits allowed on an existing sale.
// Price, beneficiary references and date are immutable once ledgers were derived from them.
type SaleUpdate struct {
	Article          *string        `json:"article,omitempty" validate:"omitempty,min=1"`
	Comment          *string        `json:"comment,omitempty"`
	PaymentMethod    *PaymentMethod `json:"payment_method,omitempty" validate:"omitempty,oneof=cash debit credit"`
	PickUp           *bool          `json:"pick_up,omitempty"`
	CompletedPayment *bool          `json:"completed_payment,omitempty"`
}

// BeneficiaryInput is the payload accepted when creating an artist or volunteer.
type BeneficiaryInput struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Category string `json:"category"`
}

// ProfileUpdate holds the editable profile fields of a beneficiary.
// Ledger fields can only change through sales and ResetOwed.
type ProfileUpdate struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email"`
	Category *string `json:"category,omitempty"`
}
