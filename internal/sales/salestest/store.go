// Package salestest holds a behavioural test suite shared by every
// sales.Store implementation.
package salestest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"api_artsale/internal/sales"
)

// RunStoreSuite exercises the Store contract against stores built by newStore.
// Each subtest gets a fresh, empty store.
func RunStoreSuite(t *testing.T, newStore func(t *testing.T) sales.Store) {
	t.Helper()

	t.Run("sale lifecycle", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		sale := &sales.Sale{
			Article:          "Woodcut",
			Comment:          "framed",
			PaymentMethod:    sales.PaymentCredit,
			Price:            decimal.RequireFromString("75.25"),
			ArtistID:         "a1",
			VolunteerID:      "v1",
			CompletedPayment: true,
			Date:             time.Date(2024, 5, 18, 10, 0, 0, 123000000, time.UTC),
		}
		require.NoError(t, store.CreateSale(ctx, sale))
		require.NotEmpty(t, sale.ID)

		got, err := store.GetSale(ctx, sale.ID)
		require.NoError(t, err)
		assert.Equal(t, sale.Article, got.Article)
		assert.Equal(t, sale.Comment, got.Comment)
		assert.Equal(t, sale.PaymentMethod, got.PaymentMethod)
		assert.True(t, sale.Price.Equal(got.Price), "price %s != %s", got.Price, sale.Price)
		assert.True(t, sale.Date.Equal(got.Date), "date %s != %s", got.Date, sale.Date)
		assert.True(t, got.CompletedPayment)
		assert.False(t, got.FullySettled())

		got.ArtistSettled = true
		got.VolunteerSettled = true
		require.NoError(t, store.UpdateSale(ctx, got))
		again, err := store.GetSale(ctx, sale.ID)
		require.NoError(t, err)
		assert.True(t, again.FullySettled())

		require.NoError(t, store.DeleteSale(ctx, sale.ID))
		_, err = store.GetSale(ctx, sale.ID)
		assert.ErrorIs(t, err, sales.ErrNotFound)
	})

	t.Run("missing records", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.GetSale(ctx, "nope")
		assert.ErrorIs(t, err, sales.ErrNotFound)
		assert.ErrorIs(t, store.UpdateSale(ctx, &sales.Sale{ID: "nope"}), sales.ErrNotFound)
		assert.ErrorIs(t, store.DeleteSale(ctx, "nope"), sales.ErrNotFound)

		_, err = store.GetBeneficiary(ctx, sales.KindArtist, "nope")
		assert.ErrorIs(t, err, sales.ErrNotFound)
		assert.ErrorIs(t, store.UpdateBeneficiary(ctx, &sales.Beneficiary{ID: "nope", Kind: sales.KindArtist, Version: 1}), sales.ErrNotFound)
		assert.ErrorIs(t, store.DeleteBeneficiary(ctx, sales.KindArtist, "nope"), sales.ErrNotFound)

		_, err = store.GetSale(ctx, "")
		assert.ErrorIs(t, err, sales.ErrEmptyID)
	})

	t.Run("sales are listed by date", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		base := time.Date(2024, 5, 18, 10, 0, 0, 0, time.UTC)

		for _, offset := range []time.Duration{2 * time.Hour, 0, time.Hour + 500*time.Millisecond} {
			require.NoError(t, store.CreateSale(ctx, &sales.Sale{
				Article: "item", PaymentMethod: sales.PaymentCash, Price: decimal.NewFromInt(1),
				ArtistID: "a", VolunteerID: "v", Date: base.Add(offset),
			}))
		}

		all, err := store.ListSales(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i := 1; i < len(all); i++ {
			assert.False(t, all[i].Date.Before(all[i-1].Date))
		}
	})

	t.Run("beneficiary compare and swap", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		b := newBeneficiary(sales.KindArtist, "Mira")
		require.NoError(t, store.CreateBeneficiary(ctx, b))
		require.NotEmpty(t, b.ID)
		assert.Equal(t, int64(1), b.Version)

		first, err := store.GetBeneficiary(ctx, sales.KindArtist, b.ID)
		require.NoError(t, err)
		stale := first.Clone()

		first.ItemSold = 1
		first.TotalRevenue = decimal.RequireFromString("10.00")
		first.OwedAmount = decimal.RequireFromString("4.50")
		first.LastSaleID = "s1"
		first.AppliedSales = []string{"s0", "s1"}
		require.NoError(t, store.UpdateBeneficiary(ctx, first))
		assert.Equal(t, int64(2), first.Version)

		stale.ItemSold = 42
		assert.ErrorIs(t, store.UpdateBeneficiary(ctx, stale), sales.ErrVersionConflict)
		assert.Equal(t, int64(1), stale.Version, "failed swap leaves the version alone")

		got, err := store.GetBeneficiary(ctx, sales.KindArtist, b.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ItemSold)
		assert.Equal(t, "4.50", got.OwedAmount.StringFixed(2))
		assert.Equal(t, "s1", got.LastSaleID)
		assert.Equal(t, []string{"s0", "s1"}, got.AppliedSales)
		assert.True(t, got.HasApplied("s0"))
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("kinds are separate", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		require.NoError(t, store.CreateBeneficiary(ctx, newBeneficiary(sales.KindArtist, "Zoe")))
		require.NoError(t, store.CreateBeneficiary(ctx, newBeneficiary(sales.KindArtist, "Ann")))
		v := newBeneficiary(sales.KindVolunteer, "Theo")
		require.NoError(t, store.CreateBeneficiary(ctx, v))

		artists, err := store.ListBeneficiaries(ctx, sales.KindArtist)
		require.NoError(t, err)
		require.Len(t, artists, 2)
		assert.Equal(t, "Ann", artists[0].Name)
		assert.Equal(t, "Zoe", artists[1].Name)

		_, err = store.GetBeneficiary(ctx, sales.KindArtist, v.ID)
		assert.ErrorIs(t, err, sales.ErrNotFound)

		require.NoError(t, store.DeleteBeneficiary(ctx, sales.KindVolunteer, v.ID))
		volunteers, err := store.ListBeneficiaries(ctx, sales.KindVolunteer)
		require.NoError(t, err)
		assert.Empty(t, volunteers)
	})

	t.Run("concurrent swaps lose no update", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		b := newBeneficiary(sales.KindVolunteer, "Theo")
		require.NoError(t, store.CreateBeneficiary(ctx, b))

		const workers = 8
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					cur, err := store.GetBeneficiary(ctx, sales.KindVolunteer, b.ID)
					if !assert.NoError(t, err) {
						return
					}
					cur.ItemSold++
					err = store.UpdateBeneficiary(ctx, cur)
					if err == nil {
						return
					}
					if !assert.ErrorIs(t, err, sales.ErrVersionConflict) {
						return
					}
				}
			}()
		}
		wg.Wait()

		got, err := store.GetBeneficiary(ctx, sales.KindVolunteer, b.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(workers), got.ItemSold)
		assert.Equal(t, int64(workers+1), got.Version)
	})
}

func newBeneficiary(kind sales.Kind, name string) *sales.Beneficiary {
	return &sales.Beneficiary{
		Kind:         kind,
		Name:         name,
		Email:        name + "@example.com",
		TotalRevenue: decimal.Zero,
		OwedAmount:   decimal.Zero,
	}
}
