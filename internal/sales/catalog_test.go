package sales

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestCreateBeneficiary(t *testing.T) {
	svc := newTestService(t, NewLocalStorage())
	ctx := context.Background()

	t.Run("artist starts with empty ledger", func(t *testing.T) {
		b, err := svc.CreateBeneficiary(ctx, KindArtist, BeneficiaryInput{Name: " Ana ", Email: "ana@example.com", Category: "print"})
		require.NoError(t, err)
		assert.NotEmpty(t, b.ID)
		assert.Equal(t, "Ana", b.Name)
		assert.Equal(t, int64(0), b.ItemSold)
		assert.True(t, b.TotalRevenue.IsZero())
		assert.True(t, b.OwedAmount.IsZero())
		assert.Equal(t, int64(1), b.Version)
	})

	t.Run("volunteer cannot have a category", func(t *testing.T) {
		_, err := svc.CreateBeneficiary(ctx, KindVolunteer, BeneficiaryInput{Name: "Bo", Email: "bo@example.com", Category: "print"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "category", verr.Fields[0].Field)
	})

	t.Run("invalid email", func(t *testing.T) {
		_, err := svc.CreateBeneficiary(ctx, KindArtist, BeneficiaryInput{Name: "Cy", Email: "not-an-email"})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "email", verr.Fields[0].Field)
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := svc.CreateBeneficiary(ctx, Kind("sponsor"), BeneficiaryInput{Name: "Di", Email: "di@example.com"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUpdateProfile(t *testing.T) {
	store := NewLocalStorage()
	svc := newTestService(t, store)
	artist, volunteer := seedBeneficiaries(t, svc)
	ctx := context.Background()

	_, err := svc.RecordSale(ctx, saleInput(artist.ID, volunteer.ID, "10.00"))
	require.NoError(t, err)

	updated, err := svc.UpdateProfile(ctx, KindArtist, artist.ID, ProfileUpdate{Name: strPtr("Mira V."), Category: strPtr("glass")})
	require.NoError(t, err)
	assert.Equal(t, "Mira V.", updated.Name)
	assert.Equal(t, "glass", updated.Category)
	assert.Equal(t, "mira@example.com", updated.Email)
	// ledger fields survive a profile edit
	assert.Equal(t, int64(1), updated.ItemSold)
	assert.Equal(t, "4.50", updated.OwedAmount.StringFixed(2))
	assert.Equal(t, int64(3), updated.Version)

	_, err = svc.UpdateProfile(ctx, KindArtist, artist.ID, ProfileUpdate{Email: strPtr("bad")})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.UpdateProfile(ctx, KindArtist, "missing", ProfileUpdate{Name: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSale(t *testing.T) {
	store := NewLocalStorage()
	svc := newTestService(t, store)
	artist, volunteer := seedBeneficiaries(t, svc)
	ctx := context.Background()

	sale, err := svc.RecordSale(ctx, saleInput(artist.ID, volunteer.ID, "10.00"))
	require.NoError(t, err)

	cash := PaymentCash
	updated, err := svc.UpdateSale(ctx, sale.ID, SaleUpdate{
		Comment:       strPtr("picked up on sunday"),
		PaymentMethod: &cash,
		PickUp:        boolPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "picked up on sunday", updated.Comment)
	assert.Equal(t, PaymentCash, updated.PaymentMethod)
	assert.True(t, updated.PickUp)
	assert.Equal(t, sale.Price, updated.Price)
	assert.True(t, updated.FullySettled(), "settled flags survive an edit")

	bad := PaymentMethod("barter")
	_, err = svc.UpdateSale(ctx, sale.ID, SaleUpdate{PaymentMethod: &bad})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.UpdateSale(ctx, sale.ID, SaleUpdate{Article: strPtr(" ")})
	assert.ErrorAs(t, err, &verr)

	_, err = svc.UpdateSale(ctx, "missing", SaleUpdate{PickUp: boolPtr(true)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSaleKeepsLedgers(t *testing.T) {
	store := NewLocalStorage()
	svc := newTestService(t, store)
	artist, volunteer := seedBeneficiaries(t, svc)
	ctx := context.Background()

	sale, err := svc.RecordSale(ctx, saleInput(artist.ID, volunteer.ID, "10.00"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSale(ctx, sale.ID))
	_, err = svc.GetSale(ctx, sale.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.DeleteSale(ctx, sale.ID), ErrNotFound)

	got, err := svc.GetBeneficiary(ctx, KindArtist, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ItemSold)
}

func TestDashboard(t *testing.T) {
	store := NewLocalStorage()
	svc := newTestService(t, store)
	ctx := context.Background()
	_, volunteer := seedBeneficiaries(t, svc)

	second, err := svc.CreateBeneficiary(ctx, KindArtist, BeneficiaryInput{Name: "Zed", Email: "zed@example.com"})
	require.NoError(t, err)
	top, err := svc.ListBeneficiaries(ctx, KindArtist)
	require.NoError(t, err)
	first := top[0]
	require.NotEqual(t, first.ID, second.ID)

	// first: one expensive sale, second: three cheap ones
	_, err = svc.RecordSale(ctx, saleInput(first.ID, volunteer.ID, "300.00"))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		in := saleInput(second.ID, volunteer.ID, "20.00")
		in.PaymentMethod = PaymentCash
		in.CompletedPayment = false
		_, err = svc.RecordSale(ctx, in)
		require.NoError(t, err)
	}

	dash, err := svc.Dashboard(ctx, "", 0)
	require.NoError(t, err)
	assert.Equal(t, RankByRevenue, dash.Metric)
	assert.Equal(t, 4, dash.Metadata.Quantity)
	assert.Equal(t, "360.00", dash.Metadata.TotalAmount.StringFixed(2))
	assert.Equal(t, 3, dash.Metadata.ByPaymentMethod[PaymentCash])
	assert.Equal(t, 1, dash.Metadata.ByPaymentMethod[PaymentDebit])
	assert.Equal(t, 1, dash.Metadata.CompletedPayments)
	assert.Equal(t, 3, dash.Metadata.PendingPayments)
	assert.Equal(t, 0, dash.Metadata.Unsettled)
	assert.Equal(t, "162.00", dash.Metadata.OwedByKind[KindArtist].StringFixed(2))
	assert.Equal(t, "36.00", dash.Metadata.OwedByKind[KindVolunteer].StringFixed(2))
	require.Len(t, dash.TopArtists, 2)
	assert.Equal(t, first.ID, dash.TopArtists[0].ID)

	dash, err = svc.Dashboard(ctx, RankByItemSold, 1)
	require.NoError(t, err)
	require.Len(t, dash.TopArtists, 1)
	assert.Equal(t, second.ID, dash.TopArtists[0].ID)

	_, err = svc.Dashboard(ctx, "popularity", 0)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
