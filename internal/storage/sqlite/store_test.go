package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"api_artsale/internal/sales"
	"api_artsale/internal/sales/salestest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "data", "artsale.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore(t *testing.T) {
	salestest.RunStoreSuite(t, func(t *testing.T) sales.Store {
		return newTestStore(t)
	})
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artsale.db")
	ctx := context.Background()

	store, err := New(ctx, path)
	require.NoError(t, err)
	b := &sales.Beneficiary{Kind: sales.KindArtist, Name: "Mira", Email: "mira@example.com",
		TotalRevenue: decimal.RequireFromString("100.10"), OwedAmount: decimal.RequireFromString("45.05")}
	require.NoError(t, store.CreateBeneficiary(ctx, b))
	require.NoError(t, store.Close())

	store, err = New(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.GetBeneficiary(ctx, sales.KindArtist, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "45.05", got.OwedAmount.StringFixed(2))
	assert.Equal(t, "100.10", got.TotalRevenue.StringFixed(2))
	require.NoError(t, store.Ping(ctx))
}
