package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"api_artsale/internal/sales"
)

var now = time.Date(2024, 5, 18, 18, 0, 0, 0, time.UTC)

type fakeSettler struct {
	mu      sync.Mutex
	sales   []*sales.Sale
	settled []string
	fail    map[string]bool
}

func (f *fakeSettler) ListSales(context.Context) ([]*sales.Sale, error) {
	return f.sales, nil
}

func (f *fakeSettler) SettleSale(_ context.Context, id string) (*sales.Sale, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[id] {
		return nil, errors.New("store unavailable")
	}
	f.settled = append(f.settled, id)
	return &sales.Sale{ID: id, ArtistSettled: true, VolunteerSettled: true}, nil
}

func newTestReconciler(t *testing.T, settler Settler, cfg Config) *Reconciler {
	t.Helper()
	r, err := New(settler, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	r.now = func() time.Time { return now }
	return r
}

func TestNew_RequiresInterval(t *testing.T) {
	_, err := New(&fakeSettler{}, Config{}, nil)
	assert.Error(t, err)
}

func TestRunOnce_SelectsStaleUnsettledSales(t *testing.T) {
	settler := &fakeSettler{
		sales: []*sales.Sale{
			{ID: "done", Date: now.Add(-time.Hour), ArtistSettled: true, VolunteerSettled: true},
			{ID: "half", Date: now.Add(-time.Hour), ArtistSettled: true},
			{ID: "none", Date: now.Add(-2 * time.Minute)},
			{ID: "fresh", Date: now.Add(-5 * time.Second)},
			{ID: "broken", Date: now.Add(-time.Hour)},
		},
		fail: map[string]bool{"broken": true},
	}
	r := newTestReconciler(t, settler, Config{Interval: time.Minute, MinAge: 30 * time.Second})

	res, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Pending: 3, Settled: 2, Failed: 1}, res)
	assert.ElementsMatch(t, []string{"half", "none"}, settler.settled)
}

func TestRunOnce_StopsOnCancelledContext(t *testing.T) {
	settler := &fakeSettler{sales: []*sales.Sale{{ID: "s1", Date: now.Add(-time.Hour)}}}
	r := newTestReconciler(t, settler, Config{Interval: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, settler.settled)
}

func TestRunOnce_FinishesPartialSaleAgainstService(t *testing.T) {
	store := sales.NewLocalStorage()
	svc := sales.NewService(store, zaptest.NewLogger(t))
	ctx := context.Background()

	artist, err := svc.CreateBeneficiary(ctx, sales.KindArtist, sales.BeneficiaryInput{Name: "Mira", Email: "mira@example.com"})
	require.NoError(t, err)
	volunteer, err := svc.CreateBeneficiary(ctx, sales.KindVolunteer, sales.BeneficiaryInput{Name: "Theo", Email: "theo@example.com"})
	require.NoError(t, err)

	// the volunteer side was applied, the artist side was not
	vol, err := store.GetBeneficiary(ctx, sales.KindVolunteer, volunteer.ID)
	require.NoError(t, err)
	sale := &sales.Sale{
		Article:          "Lithograph",
		PaymentMethod:    sales.PaymentCash,
		Price:            decimal.RequireFromString("200.00"),
		ArtistID:         artist.ID,
		VolunteerID:      volunteer.ID,
		Date:             now.Add(-time.Hour),
		VolunteerSettled: true,
	}
	require.NoError(t, store.CreateSale(ctx, sale))
	require.NoError(t, store.UpdateBeneficiary(ctx, sales.ApplySale(vol, sale.ID, sale.Price)))

	r := newTestReconciler(t, svc, Config{Interval: time.Minute, MinAge: time.Minute})
	res, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Settled)

	gotArtist, err := store.GetBeneficiary(ctx, sales.KindArtist, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, "90.00", gotArtist.OwedAmount.StringFixed(2))

	gotVolunteer, err := store.GetBeneficiary(ctx, sales.KindVolunteer, volunteer.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gotVolunteer.ItemSold, "applied side is not applied twice")
	assert.Equal(t, "20.00", gotVolunteer.OwedAmount.StringFixed(2))

	stored, err := store.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, stored.FullySettled())

	// nothing left for the next pass
	res, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestStartStop(t *testing.T) {
	settler := &fakeSettler{sales: []*sales.Sale{{ID: "s1", Date: now.Add(-time.Hour)}}}
	r := newTestReconciler(t, settler, Config{Interval: 20 * time.Millisecond, RunTimeout: time.Second})

	require.NoError(t, r.Start(context.Background()))
	require.Eventually(t, func() bool {
		settler.mu.Lock()
		defer settler.mu.Unlock()
		return len(settler.settled) > 0
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, r.Stop())
}
