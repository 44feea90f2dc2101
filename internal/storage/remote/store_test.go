package remote

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"api_artsale/internal/sales"
	"api_artsale/internal/sales/salestest"
)

const testToken = "secret"

// fakeDB mimics the subset of the realtime database REST protocol the store uses.
type fakeDB struct {
	mu      sync.Mutex
	data    map[string]map[string]json.RawMessage
	nextID  int
	failAll bool
	// beforePut runs while the lock is not held, right before a conditional write is checked.
	beforePut func(collection, id string)
}

func newFakeDB() *fakeDB {
	return &fakeDB{data: map[string]map[string]json.RawMessage{}}
}

func etagOf(raw []byte) string {
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:])
}

func (f *fakeDB) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("auth") != testToken {
		http.Error(w, `{"error":"Permission denied"}`, http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	failing := f.failAll
	f.mu.Unlock()
	if failing {
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".json"), "/")
	collection := parts[0]
	id := ""
	if len(parts) > 1 {
		id = parts[1]
	}

	if r.Method == http.MethodPut && f.beforePut != nil {
		f.beforePut(collection, id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	records := f.data[collection]
	current := []byte("null")
	if id != "" {
		if raw, ok := records[id]; ok {
			current = raw
		}
	} else if len(records) > 0 {
		current, _ = json.Marshal(records)
	}

	switch r.Method {
	case http.MethodGet:
		if r.Header.Get("X-Firebase-ETag") == "true" {
			w.Header().Set("ETag", etagOf(current))
		}
		_, _ = w.Write(current)
	case http.MethodPost:
		body, _ := io.ReadAll(r.Body)
		f.nextID++
		newID := fmt.Sprintf("-N%04d", f.nextID)
		if f.data[collection] == nil {
			f.data[collection] = map[string]json.RawMessage{}
		}
		f.data[collection][newID] = body
		_, _ = fmt.Fprintf(w, `{"name":%q}`, newID)
	case http.MethodPut:
		if match := r.Header.Get("if-match"); match != "" && match != etagOf(current) {
			w.Header().Set("ETag", etagOf(current))
			http.Error(w, `{"error":"etag mismatch"}`, http.StatusPreconditionFailed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if f.data[collection] == nil {
			f.data[collection] = map[string]json.RawMessage{}
		}
		f.data[collection][id] = body
		_, _ = w.Write(body)
	case http.MethodDelete:
		delete(records, id)
		_, _ = w.Write([]byte("null"))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T, db *fakeDB) *Store {
	t.Helper()
	srv := httptest.NewServer(db)
	t.Cleanup(srv.Close)

	store, err := New(Config{
		BaseURL:   srv.URL,
		AuthToken: testToken,
		Timeout:   2 * time.Second,
		Breaker:   BreakerConfig{ConsecutiveFailures: 3, Timeout: time.Minute},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestStore_SaleRoundTrip(t *testing.T) {
	store := newTestStore(t, newFakeDB())
	ctx := context.Background()

	sale := &sales.Sale{
		Article:       "Blue vase",
		PaymentMethod: sales.PaymentCash,
		Price:         decimal.RequireFromString("120.50"),
		ArtistID:      "a1",
		VolunteerID:   "v1",
		Date:          time.Date(2024, 5, 18, 14, 30, 0, 0, time.UTC),
	}
	require.NoError(t, store.CreateSale(ctx, sale))
	require.NotEmpty(t, sale.ID)

	got, err := store.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, sale.ID, got.ID)
	assert.Equal(t, "Blue vase", got.Article)
	assert.True(t, sale.Price.Equal(got.Price))
	assert.True(t, sale.Date.Equal(got.Date))

	got.ArtistSettled = true
	require.NoError(t, store.UpdateSale(ctx, got))
	again, err := store.GetSale(ctx, sale.ID)
	require.NoError(t, err)
	assert.True(t, again.ArtistSettled)

	all, err := store.ListSales(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, sale.ID, all[0].ID)

	require.NoError(t, store.DeleteSale(ctx, sale.ID))
	_, err = store.GetSale(ctx, sale.ID)
	assert.ErrorIs(t, err, sales.ErrNotFound)
	assert.ErrorIs(t, store.DeleteSale(ctx, sale.ID), sales.ErrNotFound)
	assert.ErrorIs(t, store.UpdateSale(ctx, sale), sales.ErrNotFound)
}

func TestStore_Ping(t *testing.T) {
	require.NoError(t, newTestStore(t, newFakeDB()).Ping(context.Background()))
}

func TestStore_ListEmptyCollections(t *testing.T) {
	store := newTestStore(t, newFakeDB())
	ctx := context.Background()

	all, err := store.ListSales(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	artists, err := store.ListBeneficiaries(ctx, sales.KindArtist)
	require.NoError(t, err)
	assert.Empty(t, artists)
}

func TestStore_BeneficiaryCompareAndSwap(t *testing.T) {
	store := newTestStore(t, newFakeDB())
	ctx := context.Background()

	b := &sales.Beneficiary{Kind: sales.KindArtist, Name: "Mira", Email: "mira@example.com", TotalRevenue: decimal.Zero, OwedAmount: decimal.Zero}
	require.NoError(t, store.CreateBeneficiary(ctx, b))
	assert.Equal(t, int64(1), b.Version)

	first, err := store.GetBeneficiary(ctx, sales.KindArtist, b.ID)
	require.NoError(t, err)
	stale := first.Clone()

	first.ItemSold = 1
	require.NoError(t, store.UpdateBeneficiary(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	stale.ItemSold = 99
	assert.ErrorIs(t, store.UpdateBeneficiary(ctx, stale), sales.ErrVersionConflict)

	got, err := store.GetBeneficiary(ctx, sales.KindArtist, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ItemSold)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, sales.KindArtist, got.Kind)

	// artists and volunteers live in separate collections
	_, err = store.GetBeneficiary(ctx, sales.KindVolunteer, b.ID)
	assert.ErrorIs(t, err, sales.ErrNotFound)
}

func TestStore_ConcurrentWriterSurfacesAsConflict(t *testing.T) {
	db := newFakeDB()
	store := newTestStore(t, db)
	ctx := context.Background()

	b := &sales.Beneficiary{Kind: sales.KindVolunteer, Name: "Theo", Email: "theo@example.com", TotalRevenue: decimal.Zero, OwedAmount: decimal.Zero}
	require.NoError(t, store.CreateBeneficiary(ctx, b))

	// another client rewrites the record between our read and our write
	var once sync.Once
	db.beforePut = func(collection, id string) {
		once.Do(func() {
			db.mu.Lock()
			defer db.mu.Unlock()
			db.data[collection][id] = json.RawMessage(`{"name":"Theo","email":"theo@example.com","item_sold":5,"total_revenue":"0","owed_amount":"0","version":1}`)
		})
	}

	b.OwedAmount = decimal.RequireFromString("1.00")
	assert.ErrorIs(t, store.UpdateBeneficiary(ctx, b), sales.ErrVersionConflict)
}

func TestStore_WorksWithService(t *testing.T) {
	store := newTestStore(t, newFakeDB())
	svc := sales.NewService(store, zaptest.NewLogger(t))
	ctx := context.Background()

	artist, err := svc.CreateBeneficiary(ctx, sales.KindArtist, sales.BeneficiaryInput{Name: "Mira", Email: "mira@example.com"})
	require.NoError(t, err)
	volunteer, err := svc.CreateBeneficiary(ctx, sales.KindVolunteer, sales.BeneficiaryInput{Name: "Theo", Email: "theo@example.com"})
	require.NoError(t, err)

	sale, err := svc.RecordSale(ctx, sales.SaleInput{
		Article:       "Print",
		PaymentMethod: sales.PaymentCredit,
		Price:         "40.00",
		ArtistID:      artist.ID,
		VolunteerID:   volunteer.ID,
	})
	require.NoError(t, err)
	assert.True(t, sale.FullySettled())

	got, err := svc.GetBeneficiary(ctx, sales.KindArtist, artist.ID)
	require.NoError(t, err)
	assert.Equal(t, "18.00", got.OwedAmount.StringFixed(2))
	assert.Equal(t, sale.ID, got.LastSaleID)
}

func TestStore_BreakerOpensOnOutage(t *testing.T) {
	db := newFakeDB()
	db.failAll = true
	store := newTestStore(t, db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.ListSales(ctx)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, store.breaker.State())

	_, err := store.ListSales(ctx)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestStore_NotFoundDoesNotTripBreaker(t *testing.T) {
	store := newTestStore(t, newFakeDB())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.GetSale(ctx, "missing")
		assert.ErrorIs(t, err, sales.ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, store.breaker.State())
}

func TestStore_Contract(t *testing.T) {
	salestest.RunStoreSuite(t, func(t *testing.T) sales.Store {
		return newTestStore(t, newFakeDB())
	})
}
