package sales

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store is the persistence boundary of the ledger. Implementations live in
// internal/storage; LocalStorage below keeps everything in memory.
type Store interface {
	// CreateSale persists a new sale. The store assigns sale.ID.
	CreateSale(ctx context.Context, sale *Sale) error
	GetSale(ctx context.Context, id string) (*Sale, error)
	ListSales(ctx context.Context) ([]*Sale, error)
	// UpdateSale overwrites an existing sale. Returns ErrNotFound if it does not exist.
	UpdateSale(ctx context.Context, sale *Sale) error
	DeleteSale(ctx context.Context, id string) error

	// CreateBeneficiary persists a new beneficiary. The store assigns b.ID and sets b.Version to 1.
	CreateBeneficiary(ctx context.Context, b *Beneficiary) error
	GetBeneficiary(ctx context.Context, kind Kind, id string) (*Beneficiary, error)
	ListBeneficiaries(ctx context.Context, kind Kind) ([]*Beneficiary, error)
	// UpdateBeneficiary writes b only if the stored version still equals b.Version,
	// and bumps b.Version on success. Returns ErrVersionConflict otherwise.
	UpdateBeneficiary(ctx context.Context, b *Beneficiary) error
	DeleteBeneficiary(ctx context.Context, kind Kind, id string) error
}

// LocalStorage provides an in-memory implementation of Store.
type LocalStorage struct {
	mu            sync.RWMutex
	sales         map[string]Sale
	beneficiaries map[Kind]map[string]Beneficiary
}

var _ Store = (*LocalStorage)(nil)

// NewLocalStorage instantiates a new LocalStorage with empty collections.
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{
		sales: map[string]Sale{},
		beneficiaries: map[Kind]map[string]Beneficiary{
			KindArtist:    {},
			KindVolunteer: {},
		},
	}
}

func (l *LocalStorage) CreateSale(_ context.Context, sale *Sale) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sale.ID = uuid.NewString()
	l.sales[sale.ID] = *sale
	return nil
}

// GetSale retrieves a sale by ID.
// Returns ErrNotFound if the sale is not found.
func (l *LocalStorage) GetSale(_ context.Context, id string) (*Sale, error) {
	if id == "" {
		return nil, ErrEmptyID
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	s, ok := l.sales[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// ListSales returns every sale ordered by date.
func (l *LocalStorage) ListSales(_ context.Context) ([]*Sale, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sales := make([]*Sale, 0, len(l.sales))
	for _, s := range l.sales {
		s := s
		sales = append(sales, &s)
	}
	SortSales(sales)
	return sales, nil
}

func (l *LocalStorage) UpdateSale(_ context.Context, sale *Sale) error {
	if sale.ID == "" {
		return ErrEmptyID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.sales[sale.ID]; !ok {
		return ErrNotFound
	}
	l.sales[sale.ID] = *sale
	return nil
}

func (l *LocalStorage) DeleteSale(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.sales[id]; !ok {
		return ErrNotFound
	}
	delete(l.sales, id)
	return nil
}

func (l *LocalStorage) CreateBeneficiary(_ context.Context, b *Beneficiary) error {
	if !b.Kind.Valid() {
		return ErrNotFound
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	b.ID = uuid.NewString()
	b.Version = 1
	l.beneficiaries[b.Kind][b.ID] = *b.Clone()
	return nil
}

func (l *LocalStorage) GetBeneficiary(_ context.Context, kind Kind, id string) (*Beneficiary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.beneficiaries[kind][id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (l *LocalStorage) ListBeneficiaries(_ context.Context, kind Kind) ([]*Beneficiary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Beneficiary, 0, len(l.beneficiaries[kind]))
	for _, b := range l.beneficiaries[kind] {
		out = append(out, b.Clone())
	}
	SortBeneficiaries(out)
	return out, nil
}

func (l *LocalStorage) UpdateBeneficiary(_ context.Context, b *Beneficiary) error {
	if b.ID == "" {
		return ErrEmptyID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.beneficiaries[b.Kind][b.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != b.Version {
		return ErrVersionConflict
	}
	b.Version++
	l.beneficiaries[b.Kind][b.ID] = *b.Clone()
	return nil
}

func (l *LocalStorage) DeleteBeneficiary(_ context.Context, kind Kind, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.beneficiaries[kind][id]; !ok {
		return ErrNotFound
	}
	delete(l.beneficiaries[kind], id)
	return nil
}

// SortSales orders sales by date, then ID.
func SortSales(sales []*Sale) {
	sort.Slice(sales, func(i, j int) bool {
		if !sales[i].Date.Equal(sales[j].Date) {
			return sales[i].Date.Before(sales[j].Date)
		}
		return sales[i].ID < sales[j].ID
	})
}

// SortBeneficiaries orders beneficiaries by kind, then name, then ID.
func SortBeneficiaries(bs []*Beneficiary) {
	sort.Slice(bs, func(i, j int) bool {
		if bs[i].Kind != bs[j].Kind {
			return bs[i].Kind < bs[j].Kind
		}
		if bs[i].Name != bs[j].Name {
			return bs[i].Name < bs[j].Name
		}
		return bs[i].ID < bs[j].ID
	})
}
