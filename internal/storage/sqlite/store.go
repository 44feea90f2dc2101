// Package sqlite provides a SQLite-backed implementation of sales.Store.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"api_artsale/internal/sales"
)

const driverName = "sqlite"

func init() {
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

// Store implements sales.Store using SQLite.
type Store struct {
	db *sqlx.DB
}

var _ sales.Store = (*Store)(nil)

type saleRow struct {
	ID               string          `db:"id"`
	Article          string          `db:"article"`
	Comment          string          `db:"comment"`
	PaymentMethod    string          `db:"payment_method"`
	PickUp           bool            `db:"pick_up"`
	Price            decimal.Decimal `db:"price"`
	ArtistID         string          `db:"artist_id"`
	VolunteerID      string          `db:"volunteer_id"`
	CompletedPayment bool            `db:"completed_payment"`
	Date             string          `db:"date"`
	ArtistSettled    bool            `db:"artist_settled"`
	VolunteerSettled bool            `db:"volunteer_settled"`
}

type beneficiaryRow struct {
	Kind         string          `db:"kind"`
	ID           string          `db:"id"`
	Name         string          `db:"name"`
	Email        string          `db:"email"`
	Category     string          `db:"category"`
	ItemSold     int64           `db:"item_sold"`
	TotalRevenue decimal.Decimal `db:"total_revenue"`
	OwedAmount   decimal.Decimal `db:"owed_amount"`
	Version      int64           `db:"version"`
	LastSaleID   string          `db:"last_sale_id"`
	AppliedSales saleIDs         `db:"applied_sales"`
}

// saleIDs is stored as a JSON array.
type saleIDs []string

func (ids saleIDs) Value() (driver.Value, error) {
	if ids == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]string(ids))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (ids *saleIDs) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*ids = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into sale ids", src)
	}
	return json.Unmarshal(raw, (*[]string)(ids))
}

func toSaleRow(s *sales.Sale) saleRow {
	return saleRow{
		ID:               s.ID,
		Article:          s.Article,
		Comment:          s.Comment,
		PaymentMethod:    string(s.PaymentMethod),
		PickUp:           s.PickUp,
		Price:            s.Price,
		ArtistID:         s.ArtistID,
		VolunteerID:      s.VolunteerID,
		CompletedPayment: s.CompletedPayment,
		Date:             s.Date.UTC().Format(time.RFC3339Nano),
		ArtistSettled:    s.ArtistSettled,
		VolunteerSettled: s.VolunteerSettled,
	}
}

func (r saleRow) toSale() (*sales.Sale, error) {
	date, err := time.Parse(time.RFC3339Nano, r.Date)
	if err != nil {
		return nil, fmt.Errorf("sale %s has malformed date %q: %w", r.ID, r.Date, err)
	}
	return &sales.Sale{
		ID:               r.ID,
		Article:          r.Article,
		Comment:          r.Comment,
		PaymentMethod:    sales.PaymentMethod(r.PaymentMethod),
		PickUp:           r.PickUp,
		Price:            r.Price,
		ArtistID:         r.ArtistID,
		VolunteerID:      r.VolunteerID,
		CompletedPayment: r.CompletedPayment,
		Date:             date,
		ArtistSettled:    r.ArtistSettled,
		VolunteerSettled: r.VolunteerSettled,
	}, nil
}

func toBeneficiaryRow(b *sales.Beneficiary) beneficiaryRow {
	return beneficiaryRow{
		Kind:         string(b.Kind),
		ID:           b.ID,
		Name:         b.Name,
		Email:        b.Email,
		Category:     b.Category,
		ItemSold:     b.ItemSold,
		TotalRevenue: b.TotalRevenue,
		OwedAmount:   b.OwedAmount,
		Version:      b.Version,
		LastSaleID:   b.LastSaleID,
		AppliedSales: saleIDs(b.AppliedSales),
	}
}

func (r beneficiaryRow) toBeneficiary() *sales.Beneficiary {
	return &sales.Beneficiary{
		ID:           r.ID,
		Kind:         sales.Kind(r.Kind),
		Name:         r.Name,
		Email:        r.Email,
		Category:     r.Category,
		ItemSold:     r.ItemSold,
		TotalRevenue: r.TotalRevenue,
		OwedAmount:   r.OwedAmount,
		Version:      r.Version,
		LastSaleID:   r.LastSaleID,
		AppliedSales: []string(r.AppliedSales),
	}
}

// New opens the database at path, creating parent directories and running
// migrations.
func New(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sqlx.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer; one connection avoids SQLITE_BUSY under load
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) CreateSale(ctx context.Context, sale *sales.Sale) error {
	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO sales (id, article, comment, payment_method, pick_up, price, artist_id, volunteer_id,
                   completed_payment, date, artist_settled, volunteer_settled)
VALUES (:id, :article, :comment, :payment_method, :pick_up, :price, :artist_id, :volunteer_id,
        :completed_payment, :date, :artist_settled, :volunteer_settled)`, toSaleRow(sale))
	if err != nil {
		return fmt.Errorf("failed to insert sale: %w", err)
	}
	return nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*sales.Sale, error) {
	if id == "" {
		return nil, sales.ErrEmptyID
	}
	var row saleRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM sales WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sales.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}
	return row.toSale()
}

func (s *Store) ListSales(ctx context.Context) ([]*sales.Sale, error) {
	var rows []saleRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM sales`); err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}

	out := make([]*sales.Sale, 0, len(rows))
	for _, row := range rows {
		sale, err := row.toSale()
		if err != nil {
			return nil, err
		}
		out = append(out, sale)
	}
	sales.SortSales(out)
	return out, nil
}

func (s *Store) UpdateSale(ctx context.Context, sale *sales.Sale) error {
	if sale.ID == "" {
		return sales.ErrEmptyID
	}
	res, err := s.db.NamedExecContext(ctx, `
UPDATE sales SET article = :article, comment = :comment, payment_method = :payment_method,
       pick_up = :pick_up, price = :price, artist_id = :artist_id, volunteer_id = :volunteer_id,
       completed_payment = :completed_payment, date = :date,
       artist_settled = :artist_settled, volunteer_settled = :volunteer_settled
WHERE id = :id`, toSaleRow(sale))
	if err != nil {
		return fmt.Errorf("failed to update sale: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	if id == "" {
		return sales.ErrEmptyID
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sale: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) CreateBeneficiary(ctx context.Context, b *sales.Beneficiary) error {
	if !b.Kind.Valid() {
		return fmt.Errorf("unknown beneficiary kind %q: %w", b.Kind, sales.ErrNotFound)
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Version = 1
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO beneficiaries (kind, id, name, email, category, item_sold, total_revenue, owed_amount, version, last_sale_id, applied_sales)
VALUES (:kind, :id, :name, :email, :category, :item_sold, :total_revenue, :owed_amount, :version, :last_sale_id, :applied_sales)`,
		toBeneficiaryRow(b))
	if err != nil {
		return fmt.Errorf("failed to insert %s: %w", b.Kind, err)
	}
	return nil
}

func (s *Store) GetBeneficiary(ctx context.Context, kind sales.Kind, id string) (*sales.Beneficiary, error) {
	if id == "" {
		return nil, sales.ErrEmptyID
	}
	var row beneficiaryRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM beneficiaries WHERE kind = ? AND id = ?`, string(kind), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sales.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return row.toBeneficiary(), nil
}

func (s *Store) ListBeneficiaries(ctx context.Context, kind sales.Kind) ([]*sales.Beneficiary, error) {
	var rows []beneficiaryRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM beneficiaries WHERE kind = ? ORDER BY name, id`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list %ss: %w", kind, err)
	}

	out := make([]*sales.Beneficiary, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toBeneficiary())
	}
	return out, nil
}

// UpdateBeneficiary is a compare-and-swap on the version column.
func (s *Store) UpdateBeneficiary(ctx context.Context, b *sales.Beneficiary) error {
	if b.ID == "" {
		return sales.ErrEmptyID
	}
	row := toBeneficiaryRow(b)
	res, err := s.db.NamedExecContext(ctx, `
UPDATE beneficiaries SET name = :name, email = :email, category = :category, item_sold = :item_sold,
       total_revenue = :total_revenue, owed_amount = :owed_amount, last_sale_id = :last_sale_id,
       applied_sales = :applied_sales, version = version + 1
WHERE kind = :kind AND id = :id AND version = :version`, row)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", b.Kind, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		var exists bool
		err := s.db.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM beneficiaries WHERE kind = ? AND id = ?)`, string(b.Kind), b.ID)
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", b.Kind, err)
		}
		if !exists {
			return sales.ErrNotFound
		}
		return sales.ErrVersionConflict
	}

	b.Version++
	return nil
}

func (s *Store) DeleteBeneficiary(ctx context.Context, kind sales.Kind, id string) error {
	if id == "" {
		return sales.ErrEmptyID
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM beneficiaries WHERE kind = ? AND id = ?`, string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return sales.ErrNotFound
	}
	return nil
}
