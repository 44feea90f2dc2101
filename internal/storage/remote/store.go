// Package remote implements sales.Store on top of a Firebase Realtime
// Database style JSON REST backend.
//
// Records live under <base>/<Collection>/<id>.json. Creating a record POSTs
// to the collection and receives {"name": "<id>"} back. Beneficiary writes
// are conditional: the current record is read with X-Firebase-ETag and
// written back with if-match, so a concurrent writer surfaces as 412.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"resty.dev/v3"

	"api_artsale/internal/sales"
)

const (
	salesCollection      = "Sales"
	artistsCollection    = "Artists"
	volunteersCollection = "Volunteers"

	etagRequestHeader = "X-Firebase-ETag"
)

// Config configures the remote store client.
type Config struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
	Breaker   BreakerConfig
}

// BreakerConfig tunes the circuit breaker placed in front of the backend.
type BreakerConfig struct {
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ConsecutiveFailures uint32
}

// Store talks to the remote backend. It is safe for concurrent use.
type Store struct {
	client  *resty.Client
	breaker *gobreaker.CircuitBreaker
	auth    string
	logger  *zap.Logger
}

var _ sales.Store = (*Store)(nil)

// New builds a Store from cfg.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("remote store: base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Breaker.ConsecutiveFailures == 0 {
		cfg.Breaker.ConsecutiveFailures = 5
	}
	if cfg.Breaker.Timeout <= 0 {
		cfg.Breaker.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	s := &Store{client: client, auth: cfg.AuthToken, logger: logger}
	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remote-store",
		MaxRequests: cfg.Breaker.MaxRequests,
		Interval:    cfg.Breaker.Interval,
		Timeout:     cfg.Breaker.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Breaker.ConsecutiveFailures
		},
		// missing records and lost CAS races are answers, not outages
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, sales.ErrNotFound) || errors.Is(err, sales.ErrVersionConflict)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return s, nil
}

// Close releases idle connections held by the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping issues a shallow read of the sales collection.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.do(ctx, request{method: http.MethodGet, path: collectionPath(salesCollection), query: map[string]string{"shallow": "true"}})
	return err
}

func collectionFor(kind sales.Kind) (string, error) {
	switch kind {
	case sales.KindArtist:
		return artistsCollection, nil
	case sales.KindVolunteer:
		return volunteersCollection, nil
	}
	return "", fmt.Errorf("unknown beneficiary kind %q: %w", kind, sales.ErrNotFound)
}

func recordPath(collection, id string) string {
	return "/" + collection + "/" + id + ".json"
}

func collectionPath(collection string) string {
	return "/" + collection + ".json"
}

type request struct {
	method  string
	path    string
	body    any
	headers map[string]string
	query   map[string]string
}

// do sends req through the circuit breaker. A 412 answer is reported as
// sales.ErrVersionConflict and any other non-2xx answer as an error.
func (s *Store) do(ctx context.Context, req request) (*resty.Response, error) {
	out, err := s.breaker.Execute(func() (any, error) {
		r := s.client.R().SetContext(ctx)
		if s.auth != "" {
			r.SetQueryParam("auth", s.auth)
		}
		if len(req.query) > 0 {
			r.SetQueryParams(req.query)
		}
		if req.body != nil {
			r.SetBody(req.body)
		}
		if len(req.headers) > 0 {
			r.SetHeaders(req.headers)
		}

		resp, err := r.Execute(req.method, req.path)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
		}
		// the body is read lazily; drain it so the connection is released
		body := resp.String()
		if resp.StatusCode() == http.StatusPreconditionFailed {
			return resp, sales.ErrVersionConflict
		}
		if resp.IsError() {
			return resp, fmt.Errorf("%s %s: unexpected status %d: %s", req.method, req.path, resp.StatusCode(), body)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.logger.Warn("remote store request rejected", zap.String("path", req.path), zap.Error(err))
			return nil, fmt.Errorf("remote store unavailable: %w", err)
		}
		return nil, err
	}
	resp, _ := out.(*resty.Response)
	return resp, nil
}

// get reads one record into dst. found is false when the backend answers null.
func (s *Store) get(ctx context.Context, path string, dst any, withETag bool) (found bool, etag string, err error) {
	req := request{method: http.MethodGet, path: path}
	if withETag {
		req.headers = map[string]string{etagRequestHeader: "true"}
	}
	resp, err := s.do(ctx, req)
	if err != nil {
		return false, "", err
	}

	raw := resp.String()
	if raw == "" || raw == "null" {
		return false, "", nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, "", fmt.Errorf("decode %s: %w", path, err)
	}
	return true, resp.Header().Get("ETag"), nil
}

// create POSTs record to collection and returns the id assigned by the backend.
func (s *Store) create(ctx context.Context, collection string, record any) (string, error) {
	resp, err := s.do(ctx, request{method: http.MethodPost, path: collectionPath(collection), body: record})
	if err != nil {
		return "", err
	}

	var created struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(resp.String()), &created); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if created.Name == "" {
		return "", errors.New("create response carried no id")
	}
	return created.Name, nil
}

func (s *Store) putIfMatch(ctx context.Context, path, etag string, record any) error {
	_, err := s.do(ctx, request{
		method:  http.MethodPut,
		path:    path,
		body:    record,
		headers: map[string]string{"if-match": etag},
	})
	return err
}

func (s *Store) remove(ctx context.Context, path string, dst any) error {
	found, _, err := s.get(ctx, path, dst, false)
	if err != nil {
		return err
	}
	if !found {
		return sales.ErrNotFound
	}
	_, err = s.do(ctx, request{method: http.MethodDelete, path: path})
	return err
}

func (s *Store) CreateSale(ctx context.Context, sale *sales.Sale) error {
	record := *sale
	record.ID = ""
	id, err := s.create(ctx, salesCollection, &record)
	if err != nil {
		return err
	}
	sale.ID = id
	return nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*sales.Sale, error) {
	if id == "" {
		return nil, sales.ErrEmptyID
	}
	var sale sales.Sale
	found, _, err := s.get(ctx, recordPath(salesCollection, id), &sale, false)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, sales.ErrNotFound
	}
	sale.ID = id
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context) ([]*sales.Sale, error) {
	records := map[string]*sales.Sale{}
	if _, _, err := s.get(ctx, collectionPath(salesCollection), &records, false); err != nil {
		return nil, err
	}

	out := make([]*sales.Sale, 0, len(records))
	for id, sale := range records {
		if sale == nil {
			continue
		}
		sale.ID = id
		out = append(out, sale)
	}
	sales.SortSales(out)
	return out, nil
}

// UpdateSale overwrites an existing sale. The write is conditional on the
// record not having been deleted or rewritten since it was read here.
func (s *Store) UpdateSale(ctx context.Context, sale *sales.Sale) error {
	if sale.ID == "" {
		return sales.ErrEmptyID
	}
	path := recordPath(salesCollection, sale.ID)

	var current sales.Sale
	found, etag, err := s.get(ctx, path, &current, true)
	if err != nil {
		return err
	}
	if !found {
		return sales.ErrNotFound
	}

	record := *sale
	record.ID = ""
	return s.putIfMatch(ctx, path, etag, &record)
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	if id == "" {
		return sales.ErrEmptyID
	}
	return s.remove(ctx, recordPath(salesCollection, id), &sales.Sale{})
}

func (s *Store) CreateBeneficiary(ctx context.Context, b *sales.Beneficiary) error {
	collection, err := collectionFor(b.Kind)
	if err != nil {
		return err
	}
	record := *b
	record.ID = ""
	record.Version = 1
	id, err := s.create(ctx, collection, &record)
	if err != nil {
		return err
	}
	b.ID = id
	b.Version = 1
	return nil
}

func (s *Store) GetBeneficiary(ctx context.Context, kind sales.Kind, id string) (*sales.Beneficiary, error) {
	collection, err := collectionFor(kind)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, sales.ErrEmptyID
	}

	var b sales.Beneficiary
	found, _, err := s.get(ctx, recordPath(collection, id), &b, false)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, sales.ErrNotFound
	}
	b.ID, b.Kind = id, kind
	return &b, nil
}

func (s *Store) ListBeneficiaries(ctx context.Context, kind sales.Kind) ([]*sales.Beneficiary, error) {
	collection, err := collectionFor(kind)
	if err != nil {
		return nil, err
	}

	records := map[string]*sales.Beneficiary{}
	if _, _, err := s.get(ctx, collectionPath(collection), &records, false); err != nil {
		return nil, err
	}

	out := make([]*sales.Beneficiary, 0, len(records))
	for id, b := range records {
		if b == nil {
			continue
		}
		b.ID, b.Kind = id, kind
		out = append(out, b)
	}
	sales.SortBeneficiaries(out)
	return out, nil
}

// UpdateBeneficiary writes b when the stored version equals b.Version. The
// version check and the if-match precondition together make the write a
// compare-and-swap even against writers that bypass this process.
func (s *Store) UpdateBeneficiary(ctx context.Context, b *sales.Beneficiary) error {
	collection, err := collectionFor(b.Kind)
	if err != nil {
		return err
	}
	if b.ID == "" {
		return sales.ErrEmptyID
	}
	path := recordPath(collection, b.ID)

	var current sales.Beneficiary
	found, etag, err := s.get(ctx, path, &current, true)
	if err != nil {
		return err
	}
	if !found {
		return sales.ErrNotFound
	}
	if current.Version != b.Version {
		return sales.ErrVersionConflict
	}

	record := *b
	record.ID = ""
	record.Version = b.Version + 1
	if err := s.putIfMatch(ctx, path, etag, &record); err != nil {
		if errors.Is(err, sales.ErrVersionConflict) {
			s.logger.Debug("beneficiary changed concurrently",
				zap.String("kind", string(b.Kind)),
				zap.String("beneficiary_id", b.ID),
			)
		}
		return err
	}
	b.Version = record.Version
	return nil
}

func (s *Store) DeleteBeneficiary(ctx context.Context, kind sales.Kind, id string) error {
	collection, err := collectionFor(kind)
	if err != nil {
		return err
	}
	if id == "" {
		return sales.ErrEmptyID
	}
	return s.remove(ctx, recordPath(collection, id), &sales.Beneficiary{})
}
