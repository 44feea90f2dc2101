package sales

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RankMetric selects how artists are ranked on the dashboard.
type RankMetric string

const (
	RankByRevenue  RankMetric = "total_revenue"
	RankByItemSold RankMetric = "item_sold"
)

// DefaultTopLimit is how many artists the dashboard ranks when no limit is given.
const DefaultTopLimit = 5

// SalesMetadata aggregates the recorded sales.
type SalesMetadata struct {
	Quantity          int                      `json:"quantity"`
	TotalAmount       decimal.Decimal          `json:"total_amount"`
	ByPaymentMethod   map[PaymentMethod]int    `json:"by_payment_method"`
	CompletedPayments int                      `json:"completed_payments"`
	PendingPayments   int                      `json:"pending_payments"`
	PendingPickUps    int                      `json:"pending_pick_ups"`
	Unsettled         int                      `json:"unsettled"`
	OwedByKind        map[Kind]decimal.Decimal `json:"owed_by_kind,omitempty"`
}

// Dashboard is the aggregate view behind the console's dashboard page.
type Dashboard struct {
	Metadata   SalesMetadata  `json:"metadata"`
	Metric     RankMetric     `json:"metric"`
	TopArtists []*Beneficiary `json:"top_artists"`
}

// Dashboard computes sale totals and the top artists ranked by metric.
func (s *Service) Dashboard(ctx context.Context, metric RankMetric, limit int) (*Dashboard, error) {
	switch metric {
	case "":
		metric = RankByRevenue
	case RankByRevenue, RankByItemSold:
	default:
		verr := &ValidationError{}
		verr.add("metric", fmt.Sprintf("must be one of: %s, %s", RankByRevenue, RankByItemSold))
		return nil, verr
	}
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	allSales, err := s.store.ListSales(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve sales: %w", err)
	}

	metadata := Summarize(allSales)
	metadata.OwedByKind = map[Kind]decimal.Decimal{}

	var artists []*Beneficiary
	for _, kind := range Kinds {
		bs, err := s.store.ListBeneficiaries(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("failed to list %ss: %w", kind, err)
		}
		owed := decimal.Zero
		for _, b := range bs {
			owed = owed.Add(b.OwedAmount)
		}
		metadata.OwedByKind[kind] = owed
		if kind == KindArtist {
			artists = bs
		}
	}

	sort.SliceStable(artists, func(i, j int) bool {
		if metric == RankByItemSold {
			return artists[i].ItemSold > artists[j].ItemSold
		}
		return artists[i].TotalRevenue.GreaterThan(artists[j].TotalRevenue)
	})
	if len(artists) > limit {
		artists = artists[:limit]
	}

	s.logger.Debug("dashboard computed",
		zap.Int("sales", metadata.Quantity),
		zap.String("metric", string(metric)),
		zap.Int("top_artists", len(artists)),
	)

	return &Dashboard{Metadata: metadata, Metric: metric, TopArtists: artists}, nil
}

// Summarize aggregates sale totals. OwedByKind is left unset.
func Summarize(sales []*Sale) SalesMetadata {
	metadata := SalesMetadata{
		TotalAmount:     decimal.Zero,
		ByPaymentMethod: map[PaymentMethod]int{},
	}
	for _, sale := range sales {
		metadata.Quantity++
		metadata.TotalAmount = metadata.TotalAmount.Add(sale.Price)
		metadata.ByPaymentMethod[sale.PaymentMethod]++
		if sale.CompletedPayment {
			metadata.CompletedPayments++
		} else {
			metadata.PendingPayments++
		}
		if !sale.PickUp {
			metadata.PendingPickUps++
		}
		if !sale.FullySettled() {
			metadata.Unsettled++
		}
	}
	return metadata
}
