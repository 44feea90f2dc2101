package sales

import "github.com/shopspring/decimal"

// CurrencyPlaces is the precision every stored amount is rounded to.
const CurrencyPlaces = 2

var (
	// ArtistRate is the fraction of a sale price owed to the artist.
	ArtistRate = decimal.RequireFromString("0.45")
	// VolunteerRate is the fraction of a sale price owed to the volunteer who made the sale.
	VolunteerRate = decimal.RequireFromString("0.10")
)

// Rate returns the commission rate for a beneficiary kind.
func Rate(kind Kind) decimal.Decimal {
	if kind == KindArtist {
		return ArtistRate
	}
	return VolunteerRate
}

// Share computes a beneficiary's cut of price, rounded half away from zero to cents.
func Share(price decimal.Decimal, kind Kind) decimal.Decimal {
	return price.Mul(Rate(kind)).Round(CurrencyPlaces)
}

// ApplySale returns the state of b after crediting it with one sale at price.
// b is not modified. The caller is responsible for persisting the result.
func ApplySale(b *Beneficiary, saleID string, price decimal.Decimal) *Beneficiary {
	next := b.Clone()
	next.ItemSold++
	next.TotalRevenue = next.TotalRevenue.Add(price).Round(CurrencyPlaces)
	next.OwedAmount = next.OwedAmount.Add(Share(price, b.Kind)).Round(CurrencyPlaces)
	next.LastSaleID = saleID
	next.AppliedSales = append(next.AppliedSales, saleID)
	return next
}
