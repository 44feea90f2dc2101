package sales

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names so field errors match the request body
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkStruct runs the struct tags of v and collects failures into verr.
func checkStruct(v any, verr *ValidationError) {
	err := validate.Struct(v)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.add("body", err.Error())
		return
	}
	for _, fe := range fieldErrs {
		verr.add(fe.Field(), describeTag(fe))
	}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "email":
		return "must be a valid email address"
	case "min":
		return "must not be empty"
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// MaxPrice is the largest price a single sale can carry.
var MaxPrice = decimal.New(1, 9)

// Bounds checked before any arithmetic, so exponent notation cannot force
// huge intermediate values.
const (
	maxPriceDigits   = 20
	maxPriceExponent = 9
	minPriceExponent = -10
)

// ParsePrice parses a sale price: a finite, non-negative decimal no larger
// than MaxPrice with at most CurrencyPlaces fractional digits.
func ParsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, errors.New("must be a decimal number")
	}
	if price.IsNegative() {
		return decimal.Decimal{}, errors.New("must not be negative")
	}
	exp := price.Exponent()
	if exp > maxPriceExponent || price.NumDigits() > maxPriceDigits {
		return decimal.Decimal{}, fmt.Errorf("must not exceed %s", MaxPrice.StringFixed(CurrencyPlaces))
	}
	if exp < minPriceExponent || (exp < -CurrencyPlaces && !price.Equal(price.Round(CurrencyPlaces))) {
		return decimal.Decimal{}, fmt.Errorf("must have at most %d decimal places", CurrencyPlaces)
	}
	if price.GreaterThan(MaxPrice) {
		return decimal.Decimal{}, fmt.Errorf("must not exceed %s", MaxPrice.StringFixed(CurrencyPlaces))
	}
	return price.Round(CurrencyPlaces), nil
}

// validateSaleInput checks the shape of in and returns the parsed price.
// Beneficiary references are resolved separately against the store.
func validateSaleInput(in SaleInput) (decimal.Decimal, *ValidationError) {
	verr := &ValidationError{}
	checkStruct(in, verr)

	var price decimal.Decimal
	if strings.TrimSpace(in.Price) != "" {
		p, err := ParsePrice(in.Price)
		if err != nil {
			verr.add("price", err.Error())
		}
		price = p
	}
	if strings.TrimSpace(in.Article) == "" && !hasField(verr, "article") {
		verr.add("article", "is required")
	}
	return price, verr
}

func hasField(verr *ValidationError, field string) bool {
	for _, f := range verr.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
