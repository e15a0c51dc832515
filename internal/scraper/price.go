package scraper

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var nonPriceChars = regexp.MustCompile(`[^\d.,]`)

// parsePrice normalizes the price shapes the supermarket APIs are known to
// produce: a bare number, a string with currency noise ("1,95 €") or an
// object carrying an amount or value field. Anything else yields a null
// decimal rather than an error; a missing price is a fact worth recording.
func parsePrice(v interface{}) decimal.NullDecimal {
	switch p := v.(type) {
	case nil:
		return decimal.NullDecimal{}
	case float64:
		return decimal.NewNullDecimal(decimal.NewFromFloat(p))
	case int:
		return decimal.NewNullDecimal(decimal.NewFromInt(int64(p)))
	case int64:
		return decimal.NewNullDecimal(decimal.NewFromInt(p))
	case string:
		clean := nonPriceChars.ReplaceAllString(p, "")
		clean = strings.ReplaceAll(clean, ",", ".")
		d, err := decimal.NewFromString(clean)
		if err != nil {
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	case map[string]interface{}:
		if amount, ok := p["amount"]; ok && amount != nil {
			return parsePrice(amount)
		}
		if value, ok := p["value"]; ok && value != nil {
			return parsePrice(value)
		}
		return decimal.NullDecimal{}
	default:
		return decimal.NullDecimal{}
	}
}
