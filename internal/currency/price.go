package currency

// RateTable maps a currency to the multiplier converting one unit of it into EUR.
// Callers may pass an alternate table, e.g. for point-in-time historical rates.
type RateTable func(Currency) float32

// DefaultRates is the built-in EUR conversion table
var DefaultRates RateTable = func(c Currency) float32 {
	switch c {
	case EUR:
		return 1.0
	case GBP:
		return 1.17
	case USD:
		return 0.9
	case AUD:
		return 0.58
	case CAD:
		return 0.67
	case NZD:
		return 0.53
	}
	return 0
}

// Price is an amount in a given currency
type Price struct {
	Currency Currency `json:"currency"`
	Amount   float32  `json:"amount"`
}

// ToEUR converts the price to EUR with the given rate table.
// No rounding is applied beyond float32 multiplication.
func ToEUR(p Price, rates RateTable) float32 {
	return p.Amount * rates(p.Currency)
}

// EUR converts the price with DefaultRates
func (p Price) EUR() float32 {
	return ToEUR(p, DefaultRates)
}
