package currency

import (
	"errors"
	"fmt"
)

// ErrUnknownCurrency is returned when a code is not part of the currency table
var ErrUnknownCurrency = errors.New("unknown currency")

// Currency is an ISO 4217 currency code
type Currency uint8

const (
	EUR Currency = iota + 1
	GBP
	USD
	AUD
	CAD
	NZD
)

var codes = map[Currency]string{
	EUR: "EUR",
	GBP: "GBP",
	USD: "USD",
	AUD: "AUD",
	CAD: "CAD",
	NZD: "NZD",
}

var byCode = func() map[string]Currency {
	m := make(map[string]Currency, len(codes))
	for c, code := range codes {
		m[code] = c
	}
	return m
}()

// All returns every supported currency in declaration order
func All() []Currency {
	return []Currency{EUR, GBP, USD, AUD, CAD, NZD}
}

func (c Currency) String() string {
	if code, ok := codes[c]; ok {
		return code
	}
	return fmt.Sprintf("Currency(%d)", uint8(c))
}

// Parse returns the currency for an ISO 4217 code
func Parse(code string) (Currency, error) {
	c, ok := byCode[code]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return c, nil
}

func (c Currency) MarshalText() ([]byte, error) {
	code, ok := codes[c]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCurrency, uint8(c))
	}
	return []byte(code), nil
}

func (c *Currency) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
