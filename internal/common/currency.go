package common

import "strings"

// CurrencyPair identifies what an order trades. Two pairs with the same codes
// are equal under ==.
type CurrencyPair struct {
	Base  string // Currency being bought or sold
	Quote string // Currency the price is expressed in
}

func NewCurrencyPair(base, quote string) CurrencyPair {
	return CurrencyPair{
		Base:  strings.ToUpper(strings.TrimSpace(base)),
		Quote: strings.ToUpper(strings.TrimSpace(quote)),
	}
}

func (p CurrencyPair) String() string {
	return p.Base + "/" + p.Quote
}
