package engine

import "github.com/pkg/errors"

var (
	ErrInvalidOrder     = errors.New("invalid order")
	ErrDuplicateOrder   = errors.New("order already open")
	ErrCurrencyMismatch = errors.New("currency pair mismatch")
	ErrSideMismatch     = errors.New("orders are on the same side")
	ErrPriceMismatch    = errors.New("sell price above buy price")
)
