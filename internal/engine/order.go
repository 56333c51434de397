package engine

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	. "tyr/internal/common"
)

type Status int

const (
	Open            Status = iota // In the book, nothing filled yet
	PartiallyFilled               // In the book, some amount filled
	Closed                        // Fully filled and out of the book
)

func (s Status) String() string {
	switch s {
	case Open:
		return "OPEN"
	case PartiallyFilled:
		return "PARTIALLY_FILLED"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Order is a limit order for a currency pair. Outside the engine an Order is
// a value: the engine keeps its own copy and only the matcher ever changes
// the remaining amount of that copy.
type Order struct {
	ID     uuid.UUID       // Identity, never reused
	Pair   CurrencyPair    //
	Side   Side            //
	Price  decimal.Decimal // Limit price, > 0
	Amount decimal.Decimal // Original amount, > 0

	remaining decimal.Decimal
}

// NewOrder assigns a fresh ID and starts the order with remaining == amount.
func NewOrder(pair CurrencyPair, side Side, price, amount decimal.Decimal) (Order, error) {
	o := Order{
		ID:        uuid.New(),
		Pair:      pair,
		Side:      side,
		Price:     price,
		Amount:    amount,
		remaining: amount,
	}
	if err := o.validate(); err != nil {
		return Order{}, err
	}
	return o, nil
}

// MustOrder is NewOrder for literals known to be valid.
func MustOrder(pair CurrencyPair, side Side, price, amount string) Order {
	o, err := NewOrder(pair, side, decimal.RequireFromString(price), decimal.RequireFromString(amount))
	if err != nil {
		panic(err)
	}
	return o
}

func (o Order) Remaining() decimal.Decimal {
	return o.remaining
}

// Filled is the amount traded so far.
func (o Order) Filled() decimal.Decimal {
	return o.Amount.Sub(o.remaining)
}

func (o Order) Status() Status {
	switch {
	case o.remaining.Sign() <= 0:
		return Closed
	case o.remaining.LessThan(o.Amount):
		return PartiallyFilled
	default:
		return Open
	}
}

// Is reports whether o and other are the same order. Two orders with
// identical terms are still different orders.
func (o Order) Is(other Order) bool {
	return o.ID == other.ID
}

func (o Order) validate() error {
	if o.ID == uuid.Nil {
		return errors.Wrap(ErrInvalidOrder, "missing id")
	}
	if err := o.Side.Validate(); err != nil {
		return err
	}
	if o.Price.Sign() <= 0 {
		return errors.Wrapf(ErrInvalidOrder, "price %s must be positive", o.Price)
	}
	if o.Amount.Sign() <= 0 {
		return errors.Wrapf(ErrInvalidOrder, "amount %s must be positive", o.Amount)
	}
	if o.remaining.Sign() < 0 || o.remaining.GreaterThan(o.Amount) {
		return errors.Wrapf(ErrInvalidOrder, "remaining %s outside [0, %s]", o.remaining, o.Amount)
	}
	return nil
}

func (o Order) String() string {
	return fmt.Sprintf(
		"ID: %v, CurrencyPair: %v, Side: %v, Price: %s, Amount: %s, Remaining: %s",
		o.ID,
		o.Pair,
		o.Side,
		o.Price,
		o.Amount,
		o.remaining,
	)
}
