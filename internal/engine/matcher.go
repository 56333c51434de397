package engine

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	. "tyr/internal/common"
)

// matcher owns the book. All of its methods run inside the mutation context,
// so they never race with each other.
type matcher struct {
	book   *OrderBook
	notify func(Event)
}

// submit inserts order, announces it and then matches it in price-time
// priority until it is filled or the candidates run out.
//
// The Opened event always goes out before any fill, so an order that trades
// straight away is still seen opening first.
func (m *matcher) submit(order Order) error {
	if err := order.validate(); err != nil {
		return err
	}
	if !order.remaining.Equal(order.Amount) {
		return errors.Wrapf(ErrInvalidOrder, "remaining %s differs from amount %s", order.remaining, order.Amount)
	}

	live := order
	if err := m.book.insert(&live); err != nil {
		return err
	}
	log.Debug().
		Str("id", live.ID.String()).
		Str("pair", live.Pair.String()).
		Str("side", live.Side.String()).
		Str("price", live.Price.String()).
		Str("amount", live.Amount.String()).
		Msg("order opened")
	m.notify(Event{Kind: OrderOpened, Order: live})

	for _, candidate := range m.book.candidates(&live) {
		if live.remaining.Sign() <= 0 {
			break
		}
		if err := m.matchOrder(&live, candidate); err != nil {
			// Candidates are pre-filtered, so this means the book is corrupt.
			return errors.Wrapf(err, "matching %s against %s", live.ID, candidate.ID)
		}
	}
	return nil
}

// matchOrder trades one against two. Validation happens before anything is
// written, so a rejected match leaves both orders untouched.
func (m *matcher) matchOrder(one, two *Order) error {
	if one.Pair != two.Pair {
		return errors.Wrapf(ErrCurrencyMismatch, "%s against %s", one.Pair, two.Pair)
	}
	if err := one.Side.Validate(); err != nil {
		return err
	}
	if err := two.Side.Validate(); err != nil {
		return err
	}
	if one.Side == two.Side {
		return errors.Wrapf(ErrSideMismatch, "both orders %s", one.Side)
	}
	if !priceCrosses(one, two) {
		buy, sell := one, two
		if one.Side == Sell {
			buy, sell = two, one
		}
		return errors.Wrapf(ErrPriceMismatch, "sell %s, buy %s", sell.Price, buy.Price)
	}
	if one.remaining.Sign() <= 0 || two.remaining.Sign() <= 0 {
		return errors.Wrap(ErrInvalidOrder, "order already closed")
	}

	fill := decimal.Min(one.remaining, two.remaining)
	one.remaining = one.remaining.Sub(fill)
	two.remaining = two.remaining.Sub(fill)

	log.Debug().
		Str("one", one.ID.String()).
		Str("two", two.ID.String()).
		Str("fill", fill.String()).
		Msg("orders matched")

	m.closeIfFilled(one)
	m.closeIfFilled(two)
	return nil
}

func (m *matcher) closeIfFilled(order *Order) {
	if order.remaining.Sign() > 0 {
		return
	}
	m.book.retire(order.ID)
	log.Debug().Str("id", order.ID.String()).Msg("order closed")
	m.notify(Event{Kind: OrderClosed, Order: *order})
}
