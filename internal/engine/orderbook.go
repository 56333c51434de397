package engine

import (
	"slices"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tidwall/btree"

	. "tyr/internal/common"
)

// entry is an open order tagged with its insertion sequence, which is its
// time priority.
type entry struct {
	seq   uint64
	order *Order
}

type entries = btree.BTreeG[*entry]

type sideKey struct {
	pair CurrencyPair
	side Side
}

// OrderBook holds the open orders in insertion order. Everything except
// Orders must be called from the mutation context, which is why the trees
// run without locks.
type OrderBook struct {
	seq uint64

	// Every open order, sorted by seq. This is the book order.
	all *entries
	// The same entries split by pair and side, so candidate selection only
	// walks the opposite side of one pair.
	sides map[sideKey]*entries
	byID  map[uuid.UUID]*entry
	// IDs of every order that has closed. An ID is never booked or filled
	// again once it is here.
	closed map[uuid.UUID]struct{}

	// Read-only copy of all, replaced after every mutation.
	view atomic.Pointer[[]Order]
}

func NewOrderBook() *OrderBook {
	book := &OrderBook{
		all:    newEntries(),
		sides:  make(map[sideKey]*entries),
		byID:   make(map[uuid.UUID]*entry),
		closed: make(map[uuid.UUID]struct{}),
	}
	book.publish()
	return book
}

func newEntries() *entries {
	return btree.NewBTreeGOptions(func(a, b *entry) bool {
		return a.seq < b.seq
	}, btree.Options{NoLocks: true})
}

// Orders returns the open orders in book order as of the last completed
// mutation. Safe to call from any goroutine.
func (book *OrderBook) Orders() []Order {
	return slices.Clone(*book.view.Load())
}

func (book *OrderBook) Len() int {
	return book.all.Len()
}

func (book *OrderBook) get(id uuid.UUID) (*Order, bool) {
	e, ok := book.byID[id]
	if !ok {
		return nil, false
	}
	return e.order, true
}

func (book *OrderBook) insert(order *Order) error {
	if _, ok := book.byID[order.ID]; ok {
		return errors.Wrapf(ErrDuplicateOrder, "id %s is open", order.ID)
	}
	if book.isClosed(order.ID) {
		return errors.Wrapf(ErrDuplicateOrder, "id %s already closed", order.ID)
	}

	book.seq++
	e := &entry{seq: book.seq, order: order}

	key := sideKey{pair: order.Pair, side: order.Side}
	side, ok := book.sides[key]
	if !ok {
		side = newEntries()
		book.sides[key] = side
	}

	book.all.Set(e)
	side.Set(e)
	book.byID[order.ID] = e
	return nil
}

func (book *OrderBook) isClosed(id uuid.UUID) bool {
	_, ok := book.closed[id]
	return ok
}

// retire marks id closed for good and takes its order out of the book if it
// was there. Orders matched directly without being booked are retired too.
func (book *OrderBook) retire(id uuid.UUID) {
	book.closed[id] = struct{}{}

	e, ok := book.byID[id]
	if !ok {
		return
	}
	key := sideKey{pair: e.order.Pair, side: e.order.Side}
	if side, ok := book.sides[key]; ok {
		side.Delete(e)
		if side.Len() == 0 {
			delete(book.sides, key)
		}
	}
	book.all.Delete(e)
	delete(book.byID, id)
}

// candidates returns the resting orders order can trade against: opposite
// side, same pair, compatible price, earliest first. Price is a filter and
// not a sort key. The walk stops once the candidates cover order's remaining
// amount, since the rest could never be reached.
func (book *OrderBook) candidates(order *Order) []*Order {
	side, ok := book.sides[sideKey{pair: order.Pair, side: order.Side.Opposite()}]
	if !ok {
		return nil
	}

	var out []*Order
	need := order.remaining
	side.Scan(func(e *entry) bool {
		if !priceCrosses(order, e.order) {
			return true
		}
		out = append(out, e.order)
		need = need.Sub(e.order.remaining)
		return need.Sign() > 0
	})
	return out
}

// publish refreshes the read-only view. The orders are copied so readers
// never see the matcher's writes.
func (book *OrderBook) publish() {
	view := make([]Order, 0, book.all.Len())
	book.all.Scan(func(e *entry) bool {
		view = append(view, *e.order)
		return true
	})
	book.view.Store(&view)
}

// priceCrosses reports whether the sell price of the two orders is at or
// below the buy price. Sides must already be known to be opposite.
func priceCrosses(a, b *Order) bool {
	buy, sell := a, b
	if a.Side == Sell {
		buy, sell = b, a
	}
	return sell.Price.LessThanOrEqual(buy.Price)
}
