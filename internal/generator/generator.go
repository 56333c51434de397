// Package generator produces random limit orders for load and smoke testing.
package generator

import (
	"math/rand/v2"

	"github.com/shopspring/decimal"

	. "tyr/internal/common"
	"tyr/internal/engine"
)

const (
	pricePlaces = 4
	maxAmount   = 100 // exclusive
)

// Generator is not safe for concurrent use.
type Generator struct {
	pair     CurrencyPair
	minPrice decimal.Decimal
	spread   decimal.Decimal
	rng      *rand.Rand
}

// New returns a generator for prices in [minPrice, maxPrice]. The same seed
// yields the same orders, apart from their IDs.
func New(pair CurrencyPair, minPrice, maxPrice decimal.Decimal, seed uint64) *Generator {
	return &Generator{
		pair:     pair,
		minPrice: minPrice,
		spread:   maxPrice.Sub(minPrice),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Next returns an order on side with a uniform price rounded to four places
// and a whole amount in [1, 100).
func (g *Generator) Next(side Side) (engine.Order, error) {
	price := g.minPrice.Add(g.spread.Mul(decimal.NewFromFloat(g.rng.Float64()))).Round(pricePlaces)
	amount := decimal.NewFromInt(int64(g.rng.IntN(maxAmount-1) + 1))
	return engine.NewOrder(g.pair, side, price, amount)
}

// Generate returns count orders alternating Buy and Sell, starting with Buy.
func (g *Generator) Generate(count int) ([]engine.Order, error) {
	orders := make([]engine.Order, 0, count)
	for i := 0; i < count; i++ {
		side := Buy
		if i&1 == 1 {
			side = Sell
		}
		order, err := g.Next(side)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}
