package engine

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"tyr/internal/executor"
)

// This is the main matching engine.
//
// Book mutation happens only on the mutation context, which must be Serial.
// Lifecycle events go through a second, independent context.
type Engine struct {
	mutation executor.Serial
	events   executor.Executor
	notifier *Notifier
	book     *OrderBook
	matcher  *matcher
}

// New wires an engine to the two execution contexts it runs on. The engine
// takes ownership of both and closes them in Shutdown.
func New(mutation executor.Serial, notifier executor.Executor) *Engine {
	engine := &Engine{
		mutation: mutation,
		events:   notifier,
		notifier: NewNotifier(notifier),
		book:     NewOrderBook(),
	}
	engine.matcher = &matcher{
		book:   engine.book,
		notify: engine.notifier.Publish,
	}
	return engine
}

// Place schedules order for matching and returns immediately. Outcomes are
// reported through events and OpenOrders; the Future only says whether the
// order was accepted.
func (engine *Engine) Place(order Order) *executor.Future {
	return engine.mutation.Submit(func() error {
		defer engine.book.publish()

		err := engine.matcher.submit(order)
		if err != nil {
			log.Warn().Err(err).Str("id", order.ID.String()).Msg("order rejected")
		}
		return err
	})
}

// MatchOrder trades one against two directly, bypassing candidate selection.
// Orders that are open in the book are matched as their live book entries,
// anything else is matched as the given copy. The Future fails with
// ErrCurrencyMismatch, ErrSideMismatch or ErrPriceMismatch for pairs that
// cannot trade, and with ErrInvalidOrder if either order has already closed.
func (engine *Engine) MatchOrder(one, two Order) *executor.Future {
	return engine.mutation.Submit(func() error {
		defer engine.book.publish()

		liveOne, err := engine.resolve(one)
		if err != nil {
			return err
		}
		liveTwo, err := engine.resolve(two)
		if err != nil {
			return err
		}
		return engine.matcher.matchOrder(liveOne, liveTwo)
	})
}

// resolve maps order to the record the matcher should write to.
func (engine *Engine) resolve(order Order) (*Order, error) {
	if live, ok := engine.book.get(order.ID); ok {
		return live, nil
	}
	if engine.book.isClosed(order.ID) {
		return nil, errors.Wrapf(ErrInvalidOrder, "order %s already closed", order.ID)
	}
	return &order, nil
}

// OpenOrders returns the open orders in book order, as of the last completed
// mutation.
func (engine *Engine) OpenOrders() []Order {
	return engine.book.Orders()
}

func (engine *Engine) OnOrderOpened(h Handler) (unsubscribe func()) {
	return engine.notifier.Subscribe(OrderOpened, h)
}

func (engine *Engine) OnOrderClosed(h Handler) (unsubscribe func()) {
	return engine.notifier.Subscribe(OrderClosed, h)
}

// OnEvent receives Opened and Closed events through one subscription, so an
// order's Closed never reaches h before its Opened, even on a pooled notifier.
func (engine *Engine) OnEvent(h func(Event)) (unsubscribe func()) {
	return engine.notifier.SubscribeAll(h)
}

// Flush waits until everything scheduled before the call has been matched
// and its events delivered. With a pooled notifier, deliveries still running
// on other workers may finish after Flush returns; use Shutdown to wait for
// those.
func (engine *Engine) Flush(ctx context.Context) error {
	if err := engine.mutation.Submit(noop).Wait(ctx); err != nil {
		return err
	}
	return engine.events.Submit(noop).Wait(ctx)
}

// Shutdown drains the mutation context and then the notifier, so every
// accepted order is matched and every resulting event delivered before it
// returns, unless ctx ends first.
func (engine *Engine) Shutdown(ctx context.Context) error {
	mutationErr := engine.mutation.Shutdown(ctx)
	eventsErr := engine.events.Shutdown(ctx)
	log.Info().Int("open", len(engine.OpenOrders())).Msg("engine stopped")

	if mutationErr != nil {
		return mutationErr
	}
	return eventsErr
}

func (engine *Engine) Close() error {
	return engine.Shutdown(context.Background())
}

func noop() error { return nil }
