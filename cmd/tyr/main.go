package main

import (
	"context"
	"flag"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	tomb "gopkg.in/tomb.v2"

	"tyr/internal/config"
	"tyr/internal/engine"
	"tyr/internal/generator"
)

const shutdownTimeout = 5 * time.Second

// Generates random orders for one currency pair and places them from several
// goroutines at once, logging every order that closes.
func main() {
	configPath := flag.String("config", "", "Path to a YAML config file (default $TYR_CONFIG)")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "Seed for the order generator")
	flag.Parse()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	err := run(ctx, *configPath, *seed)
	stop()
	if err != nil {
		log.Fatal().Err(err).Msg("playground failed")
	}
}

func run(ctx context.Context, configPath string, seed uint64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "loading config")
	}
	if err := cfg.Log.Apply(); err != nil {
		return errors.Wrap(err, "setting up logging")
	}
	minPrice, maxPrice, err := cfg.Playground.PriceRange()
	if err != nil {
		return err
	}

	eng, err := cfg.Engine.NewEngine()
	if err != nil {
		return errors.Wrap(err, "starting engine")
	}

	var opened, closed atomic.Int64
	eng.OnOrderOpened(func(engine.Order) {
		opened.Add(1)
	})
	eng.OnOrderClosed(func(order engine.Order) {
		closed.Add(1)
		log.Info().Stringer("order", order).Msg("order closed")
	})

	gen := generator.New(cfg.Playground.Pair(), minPrice, maxPrice, seed)
	orders, err := gen.Generate(2 * cfg.Playground.Orders)
	if err != nil {
		_ = eng.Close()
		return errors.Wrap(err, "generating orders")
	}

	// Producers drain a shared queue, like clients racing to submit.
	queue := make(chan engine.Order, len(orders))
	for _, order := range orders {
		queue <- order
	}
	close(queue)

	log.Info().
		Int("orders", len(orders)).
		Int("producers", cfg.Playground.Producers).
		Uint64("seed", seed).
		Msg("placing orders")

	t, tctx := tomb.WithContext(ctx)
	for i := 0; i < cfg.Playground.Producers; i++ {
		t.Go(func() error {
			return produce(tctx, eng, queue)
		})
	}
	if err := t.Wait(); err != nil {
		log.Error().Err(err).Msg("producer failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := eng.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "engine did not shut down cleanly")
	}

	remaining := decimal.Zero
	open := eng.OpenOrders()
	for _, order := range open {
		remaining = remaining.Add(order.Remaining())
	}
	log.Info().
		Int64("opened", opened.Load()).
		Int64("closed", closed.Load()).
		Int("open", len(open)).
		Str("remaining", remaining.String()).
		Msg("done")
	return nil
}

// produce places orders until the queue is empty or ctx is cancelled.
func produce(ctx context.Context, eng *engine.Engine, orders <-chan engine.Order) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case order, ok := <-orders:
			if !ok {
				return nil
			}
			eng.Place(order)
		}
	}
}
