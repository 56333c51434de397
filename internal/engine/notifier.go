package engine

import (
	"fmt"
	"slices"
	"sync"

	"github.com/eapache/queue"
	"github.com/rs/zerolog/log"

	"tyr/internal/executor"
)

type EventKind int

const (
	OrderOpened EventKind = iota
	OrderClosed
)

func (k EventKind) String() string {
	switch k {
	case OrderOpened:
		return "OrderOpened"
	case OrderClosed:
		return "OrderClosed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a lifecycle transition. Order is a copy taken when the transition
// happened.
type Event struct {
	Kind  EventKind
	Order Order
}

type Handler func(Order)

// subscriber is one registered callback with its own mailbox. At most one
// drain task per subscriber is scheduled at a time, so its events arrive one
// after another in publish order whatever executor runs them.
type subscriber struct {
	id    uint64
	kinds []EventKind // nil means every kind
	fn    func(Event)

	mu        sync.Mutex
	mailbox   *queue.Queue // of Event
	scheduled bool
}

func (s *subscriber) wants(kind EventKind) bool {
	return s.kinds == nil || slices.Contains(s.kinds, kind)
}

func (s *subscriber) drain() {
	for {
		s.mu.Lock()
		if s.mailbox.Length() == 0 {
			s.scheduled = false
			s.mu.Unlock()
			return
		}
		ev := s.mailbox.Remove().(Event)
		s.mu.Unlock()

		s.deliver(ev)
	}
}

// deliver runs the callback once. A panic is logged and later events still
// get delivered.
func (s *subscriber) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Uint64("subscriber", s.id).
				Str("event", ev.Kind.String()).
				Msg("subscriber panicked")
		}
	}()
	s.fn(ev)
}

// Notifier delivers events to subscribers on its own execution context, so a
// slow or broken subscriber never holds up matching.
//
// Every subscriber sees its events in the order they happened, on any
// context. On a Pool, different subscribers run in parallel, so an Opened
// handler and a separate Closed handler can observe an order closing first;
// SubscribeAll puts both kinds in one lane.
type Notifier struct {
	exec executor.Executor

	mu     sync.Mutex
	nextID uint64
	// Replaced, never modified in place, so a published slice can be read
	// without the lock.
	subs []*subscriber
}

func NewNotifier(exec executor.Executor) *Notifier {
	return &Notifier{exec: exec}
}

// Subscribe registers h for events of the given kind. The returned func
// removes it again; events already scheduled may still reach it.
func (n *Notifier) Subscribe(kind EventKind, h Handler) func() {
	return n.add([]EventKind{kind}, func(ev Event) { h(ev.Order) })
}

// SubscribeAll registers h for every event kind, delivered in one lane.
func (n *Notifier) SubscribeAll(h func(Event)) func() {
	return n.add(nil, h)
}

func (n *Notifier) add(kinds []EventKind, fn func(Event)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	s := &subscriber{
		id:      n.nextID,
		kinds:   kinds,
		fn:      fn,
		mailbox: queue.New(),
	}
	n.subs = append(slices.Clone(n.subs), s)

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()

		n.subs = slices.DeleteFunc(slices.Clone(n.subs), func(other *subscriber) bool {
			return other == s
		})
	}
}

// Publish queues ev for the subscribers registered right now. It never
// blocks.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	subs := n.subs
	n.mu.Unlock()

	for _, s := range subs {
		if s.wants(ev.Kind) {
			n.enqueue(s, ev)
		}
	}
}

func (n *Notifier) enqueue(s *subscriber, ev Event) {
	s.mu.Lock()
	s.mailbox.Add(ev)
	if s.scheduled {
		s.mu.Unlock()
		return
	}
	s.scheduled = true
	s.mu.Unlock()

	if err := n.exec.Invoke(s.drain); err != nil {
		s.mu.Lock()
		dropped := s.mailbox.Length()
		for s.mailbox.Length() > 0 {
			s.mailbox.Remove()
		}
		s.scheduled = false
		s.mu.Unlock()

		log.Warn().
			Err(err).
			Uint64("subscriber", s.id).
			Str("event", ev.Kind.String()).
			Str("id", ev.Order.ID.String()).
			Int("dropped", dropped).
			Msg("events dropped")
	}
}
