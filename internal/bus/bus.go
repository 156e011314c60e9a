// Package bus implements the synchronous, typed event dispatcher driving a replay.
//
// Publish calls every handler registered for the event's kind, in
// registration order, on the calling goroutine. The handler table is
// mutated only during setup; Seal freezes it so concurrent publishers can
// read it without locking.
package bus

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"barreplay/internal/market"
	"barreplay/internal/metrics"
	"barreplay/internal/signal"
)

// Kind tags the variant carried by an Event.
type Kind uint8

const (
	MarketData Kind = iota
	Signal
	kindCount
)

func (k Kind) String() string {
	switch k {
	case MarketData:
		return "MarketData"
	case Signal:
		return "Signal"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Event is an immutable tagged value. Only the field matching Kind is meaningful.
type Event struct {
	Kind   Kind
	Bar    market.Bar
	Signal signal.Signal
}

// NewMarketData wraps a bar in a MarketData event.
func NewMarketData(bar market.Bar) Event {
	return Event{Kind: MarketData, Bar: bar}
}

// NewSignal wraps a signal in a Signal event.
func NewSignal(sig signal.Signal) Event {
	return Event{Kind: Signal, Bar: sig.Bar, Signal: sig}
}

// Handler reacts to an event. A returned error aborts the publish call.
type Handler func(Event) error

// DispatchError reports the handler fault that aborted a publish call.
type DispatchError struct {
	Kind  Kind
	Index int
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s handler %d: %v", e.Kind, e.Index, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatcher owns the subscription table.
type Dispatcher struct {
	handlers [kindCount][]Handler
	sealed   atomic.Bool
	log      zerolog.Logger
}

// New returns an empty, unsealed dispatcher.
func New(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{log: log}
}

// Subscribe appends a handler for kind. It panics once the dispatcher is sealed.
func (d *Dispatcher) Subscribe(kind Kind, h Handler) {
	if kind >= kindCount {
		panic(fmt.Sprintf("bus: unknown event kind %d", kind))
	}
	if h == nil {
		panic("bus: nil handler")
	}
	if d.sealed.Load() {
		panic("bus: subscribe after seal")
	}
	d.handlers[kind] = append(d.handlers[kind], h)
	d.log.Debug().Str("kind", kind.String()).Int("handlers", len(d.handlers[kind])).Msg("subscribed")
}

// Seal ends the setup phase. Subscribe panics afterwards.
func (d *Dispatcher) Seal() { d.sealed.Store(true) }

// Sealed reports whether Seal has been called.
func (d *Dispatcher) Sealed() bool { return d.sealed.Load() }

// Handlers returns the number of handlers registered for kind.
func (d *Dispatcher) Handlers(kind Kind) int {
	if kind >= kindCount {
		return 0
	}
	return len(d.handlers[kind])
}

// Publish delivers ev to its handlers in registration order and returns the first fault.
// Publishing a kind with no handlers is a no-op.
func (d *Dispatcher) Publish(ev Event) error {
	if ev.Kind >= kindCount {
		return fmt.Errorf("publish: unknown event kind %d", ev.Kind)
	}
	metrics.EventsPublished.WithLabelValues(ev.Kind.String()).Inc()

	handlers := d.handlers[ev.Kind]
	if len(handlers) == 0 {
		d.log.Debug().Str("kind", ev.Kind.String()).Msg("no subscribers")
		return nil
	}
	for i, h := range handlers {
		if err := h(ev); err != nil {
			var nested *DispatchError
			if errors.As(err, &nested) {
				return err
			}
			return &DispatchError{Kind: ev.Kind, Index: i, Err: err}
		}
	}
	return nil
}
