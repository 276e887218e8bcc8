// Package events carries committed engine notifications to sinks.
package events

import "fundex/internal/domain"

// Sink consumes committed engine events. Publish runs synchronously in
// the engine's commit path while the engine lock is held: implementations
// must be fast, must not block, and must never call back into the engine.
type Sink interface {
	Publish(events []*domain.Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(events []*domain.Event)

// Publish calls f.
func (f SinkFunc) Publish(events []*domain.Event) { f(events) }

// Discard drops all events.
type Discard struct{}

// Publish does nothing.
func (Discard) Publish([]*domain.Event) {}

// Fanout delivers each batch to every sink in order.
type Fanout []Sink

// Publish forwards the batch to each sink.
func (f Fanout) Publish(events []*domain.Event) {
	for _, s := range f {
		s.Publish(events)
	}
}
