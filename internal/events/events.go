// Package events carries the progress messages emitted while license checks and fulfillment steps run.
//
// Events are informational only: nothing reads them to decide an outcome.
// Every Sink in this package is safe to call from multiple goroutines.
package events

import (
	"context"
	"log/slog"
	"sync"
)

// Event is a single progress message.
type Event struct {
	// Source names the component that emitted the event, e.g. "FeedbooksSignatureCheck".
	Source string `json:"source"`

	Message string `json:"message"`
}

// Sink receives events.
type Sink func(Event)

// Emit sends an event to s. A nil Sink discards the event.
func (s Sink) Emit(source, message string) {
	if s == nil {
		return
	}
	s(Event{Source: source, Message: message})
}

// Discard is a Sink that drops every event.
func Discard(Event) {}

// ChannelSink returns a Sink that forwards events to ch.
//
// Sends block until the consumer receives or ctx is done; once ctx is done events are dropped.
// The caller owns ch and closes it after all producers have returned.
func ChannelSink(ctx context.Context, ch chan<- Event) Sink {
	return func(e Event) {
		select {
		case ch <- e:
		case <-ctx.Done():
		}
	}
}

// LogSink returns a Sink that writes each event to logger at debug level.
func LogSink(logger *slog.Logger) Sink {
	return func(e Event) {
		logger.Debug(e.Message, slog.String("source", e.Source))
	}
}

// Tee returns a Sink that delivers each event to every non-nil sink in order.
func Tee(sinks ...Sink) Sink {
	return func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s(e)
			}
		}
	}
}

// Collector accumulates events in memory.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Sink returns a Sink that appends to the collector.
func (c *Collector) Sink() Sink {
	return func(e Event) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, e)
	}
}

// Events returns a copy of the events received so far.
func (c *Collector) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}
