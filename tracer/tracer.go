// Package tracer provides a handler decorator chain so a consumer
// descriptor can wrap its handler invocation in tracing, metrics, or
// other cross-cutting concerns without the dispatch loop knowing about
// any of them. Handler/Context live here (rather than in consumer/) so
// that both consumer and tracer can refer to them without an import
// cycle; consumer/ re-exports them as type aliases.
package tracer

import (
	"context"

	"github.com/warrenq/warren/amqp"
)

// Handler processes a single decoded delivery.
type Handler interface {
	Handle(ctx Context) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx Context) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx Context) error { return f(ctx) }

// Context carries everything a handler needs about the delivery it was
// invoked for. Implemented in worker/ (the concrete type lives there to
// keep worker's dispatch bookkeeping out of this package).
type Context interface {
	// Ctx returns the context.Context associated with this delivery,
	// carrying any tracing span a wrapping Tracer has started.
	Ctx() context.Context

	// WithCtx returns a shallow copy of this Context carrying c in
	// place of the original context.Context, letting a Tracer inject a
	// child span before calling the next Handler in the chain.
	WithCtx(c context.Context) Context

	// Delivery is the raw AMQP delivery being processed.
	Delivery() amqp.Delivery

	// Decode unmarshals the delivery body into v using the descriptor's
	// serializer.
	Decode(v interface{}) error
}

// Tracer decorates a Handler, returning a new Handler that wraps the
// original invocation. Descriptor.Middleware composes a chain of
// Tracers left-to-right: the first entry is the outermost wrapper.
type Tracer func(Handler) Handler

// Chain composes tracers left-to-right into a single decorator, so
// Chain(a, b)(h) behaves as a(b(h)).
func Chain(tt ...Tracer) Tracer {
	return func(h Handler) Handler {
		for i := len(tt) - 1; i >= 0; i-- {
			h = tt[i](h)
		}
		return h
	}
}

// NoOp returns the handler unmodified.
func NoOp(h Handler) Handler {
	return h
}
