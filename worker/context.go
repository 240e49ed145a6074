package worker

import (
	"context"

	"github.com/warrenq/warren/amqp"
	"github.com/warrenq/warren/serializer"
	"github.com/warrenq/warren/tracer"
)

// messageContext is the concrete tracer.Context/consumer.Context
// backing every handler invocation. It lives in worker/ rather than
// consumer/ so that tracer (which Handler/Context are defined in) never
// needs to import worker, and worker (which needs both broker dispatch
// state and tracer's decorator type) stays the single place that wires
// them together.
type messageContext struct {
	ctx        context.Context
	delivery   amqp.Delivery
	serializer serializer.Serializer
}

// Ctx implements tracer.Context.
func (m *messageContext) Ctx() context.Context { return m.ctx }

// WithCtx implements tracer.Context, returning a copy carrying c.
func (m *messageContext) WithCtx(c context.Context) tracer.Context {
	return &messageContext{ctx: c, delivery: m.delivery, serializer: m.serializer}
}

// Delivery implements tracer.Context.
func (m *messageContext) Delivery() amqp.Delivery { return m.delivery }

// Decode implements tracer.Context, unmarshalling the delivery body
// with the descriptor's serializer.
func (m *messageContext) Decode(v interface{}) error {
	return m.serializer.Decode(m.delivery.Body, v)
}
